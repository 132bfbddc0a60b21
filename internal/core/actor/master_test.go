package actor

import (
	"errors"
	"slices"
	"testing"
	"time"

	adactor "github.com/berfenger/motion2mqtt/internal/adapter/actor"
	"github.com/berfenger/motion2mqtt/internal/config"
	"github.com/berfenger/motion2mqtt/internal/core/domain"
	"github.com/berfenger/motion2mqtt/internal/mqtt"
	"github.com/berfenger/motion2mqtt/internal/store"
	"github.com/berfenger/motion2mqtt/internal/util"
	"github.com/berfenger/motion2mqtt/pkg/motion_blinds"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type masterFixture struct {
	as       *actor.ActorSystem
	pid      *actor.PID
	gateway  *motion_blinds.SimulatedGateway
	recorder *adactor.MQTTRecorder
	store    *store.MemoryStore
}

func startMaster(t *testing.T, known []domain.KnownDevice) *masterFixture {
	return startMasterWithRecorder(t, known, &adactor.MQTTRecorder{})
}

func startMasterWithRecorder(t *testing.T, known []domain.KnownDevice, recorder *adactor.MQTTRecorder) *masterFixture {
	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	f := &masterFixture{
		as:       actor.NewActorSystem(),
		gateway:  motion_blinds.CreateTestGateway(),
		recorder: recorder,
		store:    store.NewMemoryStore(),
	}
	require.NoError(t, f.store.SaveKnownDevices("home", known))

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func(gw config.GatewayConfig) *adactor.GatewayActor {
			return adactor.NewGatewayActor(gw.Id, f.gateway, 2*time.Second, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, f.recorder, logger)
		}, f.store, nil, logger)
	})
	pid, err := f.as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	f.pid = pid

	t.Cleanup(func() {
		f.as.Root.Stop(pid)
		f.as.Shutdown()
	})
	return f
}

func (f *masterFixture) coverStates(t *testing.T) map[string]domain.CoverStateUpdateEvent {
	res, err := f.as.Root.RequestFuture(f.pid, domain.GetCoverStatesRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	states := map[string]domain.CoverStateUpdateEvent{}
	for _, c := range res.(domain.GetCoverStatesResponse).Covers {
		states[c.Id] = c
	}
	return states
}

func (f *masterFixture) command(t *testing.T, entityId string, cmd domain.CoverCommand) domain.CoverCommandResponse {
	res, err := f.as.Root.RequestFuture(f.pid, domain.CoverCommandRequest{
		EntityId: entityId,
		Command:  cmd,
	}, 5*time.Second).Result()
	require.NoError(t, err)
	return res.(domain.CoverCommandResponse)
}

func TestMasterActor(t *testing.T) {

	f := startMaster(t, nil)

	assert.Eventually(t, func() bool {
		return len(f.coverStates(t)) == 3
	}, 5*time.Second, 50*time.Millisecond, "covers published")

	res, err := f.as.Root.RequestFuture(f.pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, healthResp.Healthy, "healthy is true")

	states := f.coverStates(t)
	plain := states["motion_f08ad2000011"]
	assert.True(t, plain.Available)
	assert.Equal(t, 70, *plain.Position)
	assert.False(t, *plain.Closed)
	assert.Nil(t, plain.TiltPosition)

	tilt := states["motion_f08ad2000012"]
	assert.True(t, tilt.HasTilt)
	assert.Equal(t, 50, *tilt.TiltPosition)
	assert.True(t, *tilt.Closed)
}

func TestMasterActorCoverCommands(t *testing.T) {

	assert := assert.New(t)

	f := startMaster(t, nil)

	require.Eventually(t, func() bool {
		return len(f.coverStates(t)) == 3
	}, 5*time.Second, 50*time.Millisecond)

	resp := f.command(t, "motion_f08ad2000011", domain.COVER_COMMAND_CLOSE)
	assert.False(resp.HasResponseError())

	// fast polls follow the blind until it stops
	assert.Eventually(func() bool {
		c := f.coverStates(t)["motion_f08ad2000011"]
		return c.Position != nil && *c.Position == 0 && c.Closed != nil && *c.Closed
	}, 5*time.Second, 50*time.Millisecond)

	resp = f.command(t, "motion_f08ad2000011", domain.COVER_COMMAND_OPEN_TILT)
	assert.ErrorIs(resp.GetResponseError(), domain.ErrUnsupportedCommand)

	resp = f.command(t, "motion_ffffffffffff", domain.COVER_COMMAND_OPEN)
	assert.ErrorIs(resp.GetResponseError(), domain.ErrUnknownEntity)

	f.as.Root.Send(f.pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: "motion_f08ad2000012",
		Command:  mqtt.COMMAND_COVER_TILT,
		Payload:  "100",
	}})
	assert.Eventually(func() bool {
		return slices.Contains(f.gateway.Calls(), "f0:8a:d2:00:00:12:JogUp")
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal("f0:8a:d2:00:00:11:Close", f.gateway.Calls()[0])
	assert.NotContains(f.gateway.Calls(), "f0:8a:d2:00:00:11:JogUp")
	assert.Equal(1, f.gateway.MaxInFlight())
}

func TestMasterActorDiscovery(t *testing.T) {

	assert := assert.New(t)

	stale := domain.KnownDevice{
		Mac:      "f0:8a:d2:00:00:99",
		DeviceId: "motion_blind_f08ad2000099",
		CoverIds: []string{"motion_f08ad2000099"},
	}
	f := startMaster(t, []domain.KnownDevice{stale})

	require.Eventually(t, func() bool {
		known, _ := f.store.KnownDevices("home")
		return len(known) == 3
	}, 5*time.Second, 50*time.Millisecond, "known devices saved")

	payload, ok := f.recorder.Last("homeassistant/cover/motion_blind_f08ad2000099/motion_f08ad2000099/config")
	assert.True(ok)
	assert.Empty(payload, "stale device removed")

	_, ok = f.recorder.Last("homeassistant/cover/motion_blind_f08ad2000011/motion_f08ad2000011/config")
	assert.True(ok)
	_, ok = f.recorder.Last("homeassistant/sensor/motion_gateway_f08ad2000001/f08ad2000001_rssi/config")
	assert.True(ok)
}

func TestMasterActorDiscoveryPublishFailure(t *testing.T) {

	stale := domain.KnownDevice{
		Mac:      "f0:8a:d2:00:00:99",
		DeviceId: "motion_blind_f08ad2000099",
		CoverIds: []string{"motion_f08ad2000099"},
	}
	recorder := &adactor.MQTTRecorder{}
	recorder.FailTopic("homeassistant/cover/motion_blind_f08ad2000099/motion_f08ad2000099/config", errors.New("broker down"))

	f := startMasterWithRecorder(t, []domain.KnownDevice{stale}, recorder)

	require.Eventually(t, func() bool {
		_, ok := f.recorder.Last("homeassistant/cover/motion_blind_f08ad2000011/motion_f08ad2000011/config")
		return ok
	}, 5*time.Second, 50*time.Millisecond)
	time.Sleep(300 * time.Millisecond)

	// the removal never reached the broker, so the stale device is kept for the next round
	known, err := f.store.KnownDevices("home")
	require.NoError(t, err)
	assert.Equal(t, []domain.KnownDevice{stale}, known)
}
