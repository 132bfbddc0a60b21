package actor

import (
	"sync"
	"testing"
	"time"

	adactor "github.com/berfenger/motion2mqtt/internal/adapter/actor"
	"github.com/berfenger/motion2mqtt/internal/core/domain"
	"github.com/berfenger/motion2mqtt/internal/util"
	"github.com/berfenger/motion2mqtt/pkg/motion_blinds"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type coordinatorFixture struct {
	as          *actor.ActorSystem
	coordinator *actor.PID
	gateway     *motion_blinds.SimulatedGateway
	ready       chan domain.GatewayReadyEvent

	mu          sync.Mutex
	updates     map[string]int
	last        map[string]domain.CoverStateUpdateEvent
	unavailable int
}

func startCoordinator(t *testing.T) *coordinatorFixture {
	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	f := &coordinatorFixture{
		as:      actor.NewActorSystem(),
		gateway: motion_blinds.CreateTestGateway(),
		ready:   make(chan domain.GatewayReadyEvent, 1),
		updates: map[string]int{},
		last:    map[string]domain.CoverStateUpdateEvent{},
	}

	es := &eventstream.EventStream{}
	sub := es.Subscribe(func(evt any) {
		if ev, ok := evt.(domain.CoverStateUpdateEvent); ok {
			f.mu.Lock()
			f.updates[ev.Id]++
			f.last[ev.Id] = ev
			f.mu.Unlock()
		}
	})

	pids := make(chan *actor.PID, 1)
	parent := actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case *actor.Started:
			gw := ctx.Spawn(actor.PropsFromProducer(func() actor.Actor {
				return adactor.NewGatewayActor("home", f.gateway, 2*time.Second, logger)
			}))
			pids <- ctx.Spawn(actor.PropsFromProducer(func() actor.Actor {
				return NewCoordinatorActor(&cfg, "home", gw, es, logger)
			}))
		case domain.GatewayReadyEvent:
			f.ready <- msg
		}
	})
	parentPID := f.as.Root.Spawn(parent)
	f.coordinator = <-pids

	t.Cleanup(func() {
		es.Unsubscribe(sub)
		f.as.Root.Stop(parentPID)
		f.as.Shutdown()
	})
	return f
}

func (f *coordinatorFixture) updateCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[id]
}

func (f *coordinatorFixture) lastUpdate(id string) (domain.CoverStateUpdateEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.last[id]
	return ev, ok
}

func (f *coordinatorFixture) unavailableCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unavailable
}

func (f *coordinatorFixture) waitReady(t *testing.T) domain.GatewayReadyEvent {
	select {
	case ev := <-f.ready:
		return ev
	case <-time.After(5 * time.Second):
		require.FailNow(t, "coordinator did not get ready")
	}
	return domain.GatewayReadyEvent{}
}

func TestCoordinatorReady(t *testing.T) {

	f := startCoordinator(t)
	ev := f.waitReady(t)

	assert.Equal(t, "home", ev.Entities.GatewayId)
	assert.Len(t, ev.Entities.Covers, 3)
	assert.Len(t, ev.Entities.Sensors, 4)

	assert.Eventually(t, func() bool {
		c, ok := f.lastUpdate("motion_f08ad2000011")
		return ok && c.Available && *c.Position == 70
	}, 2*time.Second, 20*time.Millisecond)

	res, err := f.as.Root.RequestFuture(f.coordinator, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.True(t, res.(domain.ActorHealthResponse).Healthy)
}

func TestCoordinatorRejectsCommands(t *testing.T) {

	f := startCoordinator(t)
	f.waitReady(t)

	res, err := f.as.Root.RequestFuture(f.coordinator, domain.CoverCommandRequest{
		EntityId: "motion_f08ad2000011",
		Command:  domain.COVER_COMMAND_CLOSE_TILT,
	}, 2*time.Second).Result()
	require.NoError(t, err)
	resp := res.(domain.CoverCommandResponse)
	assert.ErrorIs(t, resp.GetResponseError(), domain.ErrUnsupportedCommand)
	assert.Equal(t, "motion_f08ad2000011", resp.EntityId)

	res, err = f.as.Root.RequestFuture(f.coordinator, domain.CoverCommandRequest{
		EntityId: "motion_f08ad2000099",
		Command:  domain.COVER_COMMAND_OPEN,
	}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.ErrorIs(t, res.(domain.CoverCommandResponse).GetResponseError(), domain.ErrUnknownEntity)

	assert.Empty(t, f.gateway.Calls())
}

func TestCoordinatorMovingPollsStop(t *testing.T) {

	f := startCoordinator(t)
	f.waitReady(t)

	require.Eventually(t, func() bool {
		return f.updateCount("motion_f08ad2000011") == 1
	}, 2*time.Second, 20*time.Millisecond)

	res, err := f.as.Root.RequestFuture(f.coordinator, domain.CoverCommandRequest{
		EntityId: "motion_f08ad2000011",
		Command:  domain.COVER_COMMAND_STOP,
	}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.False(t, res.(domain.CoverCommandResponse).HasResponseError())

	// the position does not change, two fast polls confirm it
	assert.Eventually(t, func() bool {
		return f.updateCount("motion_f08ad2000011") == 3
	}, 2*time.Second, 20*time.Millisecond)
	time.Sleep(800 * time.Millisecond)
	assert.Equal(t, 3, f.updateCount("motion_f08ad2000011"))
}

func TestCoordinatorGatewayUnavailable(t *testing.T) {

	f := startCoordinator(t)
	f.waitReady(t)

	require.Eventually(t, func() bool {
		c, ok := f.lastUpdate("motion_f08ad2000012")
		return ok && c.Available
	}, 2*time.Second, 20*time.Millisecond)

	f.gateway.SetReachable(false)
	f.as.Root.Send(f.coordinator, domain.PollTick{})

	assert.Eventually(t, func() bool {
		c, _ := f.lastUpdate("motion_f08ad2000012")
		return !c.Available
	}, 2*time.Second, 20*time.Millisecond)

	f.gateway.SetReachable(true)
	f.as.Root.Send(f.coordinator, domain.PollTick{})

	assert.Eventually(t, func() bool {
		c, _ := f.lastUpdate("motion_f08ad2000012")
		return c.Available && *c.TiltPosition == 50
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCoordinatorPollQueuedBehindCommands(t *testing.T) {

	f := startCoordinator(t)
	f.waitReady(t)

	require.Eventually(t, func() bool {
		return f.updateCount("motion_f08ad2000011") == 1
	}, 2*time.Second, 20*time.Millisecond)

	// every call is well under the gateway timeout, the queue as a whole is not
	f.gateway.SetLatency(300 * time.Millisecond)
	for i := 0; i < 8; i++ {
		f.as.Root.Send(f.coordinator, domain.CoverCommandRequest{
			EntityId: "motion_f08ad2000011",
			Command:  domain.COVER_COMMAND_STOP,
		})
	}
	f.as.Root.Send(f.coordinator, domain.PollTick{})

	require.Eventually(t, func() bool {
		return len(f.gateway.Calls()) == 8 && f.updateCount("motion_f08ad2000011") >= 2
	}, 10*time.Second, 50*time.Millisecond)

	assert.Zero(t, f.unavailableCount(), "a slow queue is not an unreachable gateway")
	c, _ := f.lastUpdate("motion_f08ad2000011")
	assert.True(t, c.Available)
	assert.Equal(t, 1, f.gateway.MaxInFlight())
}
