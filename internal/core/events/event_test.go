package events

import (
	"testing"
	"time"

	"github.com/berfenger/motion2mqtt/internal/core/domain"
	"github.com/berfenger/motion2mqtt/internal/core/service"
	"github.com/berfenger/motion2mqtt/pkg/motion_blinds"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEntities(t *testing.T) domain.GatewayEntities {
	info, err := motion_blinds.CreateTestGateway().GetInfo()
	require.NoError(t, err)
	return service.SetupEntities("home", *info, zap.NewNop())
}

func pollSnapshot(t *testing.T) *domain.Snapshot {
	gw := motion_blinds.CreateTestGateway()
	info, _ := gw.GetInfo()
	status, err := gw.Update()
	require.NoError(t, err)
	blinds := map[string]motion_blinds.BlindStatus{}
	for _, b := range info.Blinds {
		client, _ := gw.Blind(b.Mac)
		st, err := client.Update()
		require.NoError(t, err)
		blinds[b.Mac] = *st
	}
	return domain.NewSnapshot(*status, blinds, time.Now())
}

func TestSnapshotToUpdateEvents(t *testing.T) {

	assert := assert.New(t)

	entities := testEntities(t)
	evs := SnapshotToUpdateEvents(entities, pollSnapshot(t))

	var covers []domain.CoverStateUpdateEvent
	var values []domain.FloatSensorUpdateEvent
	var availability []domain.SensorAvailabilityUpdateEvent
	for _, ev := range evs {
		switch e := ev.(type) {
		case domain.CoverStateUpdateEvent:
			covers = append(covers, e)
		case domain.FloatSensorUpdateEvent:
			values = append(values, e)
		case domain.SensorAvailabilityUpdateEvent:
			availability = append(availability, e)
		}
	}

	require.Len(t, covers, 3)
	assert.Equal(70, *covers[0].Position)
	assert.False(*covers[0].Closed)
	assert.Nil(covers[0].TiltPosition)
	assert.True(covers[0].Available)

	assert.Equal(4, *covers[1].Position)
	assert.True(*covers[1].Closed)
	assert.Equal(50, *covers[1].TiltPosition)

	assert.Nil(covers[2].Position, "unknown readings stay unknown")
	assert.Nil(covers[2].Closed)

	assert.Len(availability, 4)
	assert.Len(values, 3, "the blind without RSSI publishes no value")
	assert.Equal(-71.0, values[0].Value)
}

func TestSnapshotToUpdateEventsWithoutSnapshot(t *testing.T) {

	entities := testEntities(t)
	for _, ev := range SnapshotToUpdateEvents(entities, nil) {
		switch e := ev.(type) {
		case domain.CoverStateUpdateEvent:
			assert.False(t, e.Available)
			assert.Nil(t, e.Position)
		case domain.SensorAvailabilityUpdateEvent:
			assert.False(t, e.Value)
		case domain.FloatSensorUpdateEvent:
			t.Errorf("unexpected value for %s", e.Id)
		}
	}
}

func TestGatewayComponents(t *testing.T) {

	assert := assert.New(t)

	bridge := BridgeDevice("motion")
	covers, sensors, known := GatewayComponents(bridge, testEntities(t))

	require.Len(t, covers, 3)
	assert.Equal("motion_f08ad2000011", covers[0].Id)
	assert.Equal("f0:8a:d2:00:00:11", covers[0].UniqueId)
	assert.Equal(domain.COVER_CLASS_SHADE, covers[0].DeviceClass)
	assert.False(covers[0].Tilt)
	assert.True(covers[1].Tilt)
	assert.Equal("motion_gateway_f08ad2000001", covers[0].Device.ViaDevice)

	require.Len(t, sensors, 4)
	assert.Equal("f0:8a:d2:00:00:11-RSSI", sensors[0].UniqueId)
	assert.Equal(UNIT_DBM, sensors[0].UnitOfMeasurement)
	assert.False(*sensors[0].EnabledByDefault)
	assert.Equal("motion_gateway_f08ad2000001", sensors[3].Device.Id)
	assert.Equal(bridge.Id, sensors[3].Device.ViaDevice)

	require.Len(t, known, 3)
	assert.Equal([]string{"f08ad2000011_rssi"}, known[0].SensorIds)
	assert.Equal([]string{"motion_f08ad2000011"}, known[0].CoverIds)
}

func TestRemovedDevices(t *testing.T) {

	previous := []domain.KnownDevice{{Mac: "a"}, {Mac: "b"}, {Mac: "c"}}
	current := []domain.KnownDevice{{Mac: "b"}, {Mac: "d"}}

	removed := RemovedDevices(previous, current)
	assert.Equal(t, []domain.KnownDevice{{Mac: "a"}, {Mac: "c"}}, removed)
	assert.Empty(t, RemovedDevices(nil, current))
}
