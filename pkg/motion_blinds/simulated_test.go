package motion_blinds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedGatewayInfo(t *testing.T) {

	assert := assert.New(t)

	gw := CreateTestGateway()
	info, err := gw.GetInfo()
	require.NoError(t, err)

	assert.Equal("f0:8a:d2:00:00:01", info.Mac)
	assert.Equal(DeviceTypeGateway, info.DeviceType)
	assert.Len(info.Blinds, 3)
	assert.Equal(BlindTypeVenetianBlind, info.Blinds[1].BlindType)
}

func TestSimulatedBlindMoves(t *testing.T) {

	assert := assert.New(t)

	gw := CreateTestGateway()
	blind, err := gw.Blind("f0:8a:d2:00:00:11")
	require.NoError(t, err)

	require.NoError(t, blind.Close())

	st, err := blind.Update()
	require.NoError(t, err)
	assert.Equal(55, *st.Position)

	st, _ = blind.Update()
	assert.Equal(80, *st.Position)
	st, _ = blind.Update()
	assert.Equal(100, *st.Position)
	st, _ = blind.Update()
	assert.Equal(100, *st.Position, "stays closed once the target is reached")

	assert.Equal([]string{"f0:8a:d2:00:00:11:Close"}, gw.Calls())
}

func TestSimulatedBlindJog(t *testing.T) {

	assert := assert.New(t)

	gw := CreateTestGateway()
	blind, _ := gw.Blind("f0:8a:d2:00:00:12")

	require.NoError(t, blind.JogUp())
	st, _ := blind.Update()
	assert.Equal(108, *st.Angle)

	require.NoError(t, blind.JogDown())
	require.NoError(t, blind.JogDown())
	st, _ = blind.Update()
	assert.Equal(72, *st.Angle)
}

func TestSimulatedGatewayUnreachable(t *testing.T) {

	gw := CreateTestGateway()
	gw.SetReachable(false)

	_, err := gw.Update()
	assert.ErrorIs(t, err, ErrGatewayUnreachable)

	blind, _ := gw.Blind("f0:8a:d2:00:00:11")
	assert.ErrorIs(t, blind.Open(), ErrGatewayUnreachable)
}

func TestSimulatedUnknownBlind(t *testing.T) {
	_, err := CreateTestGateway().Blind("00:00:00:00:00:00")
	assert.ErrorIs(t, err, ErrUnknownBlind)
}

func TestWiFiDeviceTypes(t *testing.T) {
	assert.True(t, IsWiFiDevice(DeviceTypeWiFiBlind))
	assert.False(t, IsWiFiDevice(DeviceTypeGateway))
}

func TestSimulatedGatewaysDoNotShareDevices(t *testing.T) {
	first, err := CreateSimulatedGateway(1).GetInfo()
	require.NoError(t, err)
	second, err := CreateSimulatedGateway(2).GetInfo()
	require.NoError(t, err)

	assert.Equal(t, "f0:8a:d2:00:01:01", first.Mac)
	assert.Equal(t, "f0:8a:d2:00:02:11", second.Blinds[0].Mac)
	assert.NotEqual(t, first.Blinds[0].Mac, second.Blinds[0].Mac)
}
