package actorutil

import (
	"testing"

	"github.com/berfenger/motion2mqtt/internal/core/domain"
	"github.com/berfenger/motion2mqtt/internal/mqtt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsedMQTTCommandToCommand(t *testing.T) {

	assert := assert.New(t)

	cases := []struct {
		cmd      mqtt.ParsedMQTTCommand
		expected domain.CoverCommand
	}{
		{mqtt.ParsedMQTTCommand{DeviceId: "c", Command: mqtt.COMMAND_COVER, Payload: mqtt.MQTT_PAYLOAD_OPEN}, domain.COVER_COMMAND_OPEN},
		{mqtt.ParsedMQTTCommand{DeviceId: "c", Command: mqtt.COMMAND_COVER, Payload: mqtt.MQTT_PAYLOAD_CLOSE}, domain.COVER_COMMAND_CLOSE},
		{mqtt.ParsedMQTTCommand{DeviceId: "c", Command: mqtt.COMMAND_COVER, Payload: mqtt.MQTT_PAYLOAD_STOP}, domain.COVER_COMMAND_STOP},
		{mqtt.ParsedMQTTCommand{DeviceId: "c", Command: mqtt.COMMAND_COVER_TILT, Payload: "100"}, domain.COVER_COMMAND_OPEN_TILT},
		{mqtt.ParsedMQTTCommand{DeviceId: "c", Command: mqtt.COMMAND_COVER_TILT, Payload: "50"}, domain.COVER_COMMAND_OPEN_TILT},
		{mqtt.ParsedMQTTCommand{DeviceId: "c", Command: mqtt.COMMAND_COVER_TILT, Payload: "0"}, domain.COVER_COMMAND_CLOSE_TILT},
	}

	for _, c := range cases {
		req, err := ParsedMQTTCommandToCommand(c.cmd)
		require.NoError(t, err)
		cmd, ok := req.(domain.CoverCommandRequest)
		require.True(t, ok)
		assert.Equal(c.expected, cmd.Command)
		assert.Equal("c", cmd.EntityId)
	}

	_, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: "c", Command: "switch", Payload: "on"})
	assert.ErrorIs(err, domain.ErrUnknownCommand)
}
