package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/berfenger/motion2mqtt/internal/core/domain"
	"github.com/berfenger/motion2mqtt/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *MQTTClient {
	cfg := util.LoadTestConfig()
	return CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)
}

func TestCoverCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/cover/motion_f08ad2000011/set"
	r := coverCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal("motion_f08ad2000011", matches[0][1], "cover extract")
}

func TestCoverCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	r := coverCommandExtractor(baseTopic)

	assert.Len(r.FindAllStringSubmatch("loremTopic/cover/my_cover/state", 1), 0, "no matches")
	assert.Len(r.FindAllStringSubmatch("loremTopic/cover/my_cover/tilt/set", 1), 0, "tilt is not a cover command")
	assert.Len(r.FindAllStringSubmatch("other/loremTopic/cover/my_cover/set", 1), 0, "anchored")
}

func TestCoverTiltCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/cover/my_cover/tilt/set"
	r := coverTiltCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal("my_cover", matches[0][1], "cover extract")
}

func TestParseCommand(t *testing.T) {

	assert := assert.New(t)

	client := testClient()

	cmd, err := client.parseCommand("motion/cover/motion_f08ad2000011/set", "open")
	require.NoError(t, err)
	assert.Equal(COMMAND_COVER, cmd.Command)
	assert.Equal(MQTT_PAYLOAD_OPEN, cmd.Payload)
	assert.Equal("motion_f08ad2000011", cmd.DeviceId)

	cmd, err = client.parseCommand("motion/cover/motion_f08ad2000012/tilt/set", "100")
	require.NoError(t, err)
	assert.Equal(COMMAND_COVER_TILT, cmd.Command)
	assert.Equal("100", cmd.Payload)

	_, err = client.parseCommand("motion/cover/motion_f08ad2000011/set", "UP")
	assert.ErrorIs(err, ErrInvalidPayload)
	_, err = client.parseCommand("motion/cover/motion_f08ad2000011/tilt/set", "half")
	assert.ErrorIs(err, ErrInvalidPayload)
	_, err = client.parseCommand("motion/sensor/f08ad2000011_rssi/state", "-60")
	assert.ErrorIs(err, ErrInvalidCommand)
	_, err = client.parseCommand("motion/cover/motion_f08ad2000011/state", "open")
	assert.ErrorIs(err, ErrInvalidCommand)
	assert.NotErrorIs(err, ErrInvalidPayload)
}

func TestCommandTopicFilters(t *testing.T) {

	client := testClient()

	// the bridge's own state topics must not come back as commands
	assert.Equal(t, map[string]byte{
		"motion/cover/+/set":      1,
		"motion/cover/+/tilt/set": 1,
	}, client.CommandTopicFilters())
}

func TestCoverDiscoveryMessage(t *testing.T) {

	assert := assert.New(t)

	client := testClient()
	cover := domain.GenericCover{
		Device:      domain.Device{Id: "motion_blind_f08ad2000012", Name: "VenetianBlind 0012"},
		Id:          "motion_f08ad2000012",
		UniqueId:    "f0:8a:d2:00:00:12",
		DeviceClass: domain.COVER_CLASS_BLIND,
		Tilt:        true,
	}

	assert.Equal("homeassistant/cover/motion_blind_f08ad2000012/motion_f08ad2000012/config", client.HADiscoveryCoverTopic(cover))

	msg := GenericCoverToHADiscoveryMessage(client, cover)
	assert.Equal("motion/cover/motion_f08ad2000012/state", msg.StateTopic)
	assert.Equal("motion/cover/motion_f08ad2000012/set", msg.CommandTopic)
	assert.Equal("motion/cover/motion_f08ad2000012/tilt/set", msg.TiltCommandTopic)
	assert.Equal(AVAILABILITY_MODE_ALL, msg.AvailabilityMode)
	assert.Len(msg.Availability, 2)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(0.0, decoded["tilt_closed_value"])
	assert.Equal(100.0, decoded["tilt_opened_value"])
	assert.NotContains(decoded, "availability_topic")

	cover.Tilt = false
	plain := GenericCoverToHADiscoveryMessage(client, cover)
	assert.Empty(plain.TiltCommandTopic)
	assert.Nil(plain.TiltClosedValue)
}

func TestHADiscoveryRemovalTopics(t *testing.T) {

	client := testClient()
	topics := client.HADiscoveryRemovalTopics(domain.KnownDevice{
		Mac:       "f0:8a:d2:00:00:11",
		DeviceId:  "motion_blind_f08ad2000011",
		CoverIds:  []string{"motion_f08ad2000011"},
		SensorIds: []string{"f08ad2000011_rssi"},
	})

	assert.Equal(t, []string{
		"homeassistant/cover/motion_blind_f08ad2000011/motion_f08ad2000011/config",
		"homeassistant/sensor/motion_blind_f08ad2000011/f08ad2000011_rssi/config",
	}, topics)
}
