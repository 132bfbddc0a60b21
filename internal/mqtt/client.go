package mqtt

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/motion2mqtt/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_OPEN    = "OPEN"
	MQTT_PAYLOAD_CLOSE   = "CLOSE"
	MQTT_PAYLOAD_STOP    = "STOP"
	MQTT_STATE_OPEN      = "open"
	MQTT_STATE_CLOSED    = "closed"
	MQTT_STATE_UNKNOWN   = "None"

	MQTT_TILT_OPENED_VALUE = 100
	MQTT_TILT_CLOSED_VALUE = 0

	COMMAND_COVER      = "cover"
	COMMAND_COVER_TILT = "cover_tilt"
)

var (
	ErrInvalidCommand = errors.New("invalid command")
	ErrInvalidPayload = errors.New("invalid command payload")
)

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("motion2mqtt_%d", rand.IntN(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client:            mqtt.NewClient(opts),
		cfg:               cfg.MQTT,
		coverCommandRegex: coverCommandExtractor(cfg.MQTT.BaseTopic),
		tiltCommandRegex:  coverTiltCommandExtractor(cfg.MQTT.BaseTopic),
	}
}

type MQTTClient struct {
	client            mqtt.Client
	cfg               config.MQTTConfig
	coverCommandRegex *regexp.Regexp
	tiltCommandRegex  *regexp.Regexp
}

type ParsedMQTTCommand struct {
	DeviceId string
	Command  string
	Param    string
	Payload  string
}

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *MQTTClient) DiscoveryTopic() string {
	if c.cfg.HADiscoveryTopic == "" {
		return "homeassistant"
	}
	return c.cfg.HADiscoveryTopic
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

func (c *MQTTClient) SensorStateTopic(sensorId string) string {
	return fmt.Sprintf("%s/sensor/%s/state", c.baseTopic(), sensorId)
}

func (c *MQTTClient) SensorAvailabilityTopic(sensorId string) string {
	return fmt.Sprintf("%s/sensor/%s/availability", c.baseTopic(), sensorId)
}

func (c *MQTTClient) CoverStateTopic(coverId string) string {
	return fmt.Sprintf("%s/cover/%s/state", c.baseTopic(), coverId)
}

func (c *MQTTClient) CoverPositionTopic(coverId string) string {
	return fmt.Sprintf("%s/cover/%s/position", c.baseTopic(), coverId)
}

func (c *MQTTClient) CoverTiltTopic(coverId string) string {
	return fmt.Sprintf("%s/cover/%s/tilt", c.baseTopic(), coverId)
}

func (c *MQTTClient) CoverAvailabilityTopic(coverId string) string {
	return fmt.Sprintf("%s/cover/%s/availability", c.baseTopic(), coverId)
}

func (c *MQTTClient) CoverCommandTopic(coverId string) string {
	return fmt.Sprintf("%s/cover/%s/set", c.baseTopic(), coverId)
}

func (c *MQTTClient) CoverTiltCommandTopic(coverId string) string {
	return fmt.Sprintf("%s/cover/%s/tilt/set", c.baseTopic(), coverId)
}

func (c *MQTTClient) ParseMQTTCommand(topic, payload string) (*ParsedMQTTCommand, error) {
	return c.parseCommand(topic, payload)
}

func (c *MQTTClient) parseCommand(topic, payload string) (*ParsedMQTTCommand, error) {
	coverCmd, err := c.parseCoverCommand(topic, payload)
	if !errors.Is(err, ErrInvalidCommand) {
		return coverCmd, err
	}
	return c.parseCoverTiltCommand(topic, payload)
}

func (c *MQTTClient) parseCoverCommand(topic, payload string) (*ParsedMQTTCommand, error) {
	matches := c.coverCommandRegex.FindAllStringSubmatch(topic, 1)
	if len(matches) == 0 {
		return nil, ErrInvalidCommand
	}
	if len(matches[0]) != 2 {
		return nil, errors.New("invalid cover command")
	}
	switch strings.ToUpper(payload) {
	case MQTT_PAYLOAD_OPEN, MQTT_PAYLOAD_CLOSE, MQTT_PAYLOAD_STOP:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPayload, payload)
	}
	return &ParsedMQTTCommand{
		DeviceId: matches[0][1],
		Command:  COMMAND_COVER,
		Payload:  strings.ToUpper(payload),
	}, nil
}

func (c *MQTTClient) parseCoverTiltCommand(topic, payload string) (*ParsedMQTTCommand, error) {
	matches := c.tiltCommandRegex.FindAllStringSubmatch(topic, 1)
	if len(matches) == 0 {
		return nil, ErrInvalidCommand
	}
	if len(matches[0]) != 2 {
		return nil, errors.New("invalid cover tilt command")
	}

	// try to parse a valid number
	_, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPayload, payload)
	}

	return &ParsedMQTTCommand{
		DeviceId: matches[0][1],
		Command:  COMMAND_COVER_TILT,
		Payload:  payload,
	}, nil
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) SubscribeMultiple(filters map[string]byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.SubscribeMultiple(filters, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

// SubscribeToCommandTopics subscribes to the cover command topics only, the
// retained state topics under the same prefix are never delivered back.
func (c *MQTTClient) SubscribeToCommandTopics(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.SubscribeMultiple(c.CommandTopicFilters(), handler, continuation, timeout)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func (c *MQTTClient) CommandTopicFilters() map[string]byte {
	return map[string]byte{
		fmt.Sprintf("%s/cover/+/set", c.baseTopic()):      1,
		fmt.Sprintf("%s/cover/+/tilt/set", c.baseTopic()): 1,
	}
}

func coverCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/cover/([a-zA-Z0-9_]+)/set$", regexp.QuoteMeta(baseTopic)))
}

func coverTiltCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/cover/([a-zA-Z0-9_]+)/tilt/set$", regexp.QuoteMeta(baseTopic)))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
