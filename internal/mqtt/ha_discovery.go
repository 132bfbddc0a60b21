package mqtt

import (
	"fmt"

	"github.com/berfenger/motion2mqtt/internal/core/domain"
	"github.com/berfenger/motion2mqtt/internal/core/events"
)

const (
	AVAILABILITY_MODE_ALL = "all"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice         `json:"device"`
	StateTopic        string                    `json:"state_topic"`
	CommandTopic      string                    `json:"command_topic,omitempty"`
	StateClass        string                    `json:"state_class,omitempty"`
	DeviceClass       string                    `json:"device_class,omitempty"`
	UnitOfMeasurement string                    `json:"unit_of_measurement,omitempty"`
	AvTopic           string                    `json:"availability_topic,omitempty"`
	Availability      []HADiscoveryAvailability `json:"availability,omitempty"`
	AvailabilityMode  string                    `json:"availability_mode,omitempty"`
	EntityCategory    string                    `json:"entity_category,omitempty"`
	Name              string                    `json:"name"`
	UniqueId          string                    `json:"unique_id"`
	Platform          string                    `json:"platform"`
	EnabledByDefault  *bool                     `json:"enabled_by_default,omitempty"`
	PayloadOn         string                    `json:"payload_on,omitempty"`
	PayloadOff        string                    `json:"payload_off,omitempty"`
	Icon              string                    `json:"icon,omitempty"`

	// cover
	PositionTopic    string `json:"position_topic,omitempty"`
	PayloadOpen      string `json:"payload_open,omitempty"`
	PayloadClose     string `json:"payload_close,omitempty"`
	PayloadStop      string `json:"payload_stop,omitempty"`
	StateOpen        string `json:"state_open,omitempty"`
	StateClosed      string `json:"state_closed,omitempty"`
	TiltStatusTopic  string `json:"tilt_status_topic,omitempty"`
	TiltCommandTopic string `json:"tilt_command_topic,omitempty"`
	TiltOpenedValue  *int   `json:"tilt_opened_value,omitempty"`
	TiltClosedValue  *int   `json:"tilt_closed_value,omitempty"`
}

type HADiscoveryAvailability struct {
	Topic string `json:"topic"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

func (c *MQTTClient) HADiscoverySensorTopic(sensor domain.GenericSensor) string {
	return haDiscoveryTopic(c.DiscoveryTopic(), sensor.SensorType, sensor.Device.Id, sensor.Id)
}

func (c *MQTTClient) HADiscoveryCoverTopic(cover domain.GenericCover) string {
	return haDiscoveryTopic(c.DiscoveryTopic(), "cover", cover.Device.Id, cover.Id)
}

// HADiscoveryRemovalTopics lists the config topics of a device that is gone.
// Publishing an empty retained payload on them removes the entities.
func (c *MQTTClient) HADiscoveryRemovalTopics(dev domain.KnownDevice) []string {
	var topics []string
	for _, id := range dev.CoverIds {
		topics = append(topics, haDiscoveryTopic(c.DiscoveryTopic(), "cover", dev.DeviceId, id))
	}
	for _, id := range dev.SensorIds {
		topics = append(topics, haDiscoveryTopic(c.DiscoveryTopic(), events.SENSOR_TYPE_SENSOR, dev.DeviceId, id))
	}
	return topics
}

func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericSensor) HADiscoveryConfig {
	dev := device(sensor.Device)
	var topic string
	switch {
	case sensor.Id == events.SENSOR_ID_BRIDGE_STATE:
		topic = client.BridgeStateTopic()
	case sensor.SensorType == events.SENSOR_TYPE_SENSOR:
		topic = client.SensorStateTopic(sensor.Id)
	}
	disConfig := HADiscoveryConfig{
		Device:            dev,
		StateTopic:        topic,
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		EntityCategory:    sensor.EntityCategory,
		Name:              sensor.Name,
		UniqueId:          sensor.UniqueId,
		Icon:              sensor.Icon,
		EnabledByDefault:  sensor.EnabledByDefault,
		Platform:          "mqtt",
	}
	if sensor.HasAvailability {
		disConfig.Availability = []HADiscoveryAvailability{
			{Topic: client.BridgeStateTopic()},
			{Topic: client.SensorAvailabilityTopic(sensor.Id)},
		}
		disConfig.AvailabilityMode = AVAILABILITY_MODE_ALL
	} else {
		disConfig.AvTopic = client.BridgeStateTopic()
	}
	if sensor.Id == events.SENSOR_ID_BRIDGE_STATE {
		disConfig.PayloadOn = MQTT_PAYLOAD_ONLINE
		disConfig.PayloadOff = MQTT_PAYLOAD_OFFLINE
	}
	return disConfig
}

func GenericCoverToHADiscoveryMessage(client *MQTTClient, cover domain.GenericCover) HADiscoveryConfig {
	disConfig := HADiscoveryConfig{
		Device:        device(cover.Device),
		StateTopic:    client.CoverStateTopic(cover.Id),
		CommandTopic:  client.CoverCommandTopic(cover.Id),
		PositionTopic: client.CoverPositionTopic(cover.Id),
		DeviceClass:   cover.DeviceClass,
		Availability: []HADiscoveryAvailability{
			{Topic: client.BridgeStateTopic()},
			{Topic: client.CoverAvailabilityTopic(cover.Id)},
		},
		AvailabilityMode: AVAILABILITY_MODE_ALL,
		Name:             cover.Name,
		UniqueId:         cover.UniqueId,
		Platform:         "mqtt",
		PayloadOpen:      MQTT_PAYLOAD_OPEN,
		PayloadClose:     MQTT_PAYLOAD_CLOSE,
		PayloadStop:      MQTT_PAYLOAD_STOP,
		StateOpen:        MQTT_STATE_OPEN,
		StateClosed:      MQTT_STATE_CLOSED,
	}
	if cover.Tilt {
		opened, closed := MQTT_TILT_OPENED_VALUE, MQTT_TILT_CLOSED_VALUE
		disConfig.TiltStatusTopic = client.CoverTiltTopic(cover.Id)
		disConfig.TiltCommandTopic = client.CoverTiltCommandTopic(cover.Id)
		disConfig.TiltOpenedValue = &opened
		disConfig.TiltClosedValue = &closed
	}
	return disConfig
}

func device(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}

func haDiscoveryTopic(discoveryTopic, component, deviceId, objectId string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", discoveryTopic, component, deviceId, objectId)
}
