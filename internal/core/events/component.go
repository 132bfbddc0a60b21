package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	. "github.com/berfenger/motion2mqtt/internal/core/domain"
	"github.com/berfenger/motion2mqtt/pkg/motion_blinds"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	STATE_CLASS_MEASUREMENT      = "measurement"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	DEVICE_CLASS_SIGNAL_STRENGTH = "signal_strength"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
	UNIT_DBM                     = "dBm"
	MANUFACTURER_MOTION          = "Motionblinds"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("motion2mqtt_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Motion2MQTT",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Motion2MQTT %s", md5HashShort(baseTopic)),
	}
}

func GatewayDevice(info motion_blinds.GatewayInfo) Device {
	return Device{
		Id:           fmt.Sprintf("motion_gateway_%s", MacId(info.Mac)),
		Version:      info.FirmwareVersion,
		Manufacturer: MANUFACTURER_MOTION,
		Model:        fmt.Sprintf("Gateway %s", info.DeviceType),
		Name:         fmt.Sprintf("Motion Gateway %s", shortMac(info.Mac)),
	}
}

func BlindDevice(cover CoverEntity) Device {
	return Device{
		Id:           fmt.Sprintf("motion_blind_%s", MacId(cover.Mac)),
		Manufacturer: MANUFACTURER_MOTION,
		Model:        string(cover.BlindType),
		Name:         fmt.Sprintf("%s %s", cover.BlindType, shortMac(cover.Mac)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

// GatewayComponents builds the discovery components of every entity of a
// gateway, plus the devices to remember for later cleanup.
func GatewayComponents(bridgeDevice Device, entities GatewayEntities) ([]GenericCover, []GenericSensor, []KnownDevice) {

	var covers []GenericCover
	var sensors []GenericSensor
	var known []KnownDevice

	gatewayDevice := GatewayDevice(entities.Gateway)
	gatewayDevice.ViaDevice = bridgeDevice.Id

	devices := map[string]Device{}
	for _, cover := range entities.Covers {
		dev := BlindDevice(cover)
		if motion_blinds.IsWiFiDevice(cover.DeviceType) {
			dev.ViaDevice = bridgeDevice.Id
		} else {
			dev.ViaDevice = gatewayDevice.Id
		}
		devices[cover.Mac] = dev

		covers = append(covers, GenericCover{
			Device:      dev,
			Id:          cover.Id(),
			Name:        dev.Name,
			UniqueId:    cover.UniqueId(),
			DeviceClass: cover.Classification.DeviceClass,
			Tilt:        cover.HasTilt(),
		})
		known = append(known, KnownDevice{
			Mac:      cover.Mac,
			DeviceId: dev.Id,
			CoverIds: []string{cover.Id()},
		})
	}

	for _, sensor := range entities.Sensors {
		dev, ok := devices[sensor.Mac]
		if sensor.Gateway || !ok {
			dev = gatewayDevice
		} else {
			// the cover config already carries the full device
			dev = IdDevice(dev)
		}
		sensors = append(sensors, GenericSensor{
			Device:            dev,
			Id:                sensor.Id(),
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "Signal strength",
			UniqueId:          sensor.UniqueId(),
			UnitOfMeasurement: UNIT_DBM,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_SIGNAL_STRENGTH,
			EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
			EnabledByDefault:  optionalBool(false),
			HasAvailability:   true,
		})
		for i := range known {
			if known[i].Mac == sensor.Mac {
				known[i].SensorIds = append(known[i].SensorIds, sensor.Id())
			}
		}
	}

	return covers, sensors, known
}

// RemovedDevices returns the devices in previous that are not in current.
func RemovedDevices(previous, current []KnownDevice) []KnownDevice {
	present := make(map[string]bool, len(current))
	for _, d := range current {
		present[d.Mac] = true
	}
	var removed []KnownDevice
	for _, d := range previous {
		if !present[d.Mac] {
			removed = append(removed, d)
		}
	}
	return removed
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func shortMac(mac string) string {
	id := MacId(mac)
	if len(id) > 4 {
		return id[len(id)-4:]
	}
	return id
}

func optionalBool(value bool) *bool {
	return &value
}
