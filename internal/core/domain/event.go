package domain

import "fmt"

type SensorUpdateEventMixIn struct {
	Id string `json:"id"`
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type SensorAvailabilityUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

// CoverStateUpdateEvent carries the host view of a cover. Nil fields are
// unknown.
type CoverStateUpdateEvent struct {
	SensorUpdateEventMixIn
	GatewayId         string       `json:"gateway_id"`
	Mac               string       `json:"mac"`
	DeviceClass       string       `json:"device_class"`
	HasTilt           bool         `json:"has_tilt"`
	Available         bool         `json:"available"`
	Closed            *bool        `json:"closed"`
	Position          *int         `json:"position"`
	TiltPosition      *int         `json:"tilt_position"`
	SupportedFeatures CoverFeature `json:"supported_features"`
}

// ensure interface compliance
var _ SensorUpdateEvent = (*CoverStateUpdateEvent)(nil)
