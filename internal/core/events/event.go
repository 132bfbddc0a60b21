package events

import (
	. "github.com/berfenger/motion2mqtt/internal/core/domain"
)

func CoverState(cover CoverEntity, snap *Snapshot) CoverStateUpdateEvent {
	return CoverStateUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: cover.Id(),
		},
		GatewayId:         cover.GatewayId,
		Mac:               cover.Mac,
		DeviceClass:       cover.Classification.DeviceClass,
		HasTilt:           cover.HasTilt(),
		Available:         cover.Available(snap),
		Closed:            cover.IsClosed(snap),
		Position:          cover.CurrentPosition(snap),
		TiltPosition:      cover.CurrentTiltPosition(snap),
		SupportedFeatures: cover.SupportedFeatures(),
	}
}

// SnapshotToUpdateEvents renders every entity of a gateway against snap.
func SnapshotToUpdateEvents(entities GatewayEntities, snap *Snapshot) []any {
	var events []any

	for _, cover := range entities.Covers {
		events = append(events, CoverState(cover, snap))
	}

	for _, sensor := range entities.Sensors {
		events = append(events, SensorAvailabilityUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: sensor.Id(),
			},
			Value: sensor.Available(snap),
		})
		// unknown readings are not published, the host keeps the last one
		if value := sensor.NativeValue(snap); value != nil {
			events = append(events, FloatSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{
					Id: sensor.Id(),
				},
				Value:    float64(*value),
				Decimals: 0,
			})
		}
	}

	return events
}
