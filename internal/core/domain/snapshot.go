package domain

import (
	"time"

	"github.com/berfenger/motion2mqtt/pkg/motion_blinds"
)

type DeviceSnapshot struct {
	Position  *int
	Angle     *int
	RSSI      *int
	Available bool
}

// Snapshot is the state of one gateway and its blinds at a point in time.
// A Snapshot is never modified once built; every poll produces a new one.
type Snapshot struct {
	GatewayAvailable bool
	GatewayRSSI      *int
	UpdatedAt        time.Time
	devices          map[string]DeviceSnapshot
}

func NewSnapshot(gateway motion_blinds.GatewayStatus, blinds map[string]motion_blinds.BlindStatus, at time.Time) *Snapshot {
	devices := make(map[string]DeviceSnapshot, len(blinds))
	for mac, st := range blinds {
		devices[mac] = DeviceSnapshot{
			Position:  copyInt(st.Position),
			Angle:     copyInt(st.Angle),
			RSSI:      copyInt(st.RSSI),
			Available: st.Available,
		}
	}
	return &Snapshot{
		GatewayAvailable: gateway.Available,
		GatewayRSSI:      copyInt(gateway.RSSI),
		UpdatedAt:        at,
		devices:          devices,
	}
}

func (s *Snapshot) Device(mac string) (DeviceSnapshot, bool) {
	if s == nil {
		return DeviceSnapshot{}, false
	}
	d, ok := s.devices[mac]
	return d, ok
}

// WithGatewayUnavailable returns a copy of s with the gateway flag cleared.
// Device readings are shared, they are read only.
func (s *Snapshot) WithGatewayUnavailable(at time.Time) *Snapshot {
	if s == nil {
		return nil
	}
	return &Snapshot{
		GatewayAvailable: false,
		GatewayRSSI:      s.GatewayRSSI,
		UpdatedAt:        at,
		devices:          s.devices,
	}
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
