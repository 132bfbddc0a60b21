package port

import (
	"time"

	"github.com/berfenger/motion2mqtt/internal/core/domain"
)

// KnownDeviceStore keeps the devices announced for each gateway across
// restarts.
type KnownDeviceStore interface {
	KnownDevices(gatewayId string) ([]domain.KnownDevice, error)
	SaveKnownDevices(gatewayId string, devices []domain.KnownDevice) error
}

// PollScheduler runs fn every interval until stopped.
type PollScheduler interface {
	SchedulePoll(name string, interval time.Duration, fn func()) error
}
