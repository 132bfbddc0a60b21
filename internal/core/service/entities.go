package service

import (
	"github.com/berfenger/motion2mqtt/internal/core/domain"
	"github.com/berfenger/motion2mqtt/pkg/motion_blinds"

	"go.uber.org/zap"
)

// SetupEntities creates the entities of a gateway from its enumerated device
// list: a cover and a signal sensor per blind, and a signal sensor for the
// gateway unless the gateway is itself a WiFi blind.
func SetupEntities(gatewayId string, info motion_blinds.GatewayInfo, logger *zap.Logger) domain.GatewayEntities {
	entities := domain.GatewayEntities{
		GatewayId: gatewayId,
		Gateway:   info,
	}

	for _, blind := range info.Blinds {
		cover := domain.NewCoverEntity(gatewayId, blind)
		if cover.Classification.Variant == domain.CoverVariantFallback {
			logger.Warn("unknown blind type, handling it as a roller blind. please report it",
				zap.String("gateway", gatewayId),
				zap.String("mac", blind.Mac),
				zap.String("blind_type", string(blind.BlindType)))
		}
		entities.Covers = append(entities.Covers, cover)
		entities.Sensors = append(entities.Sensors, domain.SignalSensorEntity{
			GatewayId: gatewayId,
			Mac:       blind.Mac,
		})
	}

	if !motion_blinds.IsWiFiDevice(info.DeviceType) {
		entities.Sensors = append(entities.Sensors, domain.SignalSensorEntity{
			GatewayId: gatewayId,
			Mac:       info.Mac,
			Gateway:   true,
		})
	}

	logger.Debug("gateway entities ready",
		zap.String("gateway", gatewayId),
		zap.Int("covers", len(entities.Covers)),
		zap.Int("sensors", len(entities.Sensors)))

	return entities
}
