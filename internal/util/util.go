package util

import (
	"github.com/berfenger/motion2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Gateways: []config.GatewayConfig{
			{
				Id:     "home",
				Host:   "-.-.-.-",
				Key:    "00000000-0000-00",
				Driver: config.GATEWAY_DRIVER_SIMULATED,
			},
		},
		MQTT: config.MQTTConfig{
			Host:              "localhost",
			Port:              1883,
			BaseTopic:         "motion",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis:   60000,
			MovingIntervalMillis: 200,
			MaxMovingPolls:       10,
		},
		CommandTimeoutMillis: 2000,
		Port:                 8080,
	}
}
