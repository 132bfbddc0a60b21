package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

const (
	GATEWAY_DRIVER_SIMULATED = "simulated"
)

type Config struct {
	LogLevel             zapcore.Level
	Gateway              GatewayConfig   `mapstructure:"gateway"`
	Gateways             []GatewayConfig `mapstructure:"gateways"`
	MQTT                 MQTTConfig      `mapstructure:"mqtt"`
	MonitorConfig        MonitorConfig   `mapstructure:"monitor"`
	CommandTimeoutMillis uint32          `mapstructure:"command_timeout_millis"`
	StorePath            string          `mapstructure:"store_path"`
	Port                 uint            `mapstructure:"port"`
	HttpLog              bool            `mapstructure:"http_log"`
}

type GatewayConfig struct {
	Id     string
	Host   string
	Key    string
	Driver string
}

type MonitorConfig struct {
	PollIntervalMillis   uint32 `mapstructure:"poll_interval_millis"`
	MovingIntervalMillis uint32 `mapstructure:"moving_interval_millis"`
	MaxMovingPolls       uint32 `mapstructure:"max_moving_polls"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

var topicRegexp = regexp.MustCompile("^[a-z0-9_]+$")

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	matches := topicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// ResolveGateways merges the single `gateway` section into the `gateways`
// list and validates every entry. Ids end up in topics and actor names, so
// they follow the topic rules.
func (c *Config) ResolveGateways() error {
	gateways := append([]GatewayConfig(nil), c.Gateways...)
	if c.Gateway.Host != "" || c.Gateway.Driver == GATEWAY_DRIVER_SIMULATED {
		gateways = append(gateways, c.Gateway)
	}
	if len(gateways) == 0 {
		return errors.New("no gateway configured")
	}

	seen := map[string]bool{}
	for i := range gateways {
		gw := &gateways[i]
		if gw.Id == "" {
			gw.Id = fmt.Sprintf("gw%d", i)
		}
		id, err := CheckMQTTTopic(gw.Id)
		if err != nil {
			return fmt.Errorf("invalid gateway id %q: %w", gw.Id, err)
		}
		gw.Id = id
		if seen[id] {
			return fmt.Errorf("duplicated gateway id %q", id)
		}
		seen[id] = true
		if gw.Driver == "" {
			gw.Driver = GATEWAY_DRIVER_SIMULATED
		}
		if gw.Driver != GATEWAY_DRIVER_SIMULATED {
			return fmt.Errorf("gateway %q: unsupported driver %q", id, gw.Driver)
		}
	}
	c.Gateways = gateways
	c.Gateway = GatewayConfig{}
	return nil
}
