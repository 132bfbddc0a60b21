package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/motion2mqtt/internal/adapter/actor"
	"github.com/berfenger/motion2mqtt/internal/config"
	"github.com/berfenger/motion2mqtt/internal/core/actor"
	"github.com/berfenger/motion2mqtt/internal/core/port"
	"github.com/berfenger/motion2mqtt/internal/scheduler"
	"github.com/berfenger/motion2mqtt/internal/server"
	"github.com/berfenger/motion2mqtt/internal/store"
	"github.com/berfenger/motion2mqtt/internal/util/actorutil"
	"github.com/berfenger/motion2mqtt/pkg/motion_blinds"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	logger.Info("starting motion2mqtt", zap.String("version", versioninfo.Short()))

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	knownDevices, closeStore, err := knownDeviceStore(cfg)
	if err != nil {
		logger.Error("could not open store", zap.Error(err))
		return
	}
	defer closeStore()

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	pollScheduler := scheduler.NewQuartzPollScheduler(schedCtx, logger)

	gatewayProv, err := gatewayActorProvider(cfg, logger)
	if err != nil {
		logger.Error("could not create gateway clients", zap.Error(err))
		return
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, gatewayProv, mqttActorProvider(cfg, logger), knownDevices, pollScheduler, logger)
	}, pactor.WithSupervisor(pactor.NewExponentialBackoffStrategy(time.Minute, time.Second)))
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	pollScheduler.Stop(stopCtx)

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => MOTION2MQTT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("MOTION2MQTT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("motion2mqtt")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	if err := cfg.ResolveGateways(); err != nil {
		return nil, err
	}

	// check bounds
	if cfg.MonitorConfig.PollIntervalMillis < 1000 {
		return nil, errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}
	if cfg.CommandTimeoutMillis == 0 {
		return nil, errors.New("config param command_timeout_millis should be > 0")
	}

	return &cfg, nil
}

func gatewayActorProvider(cfg *config.Config, logger *zap.Logger) (actor.GatewayActorProvider, error) {

	// clients outlive actor restarts
	clients := map[string]motion_blinds.GatewayClient{}
	for i, gw := range cfg.Gateways {
		switch gw.Driver {
		case config.GATEWAY_DRIVER_SIMULATED:
			clients[gw.Id] = motion_blinds.CreateSimulatedGateway(uint8(i))
		default:
			return nil, fmt.Errorf("gateway %s: unsupported driver %s", gw.Id, gw.Driver)
		}
	}

	timeout := time.Duration(cfg.CommandTimeoutMillis) * time.Millisecond
	return func(gw config.GatewayConfig) *adactor.GatewayActor {
		return adactor.NewGatewayActor(gw.Id, clients[gw.Id], timeout, logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func knownDeviceStore(cfg *config.Config) (port.KnownDeviceStore, func(), error) {
	if cfg.StorePath == "" {
		return store.NewMemoryStore(), func() {}, nil
	}
	bolt, err := store.NewBoltStore(cfg.StorePath)
	if err != nil {
		return nil, nil, err
	}
	return bolt, func() {
		if err := bolt.Close(); err != nil {
			slog.Error("could not close store", "error", err)
		}
	}, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("gateway.id", "home")
	viper.SetDefault("gateway.host", "")
	viper.SetDefault("gateway.key", "")
	viper.SetDefault("gateway.driver", "")
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.ha_discovery_enable", true)
	viper.SetDefault("mqtt.base_topic", "motion")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("monitor.poll_interval_millis", 300000)
	viper.SetDefault("monitor.moving_interval_millis", 1500)
	viper.SetDefault("monitor.max_moving_polls", 20)
	viper.SetDefault("command_timeout_millis", 5000)
	viper.SetDefault("store_path", "")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Gateways = append([]config.GatewayConfig(nil), cfg.Gateways...)
	for i := range cfg.Gateways {
		cfg.Gateways[i].Key = "*redacted*"
	}
	cfg.Gateway.Key = "*redacted*"
	slog.Info("Using", "config", cfg)
}
