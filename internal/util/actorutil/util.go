package actorutil

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/berfenger/motion2mqtt/internal/core/domain"
	"github.com/berfenger/motion2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

// tilt payloads at or above this value open the slats
const TILT_OPEN_THRESHOLD = 50

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	var command domain.CoverCommand
	switch cmd.Command {
	case mqtt.COMMAND_COVER:
		switch cmd.Payload {
		case mqtt.MQTT_PAYLOAD_OPEN:
			command = domain.COVER_COMMAND_OPEN
		case mqtt.MQTT_PAYLOAD_CLOSE:
			command = domain.COVER_COMMAND_CLOSE
		case mqtt.MQTT_PAYLOAD_STOP:
			command = domain.COVER_COMMAND_STOP
		default:
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownCommand, cmd.Payload)
		}
	case mqtt.COMMAND_COVER_TILT:
		value, err := strconv.ParseFloat(cmd.Payload, 64)
		if err != nil {
			return nil, err
		}
		if value >= TILT_OPEN_THRESHOLD {
			command = domain.COVER_COMMAND_OPEN_TILT
		} else {
			command = domain.COVER_COMMAND_CLOSE_TILT
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownCommand, cmd.Command)
	}
	return domain.CoverCommandRequest{
		EntityId: cmd.DeviceId,
		Command:  command,
	}, nil
}
