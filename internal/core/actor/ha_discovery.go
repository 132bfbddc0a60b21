package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/motion2mqtt/internal/config"
	"github.com/berfenger/motion2mqtt/internal/core/domain"
	"github.com/berfenger/motion2mqtt/internal/core/events"
	"github.com/berfenger/motion2mqtt/internal/core/port"
	"github.com/berfenger/motion2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// HADiscoveryActor announces the entities of one gateway to Home Assistant
// every time the gateway gets (re)configured.
type HADiscoveryActor struct {
	config    *config.Config
	behavior  actor.Behavior
	stash     *actorutil.Stash
	gatewayId string
	mqttActor *actor.PID
	store     port.KnownDeviceStore
	pending   []domain.KnownDevice

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, gatewayId string, mqttActor *actor.PID, store port.KnownDeviceStore, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:    config,
		gatewayId: gatewayId,
		mqttActor: mqttActor,
		store:     store,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.HADiscoveryActorId(gatewayId), logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT Actor is not healthy"))
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GatewayReadyEvent:
		state.logger.Debug("hadiscovery@default: GatewayReadyEvent")

		bridgeDevice := events.BridgeDevice(state.config.MQTT.BaseTopic)
		sensors := events.BridgeSensors(bridgeDevice)
		covers, gatewaySensors, known := events.GatewayComponents(bridgeDevice, msg.Entities)
		sensors = append(sensors, gatewaySensors...)

		previous, err := state.store.KnownDevices(state.gatewayId)
		if err != nil {
			state.logger.Error("could not load known devices", zap.Error(err))
		}
		removed := events.RemovedDevices(previous, known)
		for _, dev := range removed {
			state.logger.Info("removing device from discovery", zap.String("mac", dev.Mac))
		}

		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors:        sensors,
			Covers:         covers,
			RemovedDevices: removed,
		}, 5*time.Second), func(err error) any {
			return domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.pending = known
		state.behavior.BecomeStacked(state.WaitingPublishReceive)
	default:
		state.logger.Debug("hadiscovery@default: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) WaitingPublishReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			state.logger.Error("hadiscovery@publish could not publish discovery", zap.Error(msg.GetResponseError()))
		} else if err := state.store.SaveKnownDevices(state.gatewayId, state.pending); err != nil {
			state.logger.Error("could not save known devices", zap.Error(err))
		}
		state.pending = nil
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("hadiscovery@publish: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}
