package actor

import (
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	adactor "github.com/berfenger/motion2mqtt/internal/adapter/actor"
	"github.com/berfenger/motion2mqtt/internal/config"
	"github.com/berfenger/motion2mqtt/internal/core/domain"
	"github.com/berfenger/motion2mqtt/internal/core/port"
	. "github.com/berfenger/motion2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type GatewayActorProvider func(config.GatewayConfig) *adactor.GatewayActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck   healthCheckResult
	eventStream          *eventstream.EventStream
	eventStreamSub       *eventstream.Subscription
	mqttActor            *actor.PID
	gateways             map[string]*gatewayActors
	entityGateway        map[string]string
	coverStates          map[string]domain.CoverStateUpdateEvent
	mqttActorProvider    MQTTActorProvider
	gatewayActorProvider GatewayActorProvider
	store                port.KnownDeviceStore
	pollScheduler        port.PollScheduler
	logger               *zap.Logger
}

type gatewayActors struct {
	gateway     *actor.PID
	coordinator *actor.PID
	discovery   *actor.PID
}

type healthCheckResult struct {
	expected       int
	checksReceived int
	unhealthy      []string
	respondTo      *actor.PID
}

type coverStateUpdate struct {
	event domain.CoverStateUpdateEvent
}

func NewMasterOfPuppetsActor(config config.Config, gatewayActorProvider GatewayActorProvider, mqttActorProvider MQTTActorProvider,
	store port.KnownDeviceStore, pollScheduler port.PollScheduler, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:               config,
		behavior:             actor.NewBehavior(),
		stash:                &Stash{},
		logger:               ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:          &eventstream.EventStream{},
		gateways:             map[string]*gatewayActors{},
		entityGateway:        map[string]string{},
		coverStates:          map[string]domain.CoverStateUpdateEvent{},
		gatewayActorProvider: gatewayActorProvider,
		mqttActorProvider:    mqttActorProvider,
		store:                store,
		pollScheduler:        pollScheduler,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		// cache cover states for the HTTP API
		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			if ev, ok := value.(domain.CoverStateUpdateEvent); ok {
				root.Send(self, coverStateUpdate{event: ev})
			}
		})

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start gateway and coordinator children
		for _, gwConfig := range state.config.Gateways {
			actors, err := state.startGateway(ctx, gwConfig)
			if err != nil {
				panic(err)
			}
			state.gateways[gwConfig.Id] = actors

			if err := state.schedulePoll(ctx, gwConfig.Id, actors.coordinator); err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.startHealthCheck(ctx)
		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GatewayReadyEvent:
		state.onGatewayReady(ctx, msg)
	case adactor.ParsedCommand:
		// redirect parsedCommand to its coordinator
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command == nil {
			return
		}
		cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
		if err != nil {
			state.logger.Warn("master@default invalid command", zap.Error(err))
			return
		}
		if req, ok := cmd.(domain.CoverCommandRequest); ok {
			state.routeCoverCommand(ctx, req, false)
		}
	case domain.CoverCommandRequest:
		state.routeCoverCommand(ctx, msg, true)
	case coverStateUpdate:
		state.coverStates[msg.event.Id] = msg.event
	case domain.GetCoverStatesRequest:
		covers := make([]domain.CoverStateUpdateEvent, 0, len(state.coverStates))
		for _, c := range state.coverStates {
			covers = append(covers, c)
		}
		slices.SortFunc(covers, func(a, b domain.CoverStateUpdateEvent) int {
			return strings.Compare(a.Id, b.Id)
		})
		ForRequest(msg).Respond(ctx, domain.GetCoverStatesResponse{Covers: covers})
	case *actor.Stopping:
		if state.eventStreamSub != nil {
			state.eventStream.Unsubscribe(state.eventStreamSub)
		}
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("who", msg.Who.Id))
	default:
		state.logger.Debug("master@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.logger.Warn("master@healthcheck timeout", zap.Int("received", state.currentHealthCheck.checksReceived))
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx, false)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if !msg.Healthy {
			state.currentHealthCheck.unhealthy = append(state.currentHealthCheck.unhealthy, msg.Id)
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx, true)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	case coverStateUpdate:
		state.coverStates[msg.event.Id] = msg.event
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startHealthCheck(ctx actor.Context) {
	state.currentHealthCheck = healthCheckResult{respondTo: ctx.Sender()}

	check := func(pid *actor.PID, id string) {
		state.currentHealthCheck.expected++
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      id,
				Healthy: false,
			}
		})
	}

	check(state.mqttActor, domain.ACTOR_ID_MQTT)
	for id, actors := range state.gateways {
		check(actors.gateway, domain.GatewayActorId(id))
		check(actors.coordinator, domain.CoordinatorActorId(id))
	}

	ctx.SetReceiveTimeout(1 * time.Second)
}

func (state *MasterOfPuppetsActor) onGatewayReady(ctx actor.Context, msg domain.GatewayReadyEvent) {
	gatewayId := msg.Entities.GatewayId
	state.logger.Info("gateway ready",
		zap.String("gateway", gatewayId),
		zap.String("mac", msg.Entities.Gateway.Mac),
		zap.Int("covers", len(msg.Entities.Covers)))

	for entityId, gw := range state.entityGateway {
		if gw == gatewayId {
			delete(state.entityGateway, entityId)
		}
	}
	for _, cover := range msg.Entities.Covers {
		state.entityGateway[cover.Id()] = gatewayId
	}

	if !state.config.MQTT.HADiscoveryEnable {
		return
	}
	actors, ok := state.gateways[gatewayId]
	if !ok {
		return
	}
	if actors.discovery == nil {
		pid, err := state.startHADiscoveryActor(ctx, gatewayId)
		if err != nil {
			state.logger.Error("could not start discovery", zap.String("gateway", gatewayId), zap.Error(err))
			return
		}
		actors.discovery = pid
	}
	ctx.Send(actors.discovery, msg)
}

// routeCoverCommand hands a command to the coordinator owning the entity.
// Forwarded requests keep their sender, so the gateway answers the caller.
func (state *MasterOfPuppetsActor) routeCoverCommand(ctx actor.Context, req domain.CoverCommandRequest, forward bool) {
	gatewayId, ok := state.entityGateway[req.EntityId]
	var actors *gatewayActors
	if ok {
		actors, ok = state.gateways[gatewayId]
	}
	if !ok {
		state.logger.Warn("master: command for unknown entity", zap.String("entity", req.EntityId))
		if forward {
			ForRequest(req).Respond(ctx, domain.CoverCommandResponse{
				ActorResponseMixIn: domain.ErrorResponse(fmt.Errorf("%w: %s", domain.ErrUnknownEntity, req.EntityId)),
				EntityId:           req.EntityId,
				Command:            req.Command,
			})
		}
		return
	}
	if forward {
		ctx.Forward(actors.coordinator)
	} else {
		ctx.Send(actors.coordinator, req)
	}
}

func (state *MasterOfPuppetsActor) schedulePoll(ctx actor.Context, gatewayId string, coordinator *actor.PID) error {
	if state.pollScheduler == nil || state.config.MonitorConfig.PollIntervalMillis == 0 {
		return nil
	}
	root := ctx.ActorSystem().Root
	return state.pollScheduler.SchedulePoll(gatewayId, time.Duration(state.config.MonitorConfig.PollIntervalMillis)*time.Millisecond, func() {
		root.Send(coordinator, domain.PollTick{})
	})
}

func (state *MasterOfPuppetsActor) startGateway(ctx actor.Context, gwConfig config.GatewayConfig) (*gatewayActors, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	gatewayProps := actor.PropsFromProducer(func() actor.Actor {
		return state.gatewayActorProvider(gwConfig)
	}, actor.WithSupervisor(supervisor))
	gatewayPID, err := ctx.SpawnNamed(gatewayProps, domain.GatewayActorId(gwConfig.Id))
	if err != nil {
		return nil, err
	}

	coordinatorSupervisor := actor.NewExponentialBackoffStrategy(30*time.Second, 1*time.Second)

	coordinatorProps := actor.PropsFromProducer(func() actor.Actor {
		return NewCoordinatorActor(&state.config, gwConfig.Id, gatewayPID, state.eventStream, state.logger)
	}, actor.WithSupervisor(coordinatorSupervisor))
	coordinatorPID, err := ctx.SpawnNamed(coordinatorProps, domain.CoordinatorActorId(gwConfig.Id))
	if err != nil {
		return nil, err
	}

	return &gatewayActors{
		gateway:     gatewayPID,
		coordinator: coordinatorPID,
	}, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context, gatewayId string) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, gatewayId, state.mqttActor, state.store, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.HADiscoveryActorId(gatewayId))
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.expected
}

func (state *healthCheckResult) respond(ctx actor.Context, complete bool) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: complete && len(state.unhealthy) == 0,
	}
	if len(state.unhealthy) > 0 {
		resp.State = fmt.Sprintf("unhealthy: %s", strings.Join(state.unhealthy, ", "))
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
