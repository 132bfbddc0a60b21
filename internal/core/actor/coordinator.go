package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/motion2mqtt/internal/config"
	"github.com/berfenger/motion2mqtt/internal/core/domain"
	"github.com/berfenger/motion2mqtt/internal/core/events"
	"github.com/berfenger/motion2mqtt/internal/core/service"
	. "github.com/berfenger/motion2mqtt/internal/util/actorutil"
	"github.com/berfenger/motion2mqtt/pkg/motion_blinds"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// CoordinatorActor keeps the latest snapshot of one gateway and turns it into
// entity state. It also validates cover commands before they reach the
// gateway actor.
type CoordinatorActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	config       *config.Config
	gatewayId    string
	gatewayActor *actor.PID
	eventStream  *eventstream.EventStream
	entities     domain.GatewayEntities
	snapshot     *domain.Snapshot
	polling      bool
	pollSentAt   time.Time

	moving             map[string]*movingCover
	movingTimerPending bool

	logger *zap.Logger
}

// movingCover tracks the fast polls requested after a command on a cover.
type movingCover struct {
	polls    uint32
	previous []*int
	wifi     bool
}

type movingTick struct {
}

func NewCoordinatorActor(config *config.Config, gatewayId string, gatewayActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *CoordinatorActor {
	act := &CoordinatorActor{
		config:       config,
		gatewayId:    gatewayId,
		gatewayActor: gatewayActor,
		eventStream:  eventStream,
		moving:       map[string]*movingCover{},
		behavior:     actor.NewBehavior(),
		stash:        &Stash{},
		logger:       ActorLogger(domain.CoordinatorActorId(gatewayId), logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *CoordinatorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *CoordinatorActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("coordinator@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.gatewayActor, domain.GetDevicesInfoRequest{}, state.requestTimeout()), func(err error) any {
			return domain.GetDevicesInfoResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.behavior.Become(state.WaitingInfoReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("coordinator@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *CoordinatorActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDevicesInfoResponse:
		if msg.HasResponseError() {
			// let the supervisor retry the setup
			state.logger.Error("coordinator@waitingInfo GetDevicesInfoResponse", zap.Error(msg.GetResponseError()))
			panic(msg.GetResponseError())
		}
		state.logger.Debug("coordinator@waitingInfo GetDevicesInfoResponse")
		state.entities = service.SetupEntities(state.gatewayId, *msg.Gateway, state.logger)

		ctx.Send(ctx.Parent(), domain.GatewayReadyEvent{
			Coordinator: domain.RefOf(ctx.Self()),
			Entities:    state.entities,
		})

		// first refresh right away
		ctx.Send(ctx.Self(), domain.PollTick{})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.CoordinatorActorId(state.gatewayId),
			Healthy: false,
			State:   "starting",
		})
	default:
		state.logger.Debug("coordinator@waitingInfo: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *CoordinatorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("coordinator@default: ActorHealthRequest")
		st := "idle"
		if state.polling {
			st = "polling"
		}
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.CoordinatorActorId(state.gatewayId),
			Healthy: true,
			State:   st,
		})
	case domain.PollTick:
		state.logger.Debug("coordinator@default tick")
		state.poll(ctx)
	case movingTick:
		state.logger.Debug("coordinator@default moving tick", zap.Int("covers", len(state.moving)))
		state.movingTimerPending = false
		state.poll(ctx)
	case domain.PollGatewayResponse:
		state.polling = false
		if msg.HasResponseError() {
			// keep the last readings, but nothing is available until the gateway answers again
			state.logger.Warn("coordinator@default could not refresh gateway", zap.Error(msg.GetResponseError()))
			state.snapshot = state.snapshot.WithGatewayUnavailable(time.Now())
		} else {
			state.snapshot = msg.Snapshot
		}
		state.publishState()
		state.updateMoving(ctx)
	case domain.CoverCommandRequest:
		state.handleCoverCommand(ctx, msg)
	case domain.GetCoverStatesRequest:
		covers := make([]domain.CoverStateUpdateEvent, 0, len(state.entities.Covers))
		for _, cover := range state.entities.Covers {
			covers = append(covers, events.CoverState(cover, state.snapshot))
		}
		ForRequest(msg).Respond(ctx, domain.GetCoverStatesResponse{
			Covers: covers,
		})
	default:
		state.logger.Debug("coordinator@default: unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// poll queues a refresh on the gateway actor. The reply comes straight back
// to the coordinator, so time spent queued behind commands never counts as a
// gateway failure: the gateway actor times the vendor call itself.
func (state *CoordinatorActor) poll(ctx actor.Context) {
	if state.polling {
		if time.Since(state.pollSentAt) < state.pollStaleAfter() {
			state.logger.Debug("coordinator: refresh already in flight")
			return
		}
		// the gateway actor restarted and lost the request
		state.logger.Warn("coordinator: refresh got no answer, requesting again")
	}
	state.polling = true
	state.pollSentAt = time.Now()
	ctx.Send(state.gatewayActor, domain.PollGatewayRequest{
		ActorRequestMixIn: domain.ActorRequestMixIn{ReplyToRef: domain.RefOf(ctx.Self())},
	})
}

func (state *CoordinatorActor) handleCoverCommand(ctx actor.Context, msg domain.CoverCommandRequest) {
	request := ForRequest(msg)
	cover, ok := state.entities.Cover(msg.EntityId)
	if !ok {
		request.Respond(ctx, domain.CoverCommandResponse{
			ActorResponseMixIn: domain.ErrorResponse(fmt.Errorf("%w: %s", domain.ErrUnknownEntity, msg.EntityId)),
			EntityId:           msg.EntityId,
			Command:            msg.Command,
		})
		return
	}
	if !cover.Supports(msg.Command) {
		state.logger.Warn("coordinator: unsupported command", zap.String("entity", msg.EntityId), zap.String("command", string(msg.Command)))
		request.Respond(ctx, domain.CoverCommandResponse{
			ActorResponseMixIn: domain.ErrorResponse(fmt.Errorf("%w: %s on %s", domain.ErrUnsupportedCommand, msg.Command, msg.EntityId)),
			EntityId:           msg.EntityId,
			Command:            msg.Command,
		})
		return
	}

	state.logger.Info("cover command", zap.String("entity", msg.EntityId), zap.String("command", string(msg.Command)))
	msg.Mac = cover.Mac
	if replyTo := request.ReplyTo(ctx); replyTo != nil {
		msg.ReplyToRef = domain.RefOf(replyTo)
	}
	ctx.Send(state.gatewayActor, msg)

	state.startMoving(ctx, cover)
}

func (state *CoordinatorActor) startMoving(ctx actor.Context, cover domain.CoverEntity) {
	if state.config.MonitorConfig.MovingIntervalMillis == 0 {
		return
	}
	var current *int
	if d, ok := state.snapshot.Device(cover.Mac); ok {
		current = d.Position
	}
	state.moving[cover.Mac] = &movingCover{
		previous: []*int{current},
		wifi:     motion_blinds.IsWiFiDevice(cover.DeviceType),
	}
	state.scheduleMoving(ctx)
}

// updateMoving stops fast polling a cover once its position is unchanged over
// the last three readings, or after the configured number of polls.
func (state *CoordinatorActor) updateMoving(ctx actor.Context) {
	if len(state.moving) == 0 {
		return
	}
	maxPolls := state.config.MonitorConfig.MaxMovingPolls
	for mac, m := range state.moving {
		var current *int
		if d, ok := state.snapshot.Device(mac); ok {
			current = d.Position
		}
		m.polls++
		if (len(m.previous) >= 2 && allEqual(current, m.previous)) || (maxPolls > 0 && m.polls >= maxPolls) {
			state.logger.Debug("coordinator: cover stopped moving", zap.String("mac", mac), zap.Uint32("polls", m.polls))
			delete(state.moving, mac)
			continue
		}
		m.previous = append(m.previous, current)
		if len(m.previous) > 2 {
			m.previous = m.previous[len(m.previous)-2:]
		}
	}
	state.scheduleMoving(ctx)
}

func (state *CoordinatorActor) scheduleMoving(ctx actor.Context) {
	if len(state.moving) == 0 || state.movingTimerPending {
		return
	}
	state.movingTimerPending = true
	state.scheduler.SendOnce(state.movingInterval(), ctx.Self(), movingTick{})
}

// movingInterval is the fastest interval required by the moving covers. WiFi
// blinds answer slower, they get twice the interval.
func (state *CoordinatorActor) movingInterval() time.Duration {
	base := time.Duration(state.config.MonitorConfig.MovingIntervalMillis) * time.Millisecond
	interval := 2 * base
	for _, m := range state.moving {
		if !m.wifi {
			interval = base
			break
		}
	}
	return interval
}

func (state *CoordinatorActor) publishState() {
	for _, ev := range events.SnapshotToUpdateEvents(state.entities, state.snapshot) {
		state.eventStream.Publish(ev)
	}
}

func (state *CoordinatorActor) requestTimeout() time.Duration {
	// leave room for the gateway actor to answer with its own timeout first
	return time.Duration(state.config.CommandTimeoutMillis)*time.Millisecond + time.Second
}

func (state *CoordinatorActor) pollStaleAfter() time.Duration {
	return max(time.Duration(state.config.MonitorConfig.PollIntervalMillis)*time.Millisecond, 10*state.requestTimeout())
}

func allEqual(value *int, others []*int) bool {
	for _, o := range others {
		if (value == nil) != (o == nil) {
			return false
		}
		if value != nil && *value != *o {
			return false
		}
	}
	return true
}
