package actor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/motion2mqtt/internal/core/domain"
	"github.com/berfenger/motion2mqtt/internal/metrics"
	"github.com/berfenger/motion2mqtt/internal/util/actorutil"
	"github.com/berfenger/motion2mqtt/pkg/motion_blinds"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	OPERATION_GET_INFO = "get_info"
	OPERATION_POLL     = "poll"
	OPERATION_COMMAND  = "command"
)

var ErrGatewayTimeout = errors.New("gateway call timed out")

// GatewayActor owns the vendor client of one gateway. Calls are executed one
// at a time: while a call is in flight every other request is stashed and
// served in arrival order once it completes.
type GatewayActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	scheduler *scheduler.TimerScheduler
	gatewayId string
	gateway   motion_blinds.GatewayClient
	timeout   time.Duration
	blinds    []string
	seq       uint64
	call      *gatewayCall
	logger    *zap.Logger
}

type gatewayCall struct {
	seq       uint64
	operation string
	command   domain.CoverCommand
	entityId  string
	replyTo   *actor.PID
	startedAt time.Time
	replied   bool
	// closed by the task goroutine once the vendor call returned
	done     chan struct{}
	doneOnce sync.Once
}

func (c *gatewayCall) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

type backgroundTaskResult struct {
	seq     uint64
	message any
}

type gatewayCallTimeout struct {
	seq uint64
}

func NewGatewayActor(gatewayId string, gateway motion_blinds.GatewayClient, timeout time.Duration, logger *zap.Logger) *GatewayActor {
	act := &GatewayActor{
		gatewayId: gatewayId,
		gateway:   gateway,
		timeout:   timeout,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.GatewayActorId(gatewayId), logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *GatewayActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *GatewayActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("gateway@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		if err := state.gateway.Open(); err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.gateway.Close()
	default:
		state.logger.Debug("gateway@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *GatewayActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("gateway@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.GatewayActorId(state.gatewayId),
			Healthy: true,
			State:   "idle",
		})
	case domain.GetDevicesInfoRequest, domain.PollGatewayRequest, domain.CoverCommandRequest:
		if state.dispatch(ctx, msg, ctx.Sender()) {
			state.behavior.BecomeStacked(state.WaitingGateway)
		}
	case *actor.Stopping, *actor.Restarting:
		state.gateway.Close()
	default:
		state.logger.Debug("gateway@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *GatewayActor) WaitingGateway(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		if state.call == nil || msg.seq != state.call.seq {
			return
		}
		state.logger.Debug("gateway@WaitingGateway backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		state.complete(ctx, msg.message)
		state.next(ctx)
	case gatewayCallTimeout:
		if state.call == nil || msg.seq != state.call.seq || state.call.replied {
			return
		}
		// the vendor call keeps the lock until it returns, only the caller is released
		state.logger.Warn("gateway call timed out", zap.String("operation", state.call.operation))
		state.reply(ctx, state.errorResponse(ErrGatewayTimeout))
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.GatewayActorId(state.gatewayId),
			Healthy: true,
			State:   "waiting",
		})
	case *actor.Stopping, *actor.Restarting:
		state.closeAfterCall()
	default:
		state.logger.Debug("gateway@WaitingGateway stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// closeAfterCall closes the client once the running vendor call returned.
func (state *GatewayActor) closeAfterCall() {
	if call := state.call; call != nil {
		state.logger.Debug("gateway: waiting for the running call before closing", zap.String("operation", call.operation))
		<-call.done
	}
	state.gateway.Close()
}

// next starts the oldest stashed call or releases the lock.
func (state *GatewayActor) next(ctx actor.Context) {
	state.call = nil
	for {
		msg, sender, ok := state.stash.Next()
		if !ok {
			state.behavior.UnbecomeStacked()
			return
		}
		if state.dispatch(ctx, msg, sender) {
			return
		}
	}
}

// dispatch starts the vendor call for msg in the background. It returns false
// when msg is not a gateway call.
func (state *GatewayActor) dispatch(ctx actor.Context, msg any, sender *actor.PID) bool {
	var call *gatewayCall
	var task *actorutil.SafeBackgroundTask[backgroundTaskResult]

	state.seq++
	seq := state.seq
	call = &gatewayCall{seq: seq, done: make(chan struct{})}
	wrap := func(message any) *backgroundTaskResult {
		call.finish()
		return &backgroundTaskResult{seq: seq, message: message}
	}

	switch msg := msg.(type) {
	case domain.GetDevicesInfoRequest:
		state.logger.Debug("gateway: GetDevicesInfoRequest")
		call.operation, call.replyTo = OPERATION_GET_INFO, replyTarget(msg, sender)
		task = actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getDevicesInfo),
			func(r *domain.GetDevicesInfoResponse) *backgroundTaskResult { return wrap(*r) })
	case domain.PollGatewayRequest:
		state.logger.Debug("gateway: PollGatewayRequest")
		call.operation, call.replyTo = OPERATION_POLL, replyTarget(msg, sender)
		blinds := append([]string(nil), state.blinds...)
		task = actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.PollGatewayResponse, error) {
			return state.poll(blinds)
		}), func(r *domain.PollGatewayResponse) *backgroundTaskResult { return wrap(*r) })
	case domain.CoverCommandRequest:
		state.logger.Debug("gateway: CoverCommandRequest", zap.String("mac", msg.Mac), zap.String("command", string(msg.Command)))
		call.operation, call.replyTo = OPERATION_COMMAND, replyTarget(msg, sender)
		call.command, call.entityId = msg.Command, msg.EntityId
		task = actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.CoverCommandResponse, error) {
			return state.command(msg)
		}), func(r *domain.CoverCommandResponse) *backgroundTaskResult { return wrap(*r) })
	default:
		state.logger.Debug("gateway: not a gateway call", zap.String("type", fmt.Sprintf("%T", msg)))
		return false
	}

	call.startedAt = time.Now()
	state.call = call
	task.Recover(func(err error) backgroundTaskResult {
		return *wrap(state.errorResponseFor(call, err))
	}).PipeTo(ctx.Self())
	if state.timeout > 0 {
		state.scheduler.SendOnce(state.timeout, ctx.Self(), gatewayCallTimeout{seq: seq})
	}
	return true
}

// complete runs on the actor once the vendor call returned.
func (state *GatewayActor) complete(ctx actor.Context, message any) {
	call := state.call
	metrics.GatewayCallSeconds.WithLabelValues(state.gatewayId, call.operation).Observe(time.Since(call.startedAt).Seconds())

	switch resp := message.(type) {
	case domain.GetDevicesInfoResponse:
		if !resp.HasResponseError() && resp.Gateway != nil {
			state.blinds = state.blinds[:0]
			for _, b := range resp.Gateway.Blinds {
				state.blinds = append(state.blinds, b.Mac)
			}
		}
	case domain.PollGatewayResponse:
		metrics.PollsTotal.WithLabelValues(state.gatewayId, metrics.Result(resp.GetResponseError())).Inc()
		available := 0.0
		if resp.Snapshot != nil && resp.Snapshot.GatewayAvailable {
			available = 1
		}
		metrics.GatewayAvailable.WithLabelValues(state.gatewayId).Set(available)
	case domain.CoverCommandResponse:
		metrics.CommandsTotal.WithLabelValues(state.gatewayId, string(call.command), metrics.Result(resp.GetResponseError())).Inc()
	}

	if !call.replied {
		state.reply(ctx, message)
	}
}

func (state *GatewayActor) reply(ctx actor.Context, message any) {
	state.call.replied = true
	if state.call.replyTo != nil {
		ctx.Send(state.call.replyTo, message)
	}
}

func (state *GatewayActor) errorResponse(err error) any {
	return state.errorResponseFor(state.call, err)
}

func (state *GatewayActor) errorResponseFor(call *gatewayCall, err error) any {
	switch call.operation {
	case OPERATION_GET_INFO:
		return domain.GetDevicesInfoResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
	case OPERATION_POLL:
		return domain.PollGatewayResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
	default:
		return domain.CoverCommandResponse{ActorResponseMixIn: domain.ErrorResponse(err), EntityId: call.entityId, Command: call.command}
	}
}

func (state *GatewayActor) getDevicesInfo() (*domain.GetDevicesInfoResponse, error) {
	info, err := state.gateway.GetInfo()
	if err != nil {
		state.logger.Error("could not get gateway info", zap.Error(err))
		return nil, err
	}
	return &domain.GetDevicesInfoResponse{
		Gateway: info,
	}, nil
}

func (state *GatewayActor) poll(blinds []string) (*domain.PollGatewayResponse, error) {
	status, err := state.gateway.Update()
	if err != nil {
		state.logger.Warn("could not refresh gateway", zap.Error(err))
		return nil, err
	}
	statuses := make(map[string]motion_blinds.BlindStatus, len(blinds))
	for _, mac := range blinds {
		client, err := state.gateway.Blind(mac)
		if err != nil {
			state.logger.Warn("blind not found", zap.String("mac", mac), zap.Error(err))
			continue
		}
		st, err := client.Update()
		if err != nil {
			// left out of the snapshot, so it reads unavailable
			state.logger.Warn("could not refresh blind", zap.String("mac", mac), zap.Error(err))
			continue
		}
		statuses[mac] = *st
	}
	return &domain.PollGatewayResponse{
		Snapshot: domain.NewSnapshot(*status, statuses, time.Now()),
	}, nil
}

func (state *GatewayActor) command(req domain.CoverCommandRequest) (*domain.CoverCommandResponse, error) {
	client, err := state.gateway.Blind(req.Mac)
	if err != nil {
		return nil, err
	}
	switch req.Command {
	case domain.COVER_COMMAND_OPEN:
		err = client.Open()
	case domain.COVER_COMMAND_CLOSE:
		err = client.Close()
	case domain.COVER_COMMAND_STOP:
		err = client.Stop()
	case domain.COVER_COMMAND_OPEN_TILT:
		err = client.JogUp()
	case domain.COVER_COMMAND_CLOSE_TILT:
		err = client.JogDown()
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownCommand, req.Command)
	}
	if err != nil {
		state.logger.Error("cover command failed", zap.String("mac", req.Mac), zap.String("command", string(req.Command)), zap.Error(err))
		return nil, err
	}
	return &domain.CoverCommandResponse{
		EntityId: req.EntityId,
		Command:  req.Command,
	}, nil
}

func replyTarget(req domain.ActorRequest, sender *actor.PID) *actor.PID {
	if req.ReplyTo() != nil {
		return (*actor.PID)(req.ReplyTo())
	}
	return sender
}
