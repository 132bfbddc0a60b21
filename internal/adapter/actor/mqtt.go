package actor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/berfenger/motion2mqtt/internal/config"
	"github.com/berfenger/motion2mqtt/internal/core/domain"
	"github.com/berfenger/motion2mqtt/internal/mqtt"
	"github.com/berfenger/motion2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	client         *mqtt.MQTTClient
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	recorder       *MQTTRecorder
	logger         *zap.Logger
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type OnEventStreamMessage struct {
	message any
}

type publishResult struct {
	Error error
	batch *publishBatch
}

// publishBatch answers a request once every message of the batch has been
// acknowledged by the broker. Only the actor goroutine touches it.
type publishBatch struct {
	pending  int
	err      error
	replyTo  *actor.PID
	response func(error) any
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		root := ctx.ActorSystem().Root
		self := ctx.Self()

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			root.Send(self, MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		root := ctx.ActorSystem().Root
		self := ctx.Self()

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		state.subscribeEventStream(ctx)

		// subscribe to MQTT command topic
		state.client.SubscribeToCommandTopics(func(c pahomqtt.Client, m pahomqtt.Message) {
			if cmd := state.commandFromMessage(m.Topic(), string(m.Payload())); cmd != nil {
				root.Send(self, ParsedCommand{Command: cmd})
			}
		}, func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case OnEventStreamMessage:
		for _, raw := range state.event2MQTTMessages(msg.message) {
			state.publish(ctx, raw, nil)
		}
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishHADiscovery")
		request := actorutil.ForRequest(msg)
		messages, err := state.homeAssistantDiscoveryMessages(msg.Sensors, msg.Covers, msg.RemovedDevices)
		if err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
			request.Respond(ctx, domain.PublishDiscoveryResponse{ActorResponseMixIn: domain.ErrorResponse(err)})
			return
		}
		state.publishAll(ctx, messages, request.ReplyTo(ctx), func(err error) any {
			return domain.PublishDiscoveryResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
		})
	case publishResult:
		if msg.Error != nil {
			state.logger.Error("mqtt@default could not publish a message", zap.Error(msg.Error))
		}
		if b := msg.batch; b != nil {
			b.pending--
			if b.err == nil {
				b.err = msg.Error
			}
			if b.pending == 0 && b.replyTo != nil {
				ctx.Send(b.replyTo, b.response(b.err))
			}
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) subscribeEventStream(ctx actor.Context) {
	if state.eventStream == nil || state.eventStreamSub != nil {
		return
	}
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
		root.Send(self, OnEventStreamMessage{
			message: value,
		})
	})
}

func (state *MQTTActor) event2MQTTMessages(event any) []rawMessage {
	switch msg := event.(type) {
	case domain.CoverStateUpdateEvent:
		messages := []rawMessage{
			{
				topic:   state.client.CoverStateTopic(msg.Id),
				message: closed2MQTTState(msg.Closed),
				retain:  true,
			},
		}
		if msg.Position != nil {
			messages = append(messages, rawMessage{
				topic:   state.client.CoverPositionTopic(msg.Id),
				message: strconv.Itoa(*msg.Position),
				retain:  true,
			})
		}
		if msg.HasTilt && msg.TiltPosition != nil {
			messages = append(messages, rawMessage{
				topic:   state.client.CoverTiltTopic(msg.Id),
				message: strconv.Itoa(*msg.TiltPosition),
				retain:  true,
			})
		}
		return append(messages, rawMessage{
			topic:   state.client.CoverAvailabilityTopic(msg.Id),
			message: availability2MQTTPayload(msg.Available),
			retain:  true,
		})
	case domain.FloatSensorUpdateEvent:
		return []rawMessage{{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
		}}
	case domain.SensorAvailabilityUpdateEvent:
		return []rawMessage{{
			topic:   state.client.SensorAvailabilityTopic(msg.Id),
			message: availability2MQTTPayload(msg.Value),
			retain:  true,
		}}
	default:
		return nil
	}
}

// publishAll publishes every message and answers replyTo once the last
// result is in, with the first error seen.
func (state *MQTTActor) publishAll(ctx actor.Context, messages []rawMessage, replyTo *actor.PID, response func(error) any) {
	if len(messages) == 0 {
		if replyTo != nil {
			ctx.Send(replyTo, response(nil))
		}
		return
	}
	batch := &publishBatch{
		pending:  len(messages),
		replyTo:  replyTo,
		response: response,
	}
	for _, msg := range messages {
		state.publish(ctx, msg, batch)
	}
}

func (state *MQTTActor) publish(ctx actor.Context, msg rawMessage, batch *publishBatch) {
	if state.recorder != nil {
		err := state.recorder.record(msg)
		if batch != nil || err != nil {
			ctx.Send(ctx.Self(), publishResult{Error: err, batch: batch})
		}
		return
	}
	state.logger.Sugar().Debugf("mqtt@publish: %s => %s", msg.topic, msg.message)
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.client.Publish(msg.topic, msg.message, 1, msg.retain, func(err error) {
		if batch != nil || err != nil {
			root.Send(self, publishResult{Error: err, batch: batch})
		}
	}, 5*time.Second)
}

// homeAssistantDiscoveryMessages clears the configs of removed devices first,
// then announces the current ones.
func (state *MQTTActor) homeAssistantDiscoveryMessages(sensors []domain.GenericSensor,
	covers []domain.GenericCover, removed []domain.KnownDevice) ([]rawMessage, error) {
	var messages []rawMessage
	for _, dev := range removed {
		for _, topic := range state.client.HADiscoveryRemovalTopics(dev) {
			messages = append(messages, rawMessage{topic: topic, message: "", retain: true})
		}
	}
	for i := range sensors {
		payload, err := json.Marshal(mqtt.GenericSensorToHADiscoveryMessage(state.client, sensors[i]))
		if err != nil {
			return nil, err
		}
		messages = append(messages, rawMessage{topic: state.client.HADiscoverySensorTopic(sensors[i]), message: string(payload), retain: true})
	}
	for i := range covers {
		payload, err := json.Marshal(mqtt.GenericCoverToHADiscoveryMessage(state.client, covers[i]))
		if err != nil {
			return nil, err
		}
		messages = append(messages, rawMessage{topic: state.client.HADiscoveryCoverTopic(covers[i]), message: string(payload), retain: true})
	}
	return messages, nil
}

// commandFromMessage parses a message from the command subscription. Topics
// that are not cover commands are dropped quietly, bad payloads are logged.
func (state *MQTTActor) commandFromMessage(topic, payload string) *mqtt.ParsedMQTTCommand {
	cmd, err := state.client.ParseMQTTCommand(topic, payload)
	switch {
	case errors.Is(err, mqtt.ErrInvalidCommand):
		state.logger.Debug("mqtt: not a command topic", zap.String("topic", topic))
		return nil
	case err != nil:
		state.logger.Warn("mqtt: ignoring command", zap.String("topic", topic), zap.Error(err))
		return nil
	}
	return cmd
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.client != nil && state.recorder == nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

func closed2MQTTState(closed *bool) string {
	switch {
	case closed == nil:
		return mqtt.MQTT_STATE_UNKNOWN
	case *closed:
		return mqtt.MQTT_STATE_CLOSED
	default:
		return mqtt.MQTT_STATE_OPEN
	}
}

func availability2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ONLINE
	} else {
		return mqtt.MQTT_PAYLOAD_OFFLINE
	}
}

// MQTTRecorder collects what a test MQTT actor would have published.
type MQTTRecorder struct {
	mu       sync.Mutex
	messages []RecordedMessage
	failures map[string]error
}

type RecordedMessage struct {
	Topic   string
	Payload string
	Retain  bool
}

// FailTopic makes every publish on topic fail with err. Failed messages are
// not recorded.
func (r *MQTTRecorder) FailTopic(topic string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures == nil {
		r.failures = map[string]error{}
	}
	r.failures[topic] = err
}

func (r *MQTTRecorder) record(msg rawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failures[msg.topic]; ok {
		return err
	}
	r.messages = append(r.messages, RecordedMessage{Topic: msg.topic, Payload: msg.message, Retain: msg.retain})
	return nil
}

func (r *MQTTRecorder) Messages() []RecordedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedMessage(nil), r.messages...)
}

// Last returns the last payload published on topic.
func (r *MQTTRecorder) Last(topic string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].Topic == topic {
			return r.messages[i].Payload, true
		}
	}
	return "", false
}

// Dummy actor
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, recorder *MQTTRecorder, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		eventStream: eventStream,
		recorder:    recorder,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
		state.subscribeEventStream(ctx)
		state.behavior.Become(state.DefaultReceive)
	}
}
