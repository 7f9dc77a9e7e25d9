package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/leadflow/leadflow/pkg/events"
	"github.com/leadflow/leadflow/pkg/log"
)

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	logger        *slog.Logger
	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		logger:        log.WithModule("eventbus"),
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

// newEvent returns an empty value of the concrete type of eventType.
func newEvent(eventType events.EventType) (any, bool) {
	switch eventType {
	case events.ExecutionStartedEvent:
		return &events.ExecutionStarted{}, true
	case events.ExecutionCompletedEvent:
		return &events.ExecutionCompleted{}, true
	case events.ExecutionFailedEvent:
		return &events.ExecutionFailed{}, true
	case events.ExecutionCancelledEvent:
		return &events.ExecutionCancelled{}, true
	case events.BehaviorRecordedEvent:
		return &events.BehaviorRecorded{}, true
	case events.MessageReceivedEvent:
		return &events.MessageReceived{}, true
	case events.MessageStatusEvent:
		return &events.MessageStatus{}, true
	default:
		return nil, false
	}
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eb.dispatch(ctx, msg)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	eb.mu.RLock()
	handler, exists := eb.subscriptions[eventType]
	eb.mu.RUnlock()

	if !exists {
		msg.Ack()

		return
	}

	event, ok := newEvent(eventType)
	if !ok {
		eb.logger.WarnContext(ctx, "unknown event type", "event_type", eventType)
		msg.Ack()

		return
	}

	if err := json.Unmarshal(msg.Payload, event); err != nil {
		eb.logger.ErrorContext(ctx, "failed to decode event", "event_type", eventType, "error", err)
		msg.Ack()

		return
	}

	if err := handler(ctx, event); err != nil {
		eb.logger.ErrorContext(ctx, "event handler failed", "event_type", eventType, "error", err)
		msg.Nack()

		return
	}

	msg.Ack()
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
