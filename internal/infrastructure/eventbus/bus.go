package eventbus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is the minimal contract every published event satisfies.
type Event interface {
	Type() string
	Timestamp() time.Time
	Payload() any
}

// BaseEvent is the standard Event implementation.
type BaseEvent struct {
	EventType      string
	EventTimestamp time.Time
	EventPayload   any
}

func (e *BaseEvent) Type() string         { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time { return e.EventTimestamp }
func (e *BaseEvent) Payload() any         { return e.EventPayload }

// NewEvent stamps a payload with the current time.
func NewEvent(eventType string, payload any) *BaseEvent {
	return &BaseEvent{
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   payload,
	}
}

// Handler processes one event. Handlers run concurrently per event and must
// be safe to call from multiple goroutines.
type Handler func(ctx context.Context, event Event)

// Bus is the event bus contract.
type Bus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType string, handler Handler)
	Unsubscribe(eventType string, handler Handler)
	Close()
}

// InMemoryBus is an async in-process bus. Publish never blocks: when the
// buffer is full the oldest queued event is dropped to make room, and the
// drop is logged.
type InMemoryBus struct {
	mu        sync.RWMutex
	handlers  map[string][]Handler
	eventChan chan eventWrapper
	closed    bool
	logger    *zap.Logger
	wg        sync.WaitGroup
}

type eventWrapper struct {
	ctx   context.Context
	event Event
}

// NewInMemoryBus starts the dispatch goroutine.
func NewInMemoryBus(logger *zap.Logger, bufferSize int) *InMemoryBus {
	bus := &InMemoryBus{
		handlers:  make(map[string][]Handler),
		eventChan: make(chan eventWrapper, bufferSize),
		logger:    logger,
	}

	bus.wg.Add(1)
	go bus.dispatch()

	return bus
}

// Publish enqueues an event without blocking.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	b.mu.RUnlock()

	select {
	case b.eventChan <- eventWrapper{ctx: ctx, event: event}:
		b.logger.Debug("Event published",
			zap.String("type", event.Type()),
		)
	default:
		// Buffer full: discard the oldest queued event, then enqueue this one.
		select {
		case <-b.eventChan:
		default:
		}
		select {
		case b.eventChan <- eventWrapper{ctx: ctx, event: event}:
			b.logger.Warn("Event buffer full, dropped oldest event",
				zap.String("type", event.Type()),
			)
		default:
			b.logger.Warn("Event buffer full, dropping event",
				zap.String("type", event.Type()),
			)
		}
	}
}

// Subscribe registers a handler for an event type. "*" matches everything.
func (b *InMemoryBus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", eventType),
	)
}

// Unsubscribe removes the most recently registered handler for the type.
// Go cannot compare function values, so last-registered-wins is the only
// well-defined removal order.
func (b *InMemoryBus) Unsubscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.handlers[eventType]
	if len(handlers) == 0 {
		return
	}

	handlers = handlers[:len(handlers)-1]
	if len(handlers) == 0 {
		delete(b.handlers, eventType)
	} else {
		b.handlers[eventType] = handlers
	}
}

// Close drains the queue and stops dispatch.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.eventChan)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("Event bus closed")
}

func (b *InMemoryBus) dispatch() {
	defer b.wg.Done()

	for wrapper := range b.eventChan {
		b.dispatchEvent(wrapper.ctx, wrapper.event)
	}
}

func (b *InMemoryBus) dispatchEvent(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0)

	if h, ok := b.handlers[event.Type()]; ok {
		handlers = append(handlers, h...)
	}
	if h, ok := b.handlers["*"]; ok {
		handlers = append(handlers, h...)
	}
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Handler panicked",
						zap.String("event_type", event.Type()),
						zap.Any("panic", r),
					)
				}
			}()
			h(ctx, event)
		}(handler)
	}
	wg.Wait()
}

// Event types emitted by the cognitive layer.
const (
	EventAffectChanged = "chetana:affect_changed"
	EventGoalCreated   = "chetana:goal_created"
	EventGoalChanged   = "chetana:goal_changed"

	EventTypeToolExecution = "tool_execution"
	EventTypeError         = "error"
	EventTypeSessionStart  = "session_started"
	EventTypeSessionEnd    = "session_ended"
)

// AffectChangedPayload reports an affect scalar crossing its alert threshold.
type AffectChangedPayload struct {
	SessionID string
	Scalar    string // frustration, confidence, arousal, valence
	Value     float64
	Threshold float64
}

// GoalCreatedPayload reports a new intention.
type GoalCreatedPayload struct {
	SessionID   string
	IntentionID string
	Goal        string
	Priority    string
}

// GoalChangedPayload reports an intention status transition.
type GoalChangedPayload struct {
	SessionID   string
	IntentionID string
	FromStatus  string
	ToStatus    string
	Progress    float64
}

// ToolExecutionPayload reports one tool call outcome.
type ToolExecutionPayload struct {
	SessionID  string
	ToolName   string
	ToolCallID string
	Duration   time.Duration
	Success    bool
	Denied     bool
	DenyRule   string
}

// ErrorPayload reports a component failure.
type ErrorPayload struct {
	SessionID string
	Component string
	Error     string
}
