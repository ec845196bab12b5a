package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event)
	Subscribe(name string, handler EventHandler, types ...EventType) error
}

// DeliveryRecorder observes delivery outcomes per subscriber.
type DeliveryRecorder interface {
	Delivered(subscriber, eventType string)
	Failed(subscriber, eventType, reason string)
}

// Reasons reported to the DeliveryRecorder when an event is not handled.
const (
	ReasonHandlerError = "handler_error"
	ReasonPanic        = "panic"
	ReasonQueueFull    = "queue_full"
	ReasonShutdown     = "shutdown"
)

// ErrRegistryFrozen is returned when subscribing after Start or Close.
var ErrRegistryFrozen = errors.New("events: subscriber registry is frozen")

// NotifierOptions tunes delivery.
type NotifierOptions struct {
	// QueueSize bounds the backlog of each subscriber.
	QueueSize int
	// MaxAttempts is the number of times a failing handler is invoked per event.
	MaxAttempts    int
	RetryBackoff   time.Duration
	HandlerTimeout time.Duration
	Recorder       DeliveryRecorder
}

// Notifier fans lifecycle events out to subscribers without blocking the
// publisher. Each subscriber owns a FIFO queue drained by one goroutine, so a
// subscriber sees events in publication order. Events still queued when the
// process exits are lost.
type Notifier struct {
	logger *zap.Logger
	opts   NotifierOptions

	mu          sync.RWMutex
	subscribers []*subscriber
	started     bool
	closed      bool
	wg          sync.WaitGroup
}

type subscriber struct {
	name    string
	handler EventHandler
	types   map[EventType]struct{}
	queue   chan queuedEvent
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("subscriber panicked: %v", p.value)
}

// NewNotifier creates a notifier with an empty subscriber registry.
func NewNotifier(logger *zap.Logger, opts NotifierOptions) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	return &Notifier{
		logger: logger.Named("notifier"),
		opts:   opts,
	}
}

// Subscribe registers a handler for the given event types. Registration is
// only allowed before Start.
func (n *Notifier) Subscribe(name string, handler EventHandler, types ...EventType) error {
	if handler == nil {
		return fmt.Errorf("events: subscriber %q has nil handler", name)
	}
	if len(types) == 0 {
		return fmt.Errorf("events: subscriber %q registered without event types", name)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started || n.closed {
		return ErrRegistryFrozen
	}

	set := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	n.subscribers = append(n.subscribers, &subscriber{
		name:    name,
		handler: handler,
		types:   set,
		queue:   make(chan queuedEvent, n.opts.QueueSize),
	})
	return nil
}

// Start freezes the registry and launches one delivery goroutine per subscriber.
func (n *Notifier) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started || n.closed {
		return
	}
	n.started = true
	for _, sub := range n.subscribers {
		n.wg.Add(1)
		go n.run(sub)
	}
	n.logger.Info("notifier started", zap.Int("subscribers", len(n.subscribers)))
}

// Publish enqueues the event for every interested subscriber and returns
// immediately. Delivery problems are logged and recorded, never returned.
func (n *Notifier) Publish(ctx context.Context, event Event) {
	if ctx == nil {
		ctx = context.Background()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	detached := context.WithoutCancel(ctx)

	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, sub := range n.subscribers {
		if _, ok := sub.types[event.Type]; !ok {
			continue
		}
		if n.closed {
			n.reportLoss(sub, event, ReasonShutdown)
			continue
		}
		select {
		case sub.queue <- queuedEvent{ctx: detached, event: event}:
		default:
			n.reportLoss(sub, event, ReasonQueueFull)
		}
	}
}

// Close stops intake and waits for queued events to be delivered until ctx
// expires. Undelivered events are reported as lost.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	started := n.started
	for _, sub := range n.subscribers {
		close(sub.queue)
	}
	n.mu.Unlock()

	if !started {
		for _, sub := range n.subscribers {
			for item := range sub.queue {
				n.reportLoss(sub, item.event, ReasonShutdown)
			}
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.logger.Info("notifier drained")
		return nil
	case <-ctx.Done():
		pending := 0
		for _, sub := range n.subscribers {
			pending += len(sub.queue)
		}
		n.logger.Error("notifier closed with undelivered events; audit entries may be lost",
			zap.Int("pending", pending))
		return ctx.Err()
	}
}

func (n *Notifier) run(sub *subscriber) {
	defer n.wg.Done()
	for item := range sub.queue {
		n.deliver(sub, item)
	}
}

func (n *Notifier) deliver(sub *subscriber, item queuedEvent) {
	var err error
	attempts := 0
	for attempts < n.opts.MaxAttempts {
		attempts++
		err = n.invoke(sub, item)
		if err == nil {
			if n.opts.Recorder != nil {
				n.opts.Recorder.Delivered(sub.name, string(item.event.Type))
			}
			return
		}
		var pe *panicError
		if errors.As(err, &pe) {
			break
		}
		if attempts < n.opts.MaxAttempts && n.opts.RetryBackoff > 0 {
			time.Sleep(n.opts.RetryBackoff * time.Duration(attempts))
		}
	}

	reason := ReasonHandlerError
	var pe *panicError
	if errors.As(err, &pe) {
		reason = ReasonPanic
	}
	n.logger.Error("lifecycle event delivery failed",
		zap.String("subscriber", sub.name),
		zap.String("event_id", item.event.ID),
		zap.String("event_type", string(item.event.Type)),
		zap.String("ticket_id", item.event.TicketID),
		zap.Int("attempts", attempts),
		zap.String("reason", reason),
		zap.Error(err))
	if n.opts.Recorder != nil {
		n.opts.Recorder.Failed(sub.name, string(item.event.Type), reason)
	}
}

func (n *Notifier) invoke(sub *subscriber, item queuedEvent) (err error) {
	ctx := item.ctx
	if n.opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.opts.HandlerTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return sub.handler(ctx, item.event)
}

func (n *Notifier) reportLoss(sub *subscriber, event Event, reason string) {
	n.logger.Error("lifecycle event dropped",
		zap.String("subscriber", sub.name),
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("reason", reason))
	if n.opts.Recorder != nil {
		n.opts.Recorder.Failed(sub.name, string(event.Type), reason)
	}
}
