// Package notify delivers best-effort notifications about approval activity.
//
// Delivery never blocks or fails the operation that triggered it: events go
// through a bounded queue and sink errors are logged and counted.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fruittrace/internal/logging"
	"fruittrace/internal/model"

	"github.com/google/uuid"
)

// Event types
const (
	EventRequestSubmitted = "approval_request.submitted"
	EventRequestReviewed  = "approval_request.reviewed"
	EventDirectApplied    = "product.direct_applied"
)

// Event describes something admins may want to hear about.
type Event struct {
	Type      string            `json:"type"`
	RequestID uuid.UUID         `json:"request_id"`
	Kind      model.RequestKind `json:"request_type"`
	ProductID *uuid.UUID        `json:"product_id,omitempty"`
	Actor     uuid.UUID         `json:"actor"`
	Status    string            `json:"status"`
	At        time.Time         `json:"at"`
}

// Subject is a one-line human summary.
func (e Event) Subject() string {
	switch e.Type {
	case EventRequestSubmitted:
		return fmt.Sprintf("New %s request pending approval", e.Kind)
	case EventRequestReviewed:
		return fmt.Sprintf("%s request %s", e.Kind, e.Status)
	case EventDirectApplied:
		return fmt.Sprintf("Product %s applied directly by an admin", e.Kind)
	default:
		return e.Type
	}
}

// actorLabel names the role Actor played in the event.
func (e Event) actorLabel() string {
	switch e.Type {
	case EventRequestSubmitted:
		return "Requested by"
	case EventRequestReviewed:
		return "Reviewed by"
	case EventDirectApplied:
		return "Applied by"
	default:
		return "Actor"
	}
}

// Body is a plain-text description.
func (e Event) Body() string {
	body := fmt.Sprintf("%s\n\nRequest: %s\n%s: %s\nStatus: %s\nAt: %s\n",
		e.Subject(), e.RequestID, e.actorLabel(), e.Actor, e.Status, e.At.UTC().Format(time.RFC3339))
	if e.ProductID != nil {
		body += fmt.Sprintf("Product: %s\n", e.ProductID)
	}
	return body
}

// Notifier is a delivery sink.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, e Event) error
}

// Publisher accepts events without waiting for delivery.
type Publisher interface {
	Publish(e Event)
}

// Observer receives per-sink delivery outcomes.
type Observer interface {
	ObserveNotification(sink string, err error)
}

// Dispatcher fans events out to its sinks on a background goroutine.
type Dispatcher struct {
	sinks    []Notifier
	queue    chan Event
	timeout  time.Duration
	observer Observer

	startOnce sync.Once
	done      chan struct{}

	// mu guards closed and the close of queue against concurrent sends.
	mu     sync.RWMutex
	closed bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize sets how many events may wait for delivery before new ones are dropped.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Event, n)
		}
	}
}

// WithSinkTimeout bounds each sink call.
func WithSinkTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithObserver reports delivery outcomes, e.g. to metrics.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

func NewDispatcher(sinks []Notifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sinks:   sinks,
		queue:   make(chan Event, 128),
		timeout: 10 * time.Second,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the delivery loop. It is safe to call more than once.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// Publish enqueues e. When the queue is full the event is dropped and logged.
func (d *Dispatcher) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		logging.LogKV(logging.LevelWarn, "notification dropped after shutdown", map[string]interface{}{"type": e.Type})
		return
	}
	select {
	case d.queue <- e:
	default:
		logging.LogKV(logging.LevelWarn, "notification queue full, dropping event", map[string]interface{}{
			"type":       e.Type,
			"request_id": e.RequestID.String(),
		})
	}
}

// Close stops accepting events and waits for queued ones to be delivered or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		d.Start()
		close(d.queue)
	}
	d.mu.Unlock()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.queue {
		d.deliver(e)
	}
}

func (d *Dispatcher) deliver(e Event) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := sink.Notify(ctx, e)
		cancel()
		if d.observer != nil {
			d.observer.ObserveNotification(sink.Name(), err)
		}
		if err != nil {
			logging.Error("notification delivery failed", err, map[string]interface{}{
				"sink":       sink.Name(),
				"type":       e.Type,
				"request_id": e.RequestID.String(),
			})
		}
	}
}

// LogNotifier writes events to the structured log.
type LogNotifier struct{}

func (LogNotifier) Name() string { return "log" }

func (LogNotifier) Notify(ctx context.Context, e Event) error {
	fields := map[string]interface{}{
		"type":         e.Type,
		"request_id":   e.RequestID.String(),
		"request_type": string(e.Kind),
		"actor":        e.Actor.String(),
		"status":       e.Status,
	}
	if e.ProductID != nil {
		fields["product_id"] = e.ProductID.String()
	}
	logging.LogKV(logging.LevelInfo, e.Subject(), fields)
	return nil
}
