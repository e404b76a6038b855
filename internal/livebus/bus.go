package livebus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Priya8975/minutes-live-sync/internal/domain"
	"github.com/Priya8975/minutes-live-sync/internal/metrics"
	"github.com/google/uuid"
)

// Event is what a handler receives for each delivery.
type Event struct {
	Topic     domain.Topic
	Payload   map[string]any
	Timestamp time.Time
	// Remote is true when the event was emitted by another tab.
	Remote bool
}

// Handler reacts to a live event. For same-tab delivery ctx is the context
// passed to Emit; for cross-tab delivery it is the context given to Start.
type Handler func(ctx context.Context, ev Event)

type subscription struct {
	topic   domain.Topic
	handler Handler
	active  atomic.Bool
}

// Bus delivers live events to handlers in this process and, through its
// Transport, to every other bus attached to the same shared medium.
//
// Same-tab handlers run synchronously inside Emit in subscription order.
// Cross-tab handlers run on the relay goroutine started by Start.
type Bus struct {
	id        string
	transport Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu   sync.RWMutex
	subs map[domain.Topic][]*subscription
}

// New creates a bus. transport may be nil, in which case events stay in
// this process.
func New(transport Transport, logger *slog.Logger, m *metrics.Metrics) *Bus {
	return &Bus{
		id:        uuid.NewString(),
		transport: transport,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		subs:      make(map[domain.Topic][]*subscription),
	}
}

// ID identifies this bus as the origin of the notifications it publishes.
func (b *Bus) ID() string {
	return b.id
}

// Subscribe registers handler for topic and returns a function that removes
// the registration. The returned function is safe to call more than once.
func (b *Bus) Subscribe(topic domain.Topic, handler Handler) func() {
	sub := &subscription{topic: topic, handler: handler}
	sub.active.Store(true)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			b.remove(sub)
		})
	}
}

// AddLiveEventListener is Subscribe under the name the view layer uses.
func (b *Bus) AddLiveEventListener(topic domain.Topic, handler Handler) func() {
	return b.Subscribe(topic, handler)
}

func (b *Bus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.topic]
	for i, s := range list {
		if s == sub {
			next := make([]*subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, sub.topic)
			} else {
				b.subs[sub.topic] = next
			}
			return
		}
	}
}

// Emit delivers payload to every same-tab handler of topic, then writes the
// cross-tab marker. Transport failures are logged and otherwise ignored.
func (b *Bus) Emit(ctx context.Context, topic domain.Topic, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	now := b.now()
	b.metrics.Emit(topic.ShortName())

	b.dispatch(ctx, Event{Topic: topic, Payload: payload, Timestamp: now})
	b.publish(ctx, domain.Notification{
		Topic:     topic,
		Payload:   payload,
		Timestamp: now,
		Origin:    b.id,
	})
}

// EmitIssuesUpdated announces that issue records changed.
func (b *Bus) EmitIssuesUpdated(ctx context.Context, payload map[string]any) {
	b.Emit(ctx, domain.TopicIssuesUpdated, payload)
}

// EmitNotificationsUpdated announces that notification records changed.
func (b *Bus) EmitNotificationsUpdated(ctx context.Context, payload map[string]any) {
	b.Emit(ctx, domain.TopicNotificationsUpdated, payload)
}

func (b *Bus) publish(ctx context.Context, n domain.Notification) {
	if b.transport == nil {
		return
	}
	if _, ok := n.Topic.StorageKey(); !ok {
		return
	}
	if err := b.transport.Publish(ctx, n); err != nil {
		b.metrics.PublishFailed(n.Topic.ShortName())
		b.logger.Warn("cross-tab publish failed",
			"topic", n.Topic,
			"error", err,
		)
	}
}

// dispatch invokes the handlers registered for ev.Topic at the time of the
// call. A handler unsubscribed mid-dispatch is skipped if not yet reached.
func (b *Bus) dispatch(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := b.subs[ev.Topic]
	b.mu.RUnlock()

	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		b.invoke(ctx, sub, ev)
	}
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.HandlerPanic(ev.Topic.ShortName())
			b.logger.Error("live event handler panicked",
				"topic", ev.Topic,
				"remote", ev.Remote,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	b.metrics.Delivered(ev.Topic.ShortName(), ev.Remote)
	sub.handler(ctx, ev)
}

// Start attaches the bus to its transport and relays notifications from
// other tabs until ctx is cancelled. It returns once the subscription is
// established; an error means only same-tab delivery is available.
func (b *Bus) Start(ctx context.Context) error {
	if b.transport == nil {
		return nil
	}

	listener, err := b.transport.Listen(ctx)
	if err != nil {
		return fmt.Errorf("attaching to cross-tab transport: %w", err)
	}

	go b.relay(ctx, listener)
	return nil
}

func (b *Bus) relay(ctx context.Context, listener Listener) {
	defer listener.Close()

	b.logger.Info("cross-tab relay started", "bus_id", b.id)
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("cross-tab relay stopping", "bus_id", b.id)
			return
		case n, ok := <-listener.Notifications():
			if !ok {
				b.logger.Warn("cross-tab transport closed", "bus_id", b.id)
				return
			}
			// The shared medium never signals the tab that wrote it.
			if n.Origin == b.id {
				continue
			}
			b.metrics.RemoteReceived(n.Topic.ShortName())

			ts := n.Timestamp
			if ts.IsZero() {
				ts = b.now()
			}
			b.dispatch(ctx, Event{
				Topic:     n.Topic,
				Payload:   n.Payload,
				Timestamp: ts,
				Remote:    true,
			})
		}
	}
}
