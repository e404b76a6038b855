package livebus

import (
	"context"
	"errors"
	"sync"

	"github.com/Priya8975/minutes-live-sync/internal/domain"
)

// Transport is the shared medium used to signal other tabs. Publish writes a
// marker that every attached listener observes; delivery is best-effort and
// last-write-wins per topic.
type Transport interface {
	Publish(ctx context.Context, n domain.Notification) error
	// Listen attaches a new listener. The subscription is live when Listen
	// returns.
	Listen(ctx context.Context) (Listener, error)
}

// Listener yields notifications written by any participant, including the
// one that owns the listener; the bus filters its own.
type Listener interface {
	Notifications() <-chan domain.Notification
	Close() error
}

var ErrTransportClosed = errors.New("transport closed")

const listenerBuffer = 256

// MemoryTransport is a shared medium for buses living in one process. It
// keeps the last marker per topic key like a key-value store would.
type MemoryTransport struct {
	mu        sync.Mutex
	last      map[string][]byte
	listeners map[*memoryListener]struct{}
	closed    bool
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		last:      make(map[string][]byte),
		listeners: make(map[*memoryListener]struct{}),
	}
}

func (t *MemoryTransport) Publish(ctx context.Context, n domain.Notification) error {
	key, ok := n.Topic.StorageKey()
	if !ok {
		return nil
	}
	data, err := n.EncodeMarker()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	t.last[key] = data

	for l := range t.listeners {
		select {
		case l.ch <- domain.DecodeMarker(n.Topic, data):
		default:
			// Slow listener; it misses this signal.
		}
	}
	return nil
}

func (t *MemoryTransport) Listen(ctx context.Context) (Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportClosed
	}

	l := &memoryListener{t: t, ch: make(chan domain.Notification, listenerBuffer)}
	t.listeners[l] = struct{}{}
	return l, nil
}

// Last returns the most recent marker written for key.
func (t *MemoryTransport) Last(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	data, ok := t.last[key]
	return data, ok
}

// Close detaches every listener.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for l := range t.listeners {
		delete(t.listeners, l)
		close(l.ch)
	}
	return nil
}

type memoryListener struct {
	t  *MemoryTransport
	ch chan domain.Notification
}

func (l *memoryListener) Notifications() <-chan domain.Notification {
	return l.ch
}

func (l *memoryListener) Close() error {
	l.t.mu.Lock()
	defer l.t.mu.Unlock()
	if _, ok := l.t.listeners[l]; ok {
		delete(l.t.listeners, l)
		close(l.ch)
	}
	return nil
}
