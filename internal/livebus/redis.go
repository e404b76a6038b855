package livebus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Priya8975/minutes-live-sync/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisTransport signals other tabs through Redis. Each publish sets the
// topic's marker key and publishes the same bytes on a channel named after
// the key, so late readers can inspect the last marker and live listeners get
// a change notification.
type RedisTransport struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisTransport(client *redis.Client, logger *slog.Logger) *RedisTransport {
	return &RedisTransport{client: client, logger: logger}
}

func (t *RedisTransport) Publish(ctx context.Context, n domain.Notification) error {
	key, ok := n.Topic.StorageKey()
	if !ok {
		return nil
	}
	data, err := n.EncodeMarker()
	if err != nil {
		return fmt.Errorf("encoding marker: %w", err)
	}

	pipe := t.client.Pipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.Publish(ctx, key, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing marker %s: %w", key, err)
	}
	return nil
}

func (t *RedisTransport) Listen(ctx context.Context) (Listener, error) {
	channels := make([]string, 0, len(domain.Topics))
	for _, topic := range domain.Topics {
		key, _ := topic.StorageKey()
		channels = append(channels, key)
	}

	pubsub := t.client.Subscribe(ctx, channels...)
	// Wait for the subscription confirmation so nothing published after
	// Listen returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to marker channels: %w", err)
	}

	l := &redisListener{
		pubsub: pubsub,
		out:    make(chan domain.Notification, listenerBuffer),
		done:   make(chan struct{}),
		logger: t.logger,
	}
	go l.pump()
	return l, nil
}

type redisListener struct {
	pubsub *redis.PubSub
	out    chan domain.Notification
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (l *redisListener) pump() {
	defer close(l.out)

	for msg := range l.pubsub.Channel() {
		topic, ok := domain.TopicForKey(msg.Channel)
		if !ok {
			continue
		}
		n := domain.DecodeMarker(topic, []byte(msg.Payload))

		select {
		case l.out <- n:
		case <-l.done:
			return
		}
	}
}

func (l *redisListener) Notifications() <-chan domain.Notification {
	return l.out
}

func (l *redisListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		if err = l.pubsub.Close(); err != nil {
			l.logger.Debug("closing marker subscription", "error", err)
		}
	})
	return err
}
