package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/Alan-crt/todo-app/domain"
)

const (
	defaultReconnectDelay = time.Second
	defaultMaxReconnects  = 10
)

// Listener keeps a session eventually consistent with changes made elsewhere.
// It subscribes to the change-event channel and triggers a full refetch of
// the affected collection for every event received; refetched authoritative
// data always supersedes locally staged guesses. Duplicate deliveries are
// harmless because the refetch is idempotent.
type Listener struct {
	rc      *redis.Client
	channel string
	logger  *log.Logger

	refetchLists func(ctx context.Context) error
	refetchTasks func(ctx context.Context) error

	reconnectDelay time.Duration
	maxReconnects  int

	degraded atomic.Bool
}

// ListenerConfig carries the wiring for a Listener.
type ListenerConfig struct {
	Client  *redis.Client
	Channel string
	Logger  *log.Logger

	// RefetchLists and RefetchTasks reload the affected collection from the
	// authoritative backend. Failures are logged and the listener waits for
	// the next event; they never crash the session.
	RefetchLists func(ctx context.Context) error
	RefetchTasks func(ctx context.Context) error

	// ReconnectDelay and MaxReconnects bound the resubscription policy.
	// Zero values select the defaults.
	ReconnectDelay time.Duration
	MaxReconnects  int
}

// NewListener creates a Listener from the given config.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.Client == nil {
		panic("session.NewListener: redis client is nil")
	}
	if cfg.Channel == "" {
		panic("session.NewListener: channel is empty")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = defaultMaxReconnects
	}
	return &Listener{
		rc:             cfg.Client,
		channel:        cfg.Channel,
		logger:         cfg.Logger,
		refetchLists:   cfg.RefetchLists,
		refetchTasks:   cfg.RefetchTasks,
		reconnectDelay: cfg.ReconnectDelay,
		maxReconnects:  cfg.MaxReconnects,
	}
}

// Degraded reports whether the listener exhausted its reconnect budget and
// stopped. A degraded session should fall back to polling or surface an
// offline indicator.
func (l *Listener) Degraded() bool {
	return l.degraded.Load()
}

// Run subscribes and dispatches events until ctx is cancelled or the
// reconnect budget is exhausted. Each successful receipt resets the budget.
func (l *Listener) Run(ctx context.Context) {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}
		sub := l.rc.Subscribe(ctx, l.channel)
		ch := sub.Channel()

	receive:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				attempts = 0
				l.dispatch(ctx, msg.Payload)
			}
		}
		_ = sub.Close()

		attempts++
		if attempts > l.maxReconnects {
			l.degraded.Store(true)
			l.logger.Errorf("live channel: reconnect budget exhausted after %d attempts", l.maxReconnects)
			return
		}
		l.logger.Warnf("live channel closed, reconnecting (attempt %d/%d)", attempts, l.maxReconnects)
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.reconnectDelay):
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, payload string) {
	var ev domain.Event
	if err := sonic.UnmarshalString(payload, &ev); err != nil {
		l.logger.Errorf("live channel: unable to parse event: %v", err)
		return
	}
	switch {
	case domain.IsListEvent(ev.Type):
		l.refetch(ctx, ev.Type, l.refetchLists)
		// Structural list changes can invalidate task views too
		// (deletes, share revocations), so reload both collections.
		l.refetch(ctx, ev.Type, l.refetchTasks)
	case domain.IsTaskEvent(ev.Type):
		l.refetch(ctx, ev.Type, l.refetchTasks)
	default:
		l.logger.Debugf("live channel: ignoring unknown event type %q", ev.Type)
	}
}

func (l *Listener) refetch(ctx context.Context, eventType string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	if err := fn(ctx); err != nil {
		l.logger.WithField("event", eventType).Errorf("refetch failed: %v", err)
	}
}
