package session

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Alan-crt/todo-app/domain"
)

// Operation is the kind of mutation a coordinator cycle performs.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// State tracks one mutation cycle: Idle -> Staged -> Committed | RolledBack.
type State string

const (
	StateIdle       State = "idle"
	StateStaged     State = "staged"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
)

// Broadcaster publishes a change event on the live channel. Publication is
// best-effort; failures never affect the mutation's own outcome.
type Broadcaster interface {
	Publish(ctx context.Context, ev domain.Event) error
}

type pendingMutation[T any] struct {
	op       Operation
	state    State
	rollback func()
}

// Coordinator binds the optimistic cache to the authoritative persistence
// call: it stages the hoped-for value, issues the call, then commits the
// authoritative response or rolls back and surfaces the error.
//
// Concurrent mutations on the same key are not queued or merged: the last
// call to land wins, matching the persistence layer's last-write-wins
// behavior. The eventual refetch reconciles any disagreement.
type Coordinator[T any] struct {
	cache     *Cache[T]
	broadcast Broadcaster
	logger    *log.Logger

	mu      sync.Mutex
	pending map[string]*pendingMutation[T]
}

// NewCoordinator creates a coordinator over the given cache. broadcast may be
// nil when the session has no live channel.
func NewCoordinator[T any](cache *Cache[T], broadcast Broadcaster, logger *log.Logger) *Coordinator[T] {
	if cache == nil {
		panic("session.NewCoordinator: cache is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Coordinator[T]{
		cache:     cache,
		broadcast: broadcast,
		logger:    logger,
		pending:   make(map[string]*pendingMutation[T]),
	}
}

// Execute runs one mutation cycle for key. optimistic is staged before the
// call; nil optimistic (delete operations) stages an eviction instead. call
// performs the authoritative persistence operation and returns the value the
// server settled on, or nil for deletions. event, when non-nil, is broadcast
// after a successful call.
//
// On failure the cache is restored to its pre-stage state and the call's
// error is returned unmodified; it is never swallowed.
func (c *Coordinator[T]) Execute(
	ctx context.Context,
	key string,
	op Operation,
	optimistic *T,
	call func(ctx context.Context) (*T, error),
	event *domain.Event,
) (*T, error) {
	prior, hadPrior := c.cache.Get(key)

	var rollback func()
	if hadPrior {
		prev := prior
		rollback = func() { c.cache.Rollback(key, &prev) }
	} else {
		rollback = func() { c.cache.Rollback(key, nil) }
	}

	if optimistic != nil {
		c.cache.Stage(key, *optimistic)
	} else if op == OpDelete {
		c.cache.Evict(key)
	}
	pm := &pendingMutation[T]{op: op, state: StateStaged, rollback: rollback}
	c.track(key, pm)
	defer c.untrack(key, pm)

	result, err := call(ctx)
	if err != nil {
		pm.state = StateRolledBack
		pm.rollback()
		return nil, err
	}

	pm.state = StateCommitted
	if result != nil {
		c.cache.Commit(key, *result)
	} else if op == OpDelete {
		c.cache.Evict(key)
	}

	if event != nil && c.broadcast != nil {
		if perr := c.broadcast.Publish(ctx, *event); perr != nil {
			c.logger.WithFields(log.Fields{
				"event":  event.Type,
				"entity": event.EntityID,
			}).Warnf("broadcast failed: %v", perr)
		}
	}
	return result, nil
}

// PendingState reports the state of the in-flight mutation for key, or
// StateIdle when none is in flight.
func (c *Coordinator[T]) PendingState(key string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pm, ok := c.pending[key]; ok {
		return pm.state
	}
	return StateIdle
}

func (c *Coordinator[T]) track(key string, pm *pendingMutation[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[key] = pm
}

func (c *Coordinator[T]) untrack(key string, pm *pendingMutation[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[key] == pm {
		delete(c.pending, key)
	}
}
