package api

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/Alan-crt/todo-app/domain"
)

// Publisher fans successful structural mutations out to the live redis
// channel and the durable event journal. Delivery is best-effort by design:
// a failed broadcast never fails the mutation that triggered it, sessions
// reconcile through their next refetch instead.
//
// Events are handed to a worker pool through a buffered channel; when the
// buffer is saturated the event is published inline so the channel stays a
// fast path, not a durability guarantee.
type Publisher struct {
	rc      *redis.Client
	channel string
	journal Journal
	logger  *log.Logger

	jobs           chan domain.Event
	workerWG       sync.WaitGroup
	publishTimeout time.Duration
	handoffTimeout time.Duration

	closeOnce sync.Once
}

// NewPublisher starts the worker pool and returns the publisher. journal may
// be nil when no event journal is configured.
func NewPublisher(rc *redis.Client, channel string, journal Journal, logger *log.Logger) *Publisher {
	if rc == nil {
		panic("api.NewPublisher: redis client is nil")
	}
	if channel == "" {
		panic("api.NewPublisher: channel is empty")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	p := &Publisher{
		rc:             rc,
		channel:        channel,
		journal:        journal,
		logger:         logger,
		publishTimeout: envDur("PUBLISH_TIMEOUT", 30*time.Second),
		handoffTimeout: envDur("PUBLISH_HANDOFF_TIMEOUT", 15*time.Millisecond),
	}

	workers := envInt("PUBLISH_WORKERS", 8)
	buf := envInt("PUBLISH_BUFFER", 1024)
	p.jobs = make(chan domain.Event, buf)
	for i := 0; i < workers; i++ {
		p.workerWG.Add(1)
		go p.worker()
	}
	logger.Infof("event publisher started, workers: %d, buffer: %d, timeout: %v", workers, buf, p.publishTimeout)
	return p
}

// Publish hands the event to the worker pool, falling back to inline
// delivery when the buffer is saturated.
func (p *Publisher) Publish(ctx context.Context, ev domain.Event) error {
	select {
	case p.jobs <- ev:
		return nil
	default:
	}

	timer := time.NewTimer(p.handoffTimeout)
	defer timer.Stop()
	select {
	case p.jobs <- ev:
		return nil
	case <-timer.C:
	}

	p.logger.Warn("publish buffer saturated; delivering inline")
	return p.deliver(ctx, ev)
}

// Close stops the workers after draining buffered events.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
		p.workerWG.Wait()
	})
}

func (p *Publisher) worker() {
	defer p.workerWG.Done()
	for ev := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
		if err := p.deliver(ctx, ev); err != nil {
			p.logger.WithFields(log.Fields{
				"event":  ev.Type,
				"entity": ev.EntityID,
			}).Errorf("event delivery failed: %v", err)
		}
		cancel()
	}
}

func (p *Publisher) deliver(ctx context.Context, ev domain.Event) error {
	payload, err := sonic.Marshal(ev)
	if err != nil {
		return domain.Internal("encode event", err)
	}
	pubErr := p.rc.Publish(ctx, p.channel, payload).Err()

	if p.journal != nil {
		if jerr := p.journal.EnqueueEvents(ctx, []domain.Event{ev}); jerr != nil {
			p.logger.Errorf("event journal append failed: %v", jerr)
		}
	}
	return pubErr
}

func envInt(name string, def int) int {
	if raw := os.Getenv(name); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDur(name string, def time.Duration) time.Duration {
	if raw := os.Getenv(name); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return def
}
