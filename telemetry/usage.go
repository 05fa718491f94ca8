// Package telemetry reports product usage events. Reporting is fire and
// forget: events are queued and delivered by a background worker, and a
// full queue drops events instead of blocking the caller.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/teranos/ciconf/logger"
	"github.com/teranos/ciconf/metrics"
	"go.uber.org/zap"
)

// EventInterpolationUsed is emitted the first time a user's include is
// interpolated.
const EventInterpolationUsed = "ci_interpolation_users"

// Event is one usage record.
type Event struct {
	Name   string
	UserID string
	At     time.Time
}

// Sink receives usage events.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Emit(ctx context.Context, event Event) error { return f(ctx, event) }

// LogSink writes events to the structured log.
type LogSink struct {
	Logger *zap.SugaredLogger
}

func (s LogSink) Emit(_ context.Context, event Event) error {
	log := s.Logger
	if log == nil {
		log = logger.ComponentLogger("telemetry")
	}
	log.Infow("Usage event", "event", event.Name, logger.FieldUserID, event.UserID)
	return nil
}

const defaultQueueSize = 256

// UsageTracker reports EventInterpolationUsed once per distinct user.
type UsageTracker struct {
	sink    Sink
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger
	timeNow func() time.Time

	seen  sync.Map
	queue chan Event
	wg    sync.WaitGroup
	once  sync.Once
	done  chan struct{}
}

// NewUsageTracker starts a tracker delivering to sink. Call Close to flush.
func NewUsageTracker(sink Sink, m *metrics.Metrics) *UsageTracker {
	t := &UsageTracker{
		sink:    sink,
		metrics: m,
		logger:  logger.ComponentLogger("telemetry"),
		timeNow: time.Now,
		queue:   make(chan Event, defaultQueueSize),
		done:    make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// Track queues an event for userID unless the user was already seen.
func (t *UsageTracker) Track(userID string) {
	if t == nil || userID == "" {
		return
	}
	if _, loaded := t.seen.LoadOrStore(userID, struct{}{}); loaded {
		return
	}
	t.metrics.InterpolationUser()

	select {
	case <-t.done:
		return
	default:
	}

	event := Event{Name: EventInterpolationUsed, UserID: userID, At: t.timeNow()}
	select {
	case t.queue <- event:
	default:
		t.logger.Warnw("Usage event dropped, queue full", logger.FieldUserID, userID)
	}
}

func (t *UsageTracker) run() {
	defer t.wg.Done()
	for {
		select {
		case event := <-t.queue:
			t.deliver(event)
		case <-t.done:
			// Drain whatever was queued before Close.
			for {
				select {
				case event := <-t.queue:
					t.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (t *UsageTracker) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warnw("Usage sink panicked", "panic", r, logger.FieldUserID, event.UserID)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.sink.Emit(ctx, event); err != nil {
		t.logger.Warnw("Usage event delivery failed", logger.FieldError, err, logger.FieldUserID, event.UserID)
	}
}

// Close stops the worker after delivering queued events.
func (t *UsageTracker) Close() {
	if t == nil {
		return
	}
	t.once.Do(func() { close(t.done) })
	t.wg.Wait()
}
