package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/ciconf/errors"
	"github.com/teranos/ciconf/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *memorySink) Emit(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memorySink) users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.UserID)
	}
	return out
}

func TestTrackDeduplicatesUsers(t *testing.T) {
	sink := &memorySink{}
	m := metrics.New(nil)
	tracker := NewUsageTracker(sink, m)

	tracker.Track("user-1")
	tracker.Track("user-2")
	tracker.Track("user-1")
	tracker.Track("")
	tracker.Close()

	assert.ElementsMatch(t, []string{"user-1", "user-2"}, sink.users())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InterpolationUsers))

	for _, e := range sink.events {
		assert.Equal(t, EventInterpolationUsed, e.Name)
		assert.False(t, e.At.IsZero())
	}
}

func TestFailingSinkDoesNotPropagate(t *testing.T) {
	tracker := NewUsageTracker(SinkFunc(func(context.Context, Event) error {
		return errors.New("collector down")
	}), nil)
	assert.NotPanics(t, func() {
		tracker.Track("user-1")
		tracker.Close()
	})
}

func TestPanickingSinkIsRecovered(t *testing.T) {
	tracker := NewUsageTracker(SinkFunc(func(context.Context, Event) error {
		panic("boom")
	}), nil)
	tracker.Track("user-1")
	assert.NotPanics(t, tracker.Close)
}

func TestTrackAfterCloseIsDropped(t *testing.T) {
	sink := &memorySink{}
	tracker := NewUsageTracker(sink, nil)
	tracker.Close()
	tracker.Close()

	tracker.Track("late")
	assert.Empty(t, sink.users())
}

func TestNilTracker(t *testing.T) {
	var tracker *UsageTracker
	assert.NotPanics(t, func() {
		tracker.Track("user")
		tracker.Close()
	})
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := LogSink{Logger: zap.New(core).Sugar()}

	require.NoError(t, sink.Emit(context.Background(), Event{Name: EventInterpolationUsed, UserID: "u"}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "u", logs.All()[0].ContextMap()["user_id"])
}
