// Package core holds the per-session mock state aggregate, typed record
// helpers over the entity store, the clock abstraction, metrics exporters, and
// storage backend selection.
package core

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cloudmock/pkg/domain"
)

// MockState is the aggregate root for one session or test: the entity store
// plus the clock that gates event visibility. It is passed by reference into
// every handler factory and discarded at teardown.
type MockState struct {
	ID      uuid.UUID
	Store   domain.Store
	Clock   Clock
	Log     logrus.FieldLogger
	Metrics MetricsRecorder
	// EventDelay spaces the steps of lifecycle event sequences.
	EventDelay time.Duration

	session *SessionClock
}

// Option customises a MockState.
type Option func(*MockState)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(s *MockState) {
		if c != nil {
			s.Clock = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *MockState) {
		if l != nil {
			s.Log = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *MockState) {
		if m != nil {
			s.Metrics = m
		}
	}
}

// WithEventDelay sets the spacing between lifecycle event steps.
func WithEventDelay(d time.Duration) Option {
	return func(s *MockState) {
		if d >= 0 {
			s.EventDelay = d
		}
	}
}

// NewMockState binds a fresh session id to store.
func NewMockState(store domain.Store, opts ...Option) *MockState {
	s := &MockState{
		ID:      uuid.New(),
		Store:   store,
		Clock:   RealClock{},
		Log:     NullLogger(),
		Metrics: NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Log = s.Log.WithField("session", s.ID.String())
	s.session = NewSessionClock(s.Clock)
	s.Clock = s.session
	return s
}

// Close cancels every pending event continuation. The store is left open;
// its owner closes it.
func (s *MockState) Close() {
	s.session.StopAll()
}

// NullLogger returns a logger that discards output.
func NullLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
