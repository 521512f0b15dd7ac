// Package events schedules simulated asynchronous state transitions. Each
// queued step becomes an append-only event record whose visibility is gated
// by the session clock.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"cloudmock/internal/core"
	"cloudmock/pkg/domain"
)

// Step is one stage of a sequence. Delay is measured from the previous step.
type Step struct {
	Status   domain.EventStatus
	Delay    time.Duration
	Progress bool
}

// Input describes a sequence to queue. Event supplies the shared action,
// entities, message and username; OnComplete, when set, runs once the final
// step is visible.
type Input struct {
	Event      domain.Event
	Sequence   []Step
	OnComplete func(ctx context.Context) error
}

// Sequencer writes event records into the session's events table.
type Sequencer struct {
	state *core.MockState
}

// New returns a sequencer bound to state.
func New(state *core.MockState) *Sequencer {
	return &Sequencer{state: state}
}

// Queue inserts one record per step. Step i becomes visible at
// now + sum(delay[0..i]), so steps surface in declaration order. Queueing
// cannot be cancelled; continuation errors are logged, not returned.
func (s *Sequencer) Queue(ctx context.Context, in Input) ([]domain.Event, error) {
	if len(in.Sequence) == 0 {
		return nil, fmt.Errorf("queue %s: empty sequence", in.Event.Action)
	}
	now := s.state.Clock.Now()
	var offset time.Duration
	out := make([]domain.Event, 0, len(in.Sequence))
	for i, step := range in.Sequence {
		if step.Delay > 0 {
			offset += step.Delay
		}
		ev := in.Event
		ev.ID = 0
		ev.Status = step.Status
		ev.PercentComplete = percentFor(step, i, len(in.Sequence))
		ev.VisibleAt = now.Add(offset)
		ev.Created = ev.VisibleAt
		if ev.Username == "" {
			ev.Username = "mock-user"
		}
		stored, err := core.Add(ctx, s.state, domain.TableEvents, ev)
		if err != nil {
			return out, fmt.Errorf("queue %s step %d: %w", in.Event.Action, i, err)
		}
		s.state.Metrics.EventQueued(string(ev.Action), string(ev.Status))
		out = append(out, stored)
	}

	if in.OnComplete != nil {
		log := s.state.Log.WithFields(logrus.Fields{"action": in.Event.Action, "entity": entityID(in.Event)})
		detached := context.WithoutCancel(ctx)
		s.state.Clock.AfterFunc(offset, func() {
			if err := in.OnComplete(detached); err != nil {
				log.WithError(err).Warn("event continuation failed")
			}
		})
	}
	return out, nil
}

// Visible returns every event whose visibility time has passed, in the order
// it was scheduled.
func (s *Sequencer) Visible(ctx context.Context) ([]domain.Event, error) {
	all, err := core.GetAll[domain.Event](ctx, s.state, domain.TableEvents)
	if err != nil {
		return nil, err
	}
	now := s.state.Clock.Now()
	out := make([]domain.Event, 0, len(all))
	for _, ev := range all {
		if ev.Visible(now) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// VisibleFor narrows Visible to events whose primary entity matches.
func (s *Sequencer) VisibleFor(ctx context.Context, entityType string, id int) ([]domain.Event, error) {
	visible, err := s.Visible(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0)
	for _, ev := range visible {
		if ev.Entity != nil && ev.Entity.Type == entityType && ev.Entity.ID == id {
			out = append(out, ev)
		}
	}
	return out, nil
}

func percentFor(step Step, i, n int) *int {
	var p int
	switch {
	case step.Status == domain.EventFinished || step.Status == domain.EventNotification:
		p = 100
	case step.Status == domain.EventScheduled:
		p = 0
	case step.Progress:
		p = 100 * i / n
	default:
		return nil
	}
	return &p
}

func entityID(ev domain.Event) int {
	if ev.Entity == nil {
		return 0
	}
	return ev.Entity.ID
}

// Notify queues a single notification step for entity.
func (s *Sequencer) Notify(ctx context.Context, action domain.EventAction, entity domain.EntityRef, secondary *domain.EntityRef) error {
	_, err := s.Queue(ctx, Input{
		Event:    domain.Event{Action: action, Entity: &entity, SecondaryEntity: secondary},
		Sequence: []Step{{Status: domain.EventNotification}},
	})
	return err
}

// Lifecycle is the scheduled, started (with progress), finished sequence
// used by provisioning operations, spaced by delay.
func Lifecycle(delay time.Duration) []Step {
	return []Step{
		{Status: domain.EventScheduled},
		{Status: domain.EventStarted, Progress: true, Delay: delay},
		{Status: domain.EventFinished, Delay: delay},
	}
}

// StartFinish is the shorter started then finished sequence.
func StartFinish(delay time.Duration) []Step {
	return []Step{
		{Status: domain.EventStarted, Progress: true},
		{Status: domain.EventFinished, Delay: delay},
	}
}
