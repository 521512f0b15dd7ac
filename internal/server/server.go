// Package server hosts one mock session behind an HTTP listener. The mock
// router answers every path except /__mock/, which carries the admin
// surface for resetting, switching presets, driving the clock, and
// archiving snapshots.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"cloudmock/internal/core"
	"cloudmock/internal/presets"
	"cloudmock/internal/router"
	"cloudmock/internal/snapshot"
	"cloudmock/pkg/domain"
)

// ErrNoArchive is returned by snapshot operations when no archive is configured.
var ErrNoArchive = errors.New("snapshots are not configured")

// Options wires a Server. Store and Registry are required.
type Options struct {
	Store    domain.Store
	Registry *presets.Registry
	// Archive enables the snapshot routes.
	Archive   *snapshot.Archive
	Selection presets.Selection
	// Clock defaults to the wall clock. A *core.VirtualClock enables
	// /__mock/clock/advance.
	Clock      core.Clock
	EventDelay time.Duration
	Log        logrus.FieldLogger
	Metrics    core.MetricsRecorder
	// MetricsHandler is served at /__mock/metrics when set.
	MetricsHandler http.Handler
}

type session struct {
	state     *core.MockState
	router    *router.Router
	selection presets.Selection
	started   time.Time
}

// Server owns the live session. Reset and restore build a replacement
// session and swap it in; the previous state is closed so its pending
// event continuations never write into the new one.
type Server struct {
	opts Options
	log  logrus.FieldLogger

	mu      sync.RWMutex
	current *session
	handler http.Handler
}

// New clears the store and starts the first session from opts.Selection.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("server: store is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("server: preset registry is required")
	}
	if opts.Clock == nil {
		opts.Clock = core.RealClock{}
	}
	if opts.Log == nil {
		opts.Log = core.NullLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = core.NoopMetrics{}
	}
	s := &Server{opts: opts, log: opts.Log}
	if _, err := s.Reset(ctx, opts.Selection); err != nil {
		return nil, err
	}
	r := mux.NewRouter()
	s.mountAdmin(r.PathPrefix(adminPrefix).Subrouter())
	r.PathPrefix("/").Handler(http.HandlerFunc(s.serveMock))
	s.handler = r
	return s, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Close stops the live session's continuations. The store is left to its owner.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.state.Close()
	}
}

// Selection reports the presets of the live session.
func (s *Server) Selection() presets.Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.selection
}

// State returns the live mock state.
func (s *Server) State() *core.MockState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.state
}

func (s *Server) serveMock(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	rt := s.current.router
	s.mu.RUnlock()
	rt.ServeHTTP(w, r)
}

// build composes sel against a fresh state over the shared store. When
// populate is false the populators are recorded but not run.
func (s *Server) build(ctx context.Context, sel presets.Selection, populate bool) (*session, error) {
	state := core.NewMockState(s.opts.Store,
		core.WithClock(s.opts.Clock),
		core.WithLogger(s.log),
		core.WithMetrics(s.opts.Metrics),
		core.WithEventDelay(s.opts.EventDelay),
	)
	compose := sel
	if !populate {
		compose.Populators = nil
	}
	comp, err := s.opts.Registry.Compose(ctx, compose, state)
	if err != nil {
		state.Close()
		return nil, err
	}
	rt, err := router.New(comp.Sets, router.WithLogger(state.Log), router.WithMetrics(s.opts.Metrics))
	if err != nil {
		state.Close()
		return nil, fmt.Errorf("build router: %w", err)
	}
	comp.Selection.Populators = sel.Populators
	return &session{state: state, router: rt, selection: comp.Selection, started: state.Clock.Now()}, nil
}

// swap installs next while the write lock is held.
func (s *Server) swap(next *session) {
	prev := s.current
	s.current = next
	if prev != nil {
		prev.state.Close()
		s.log.WithFields(logrus.Fields{"previous": prev.state.ID.String(), "session": next.state.ID.String()}).Info("session replaced")
	}
}

// Reset empties the store and starts a session running sel. An unresolvable
// selection is rejected before anything changes. If the new session cannot
// be built the previous store contents and presets are put back.
func (s *Server) Reset(ctx context.Context, sel presets.Selection) (presets.Selection, error) {
	resolved, err := s.opts.Registry.Resolve(sel)
	if err != nil {
		return presets.Selection{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	saved, err := s.closeCurrent(ctx)
	if err != nil {
		return presets.Selection{}, err
	}
	if err := s.opts.Store.Reset(ctx); err != nil {
		return presets.Selection{}, s.rollback(ctx, saved, fmt.Errorf("reset store: %w", err))
	}
	next, err := s.build(ctx, resolved, true)
	if err != nil {
		return presets.Selection{}, s.rollback(ctx, saved, err)
	}
	s.swap(next)
	return next.selection, nil
}

// closeCurrent stops the live session and exports the store so a failed
// replacement can be undone. It is a no-op before the first session.
func (s *Server) closeCurrent(ctx context.Context) (domain.Snapshot, error) {
	if s.current == nil {
		return domain.Snapshot{}, nil
	}
	saved, err := s.opts.Store.Export(ctx)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("export store: %w", err)
	}
	s.current.state.Close()
	return saved, nil
}

// rollback restores saved and rebuilds the previous selection after a failed
// replacement, then returns cause. Continuations pending in the previous
// session are not resumed.
func (s *Server) rollback(ctx context.Context, saved domain.Snapshot, cause error) error {
	prev := s.current
	if prev == nil {
		return cause
	}
	log := s.log.WithError(cause).WithField("session", prev.state.ID.String())
	if err := s.opts.Store.Import(ctx, saved); err != nil {
		log.WithField("rollback", err.Error()).Error("restore previous store")
		return errors.Join(cause, fmt.Errorf("restore previous store: %w", err))
	}
	next, err := s.build(ctx, prev.selection, false)
	if err != nil {
		log.WithField("rollback", err.Error()).Error("rebuild previous session")
		return errors.Join(cause, fmt.Errorf("rebuild previous session: %w", err))
	}
	s.swap(next)
	log.Warn("session change failed, previous session rebuilt")
	return cause
}

// SaveSnapshot archives the live store under a new id.
func (s *Server) SaveSnapshot(ctx context.Context, name string) (snapshot.Document, error) {
	if s.opts.Archive == nil {
		return snapshot.Document{}, ErrNoArchive
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.current
	return s.opts.Archive.Save(ctx, s.opts.Store, snapshot.Document{
		Name:    name,
		Session: cur.state.ID.String(),
		SavedAt: cur.state.Clock.Now(),
		Presets: cur.selection,
	})
}

// RestoreSnapshot replaces the store with snapshot id and starts a session
// with its recorded extras and baseline. Populators are not rerun; the
// snapshot already holds what they seeded.
func (s *Server) RestoreSnapshot(ctx context.Context, id string) (presets.Selection, error) {
	if s.opts.Archive == nil {
		return presets.Selection{}, ErrNoArchive
	}
	doc, err := s.opts.Archive.Load(ctx, id)
	if err != nil {
		return presets.Selection{}, err
	}
	resolved, err := s.opts.Registry.Resolve(doc.Presets)
	if err != nil {
		return presets.Selection{}, fmt.Errorf("snapshot %s: %w", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	saved, err := s.closeCurrent(ctx)
	if err != nil {
		return presets.Selection{}, err
	}
	if err := s.opts.Store.Import(ctx, doc.Store); err != nil {
		return presets.Selection{}, s.rollback(ctx, saved, fmt.Errorf("import snapshot %s: %w", id, err))
	}
	next, err := s.build(ctx, resolved, false)
	if err != nil {
		return presets.Selection{}, s.rollback(ctx, saved, err)
	}
	s.swap(next)
	s.log.WithField("snapshot", id).Info("snapshot restored")
	return next.selection, nil
}
