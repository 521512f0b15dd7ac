package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"cloudmock/internal/core"
	"cloudmock/internal/presets"
	"cloudmock/internal/response"
	"cloudmock/internal/snapshot"
	"cloudmock/pkg/domain"
)

const adminPrefix = "/__mock"

type sessionView struct {
	ID        string            `json:"id"`
	Started   time.Time         `json:"started"`
	Driver    string            `json:"storage_driver"`
	Selection presets.Selection `json:"presets"`
}

type presetsView struct {
	Active    presets.Selection    `json:"active"`
	Available []presets.Descriptor `json:"available"`
}

type clockView struct {
	Now     time.Time `json:"now"`
	Virtual bool      `json:"virtual"`
	Pending int       `json:"pending"`
}

type advanceRequest struct {
	Duration string `json:"duration"`
}

type saveRequest struct {
	Name string `json:"name"`
}

func (s *Server) mountAdmin(r *mux.Router) {
	r.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	r.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
	r.HandleFunc("/presets", s.handleListPresets).Methods(http.MethodGet)
	r.HandleFunc("/presets", s.handleSelectPresets).Methods(http.MethodPut, http.MethodPost)
	r.HandleFunc("/clock", s.handleClock).Methods(http.MethodGet)
	r.HandleFunc("/clock/advance", s.handleAdvance).Methods(http.MethodPost)
	r.HandleFunc("/snapshots", s.handleListSnapshots).Methods(http.MethodGet)
	r.HandleFunc("/snapshots", s.handleSaveSnapshot).Methods(http.MethodPost)
	r.HandleFunc("/snapshots/{id}/restore", s.handleRestoreSnapshot).Methods(http.MethodPost)
	r.HandleFunc("/snapshots/{id}", s.handleDeleteSnapshot).Methods(http.MethodDelete)
	if s.opts.MetricsHandler != nil {
		r.Handle("/metrics", s.opts.MetricsHandler).Methods(http.MethodGet)
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, sessionView{
		ID:        cur.state.ID.String(),
		Started:   cur.started,
		Driver:    s.opts.Store.Driver(),
		Selection: cur.selection,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sel, err := s.Reset(r.Context(), s.Selection())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, presetsView{Active: sel, Available: s.opts.Registry.List()})
}

func (s *Server) handleListPresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, presetsView{Active: s.Selection(), Available: s.opts.Registry.List()})
}

func (s *Server) handleSelectPresets(w http.ResponseWriter, r *http.Request) {
	var sel presets.Selection
	if err := decodeBody(r, &sel); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	active, err := s.Reset(r.Context(), sel)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, presetsView{Active: active, Available: s.opts.Registry.List()})
}

func (s *Server) clockView() clockView {
	v := clockView{Now: s.opts.Clock.Now()}
	if vc, ok := s.opts.Clock.(*core.VirtualClock); ok {
		v.Virtual = true
		v.Pending = vc.Pending()
	}
	return v
}

func (s *Server) handleClock(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.clockView())
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	vc, ok := s.opts.Clock.(*core.VirtualClock)
	if !ok {
		writeError(w, http.StatusConflict, "The clock is not virtual.")
		return
	}
	var req advanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil || d < 0 {
		writeFieldError(w, "duration", "Must be a non-negative duration such as 5s.")
		return
	}
	vc.Advance(d)
	writeJSON(w, http.StatusOK, s.clockView())
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.opts.Archive == nil {
		writeFailure(w, ErrNoArchive)
		return
	}
	list, err := s.opts.Archive.List(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list, "driver": s.opts.Archive.Driver()})
}

func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := s.SaveSnapshot(r.Context(), req.Name)
	if err != nil {
		writeFailure(w, err)
		return
	}
	doc.Store = domain.Snapshot{}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	sel, err := s.RestoreSnapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, presetsView{Active: sel, Available: s.opts.Registry.List()})
}

func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.opts.Archive == nil {
		writeFailure(w, ErrNoArchive)
		return
	}
	if err := s.opts.Archive.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// decodeBody accepts an empty body as the zero value.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, response.ErrorEnvelope{Errors: []domain.FieldError{{Reason: reason}}})
}

func writeFieldError(w http.ResponseWriter, field, reason string) {
	writeJSON(w, http.StatusBadRequest, response.ErrorEnvelope{Errors: []domain.FieldError{{Field: field, Reason: reason}}})
}

func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, presets.ErrUnknownPreset):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, snapshot.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoArchive):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
