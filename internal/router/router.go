// Package router dispatches intercepted HTTP calls to ordered handler sets.
// Handlers are tried in registration order; the first match that does not
// pass through answers the request.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cloudmock/internal/core"
	"cloudmock/internal/response"
)

// MethodAny matches every HTTP method.
const MethodAny = "*"

// HandlerFunc answers one matched request.
type HandlerFunc func(ctx context.Context, r *Request) response.Response

// Handler binds a method and URL pattern to a HandlerFunc.
type Handler struct {
	Method  string
	Pattern string
	Handle  HandlerFunc
}

// HandlerSet is an ordered list of handlers. It is a plain description; the
// same set can be compiled into any number of routers.
type HandlerSet []Handler

// Factory builds a handler set bound to one mock state.
type Factory func(state *core.MockState) HandlerSet

// Get, Post, Put and Delete are shorthands for building handlers.
func Get(pattern string, h HandlerFunc) Handler    { return Handler{http.MethodGet, pattern, h} }
func Post(pattern string, h HandlerFunc) Handler   { return Handler{http.MethodPost, pattern, h} }
func Put(pattern string, h HandlerFunc) Handler    { return Handler{http.MethodPut, pattern, h} }
func Delete(pattern string, h HandlerFunc) Handler { return Handler{http.MethodDelete, pattern, h} }

// All matches every method.
func All(pattern string, h HandlerFunc) Handler { return Handler{MethodAny, pattern, h} }

type route struct {
	method  string
	pattern pattern
	handle  HandlerFunc
}

// Router is an http.Handler over compiled handler sets.
type Router struct {
	routes  []route
	log     logrus.FieldLogger
	metrics core.MetricsRecorder
}

// Option customises a Router.
type Option func(*Router)

// WithLogger sets the request logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m core.MetricsRecorder) Option {
	return func(r *Router) {
		if m != nil {
			r.metrics = m
		}
	}
}

// New compiles sets in order. Invalid patterns fail here rather than at
// request time.
func New(sets []HandlerSet, opts ...Option) (*Router, error) {
	rt := &Router{log: core.NullLogger(), metrics: core.NoopMetrics{}}
	for _, opt := range opts {
		opt(rt)
	}
	for _, set := range sets {
		for _, h := range set {
			if h.Handle == nil {
				return nil, fmt.Errorf("handler %s %s: nil func", h.Method, h.Pattern)
			}
			p, err := compilePattern(h.Pattern)
			if err != nil {
				return nil, err
			}
			method := strings.ToUpper(h.Method)
			if method == "" {
				method = MethodAny
			}
			rt.routes = append(rt.routes, route{method: method, pattern: p, handle: h.Handle})
		}
	}
	return rt, nil
}

// Len reports the number of compiled handlers.
func (rt *Router) Len() int { return len(rt.routes) }

// Dispatch resolves r against the routes and returns the first
// non-passthrough response together with the pattern that produced it.
func (rt *Router) Dispatch(ctx context.Context, r *http.Request, body []byte) (response.Response, string) {
	for _, rte := range rt.routes {
		if rte.method != MethodAny && rte.method != r.Method {
			continue
		}
		params, ok := rte.pattern.match(r.URL.Path)
		if !ok {
			continue
		}
		resp := rte.handle(ctx, NewRequest(r, body, params))
		if resp.Passthrough {
			continue
		}
		return resp, rte.pattern.raw
	}
	return response.NotFound(), ""
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := rt.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"method":     r.Method,
		"path":       r.URL.Path,
	})

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, requestID, response.MakeError(http.StatusBadRequest, "Unable to read request body."))
		return
	}

	resp, matched := rt.dispatchSafely(r.Context(), r, body, log)
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	writeJSON(w, requestID, resp)

	elapsed := time.Since(start)
	label := matched
	if label == "" {
		label = "unmatched"
	}
	rt.metrics.ObserveRequest(r.Method, label, resp.Status, elapsed)
	entry := log.WithFields(logrus.Fields{"pattern": label, "status": resp.Status, "duration": elapsed})
	if resp.Status >= http.StatusInternalServerError {
		entry.Warn("mock request failed")
		return
	}
	entry.Debug("mock request")
}

func (rt *Router) dispatchSafely(ctx context.Context, r *http.Request, body []byte, log logrus.FieldLogger) (resp response.Response, matched string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Error("mock handler panicked")
			resp = response.MakeError(http.StatusInternalServerError, fmt.Sprintf("handler panic: %v", rec))
			matched = "panic"
		}
	}()
	return rt.Dispatch(ctx, r, body)
}

func writeJSON(w http.ResponseWriter, requestID string, resp response.Response) {
	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", requestID)
	w.WriteHeader(resp.Status)
	body := resp.Body
	if body == nil {
		body = struct{}{}
	}
	_ = json.NewEncoder(w).Encode(body)
}
