package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cloudmock/internal/core"
	"cloudmock/internal/handlers"
	"cloudmock/internal/infra/persistence/memory"
	"cloudmock/internal/response"
	"cloudmock/internal/router"
	"cloudmock/pkg/domain"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const base = "https://api.linode.test/v4"

type harness struct {
	t     *testing.T
	state *core.MockState
	clock *core.VirtualClock
	rt    *router.Router
}

// newHarness wires every CRUD handler set against a fresh memory store
// driven by a virtual clock.
func newHarness(t *testing.T, eventDelay time.Duration) *harness {
	t.Helper()
	clock := core.NewVirtualClock(epoch)
	state := core.NewMockState(memory.NewStore(), core.WithClock(clock), core.WithEventDelay(eventDelay))
	t.Cleanup(state.Close)
	var sets []router.HandlerSet
	for _, f := range handlers.CRUD() {
		sets = append(sets, f(state))
	}
	rt, err := router.New(sets)
	require.NoError(t, err)
	return &harness{t: t, state: state, clock: clock, rt: rt}
}

// do sends body (JSON-encoded unless nil) and decodes the reply into out
// when out is non-nil.
func (h *harness) do(method, path string, body any, out any) int {
	h.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, base+path, reader)
	rec := httptest.NewRecorder()
	h.rt.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (h *harness) mustDo(method, path string, body any, out any) {
	h.t.Helper()
	var raw json.RawMessage
	code := h.do(method, path, body, &raw)
	require.Equal(h.t, http.StatusOK, code, "%s %s: %s", method, path, raw)
	if out != nil {
		require.NoError(h.t, json.Unmarshal(raw, out))
	}
}

func (h *harness) errors(method, path string, body any) (int, []domain.FieldError) {
	h.t.Helper()
	var env response.ErrorEnvelope
	code := h.do(method, path, body, &env)
	return code, env.Errors
}

func (h *harness) export() domain.Snapshot {
	h.t.Helper()
	snap, err := h.state.Store.Export(context.Background())
	require.NoError(h.t, err)
	return snap
}

func (h *harness) count(table domain.Table) int {
	h.t.Helper()
	recs, err := h.state.Store.GetAll(context.Background(), table)
	require.NoError(h.t, err)
	return len(recs)
}

func (h *harness) createLinode(region string, extra map[string]any) domain.Linode {
	h.t.Helper()
	body := map[string]any{"region": region, "type": "g6-standard-1"}
	for k, v := range extra {
		body[k] = v
	}
	var l domain.Linode
	h.mustDo(http.MethodPost, "/linode/instances", body, &l)
	return l
}

func path(format string, args ...any) string { return fmt.Sprintf(format, args...) }
