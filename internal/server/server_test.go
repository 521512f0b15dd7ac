package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmock/internal/blob"
	"cloudmock/internal/core"
	"cloudmock/internal/infra/persistence/memory"
	"cloudmock/internal/presets"
	"cloudmock/internal/response"
	"cloudmock/internal/server"
	"cloudmock/internal/snapshot"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	t     *testing.T
	srv   *server.Server
	http  *httptest.Server
	clock *core.VirtualClock
}

func newFixture(t *testing.T, mutate func(*server.Options)) *fixture {
	t.Helper()
	ctx := context.Background()
	reg, err := presets.Builtin(presets.Options{ManyLinodes: 3, ResponseDelay: time.Millisecond})
	require.NoError(t, err)
	blobs, err := blob.Open(ctx, blob.Config{})
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	clock := core.NewVirtualClock(epoch)
	opts := server.Options{
		Store:      memory.NewStore(),
		Registry:   reg,
		Archive:    snapshot.NewArchive(blobs, log),
		Clock:      clock,
		EventDelay: time.Second,
		Log:        log,
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv, err := server.New(ctx, opts)
	require.NoError(t, err)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		srv.Close()
	})
	return &fixture{t: t, srv: srv, http: hs, clock: clock}
}

func (f *fixture) do(method, path string, body any, out any) int {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.http.URL+path, &buf)
	require.NoError(f.t, err)
	resp, err := f.http.Client().Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type presetsReply struct {
	Active    presets.Selection    `json:"active"`
	Available []presets.Descriptor `json:"available"`
}

func (f *fixture) linodeCount() int {
	f.t.Helper()
	var page response.Page[map[string]any]
	require.Equal(f.t, http.StatusOK, f.do(http.MethodGet, "/v4/linode/instances", nil, &page))
	return page.Results
}

func TestNewComposesSelection(t *testing.T) {
	f := newFixture(t, func(o *server.Options) {
		o.Selection = presets.Selection{Populators: []string{"many"}}
	})
	assert.Equal(t, 3, f.linodeCount())

	var reply presetsReply
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/__mock/presets", nil, &reply))
	assert.Equal(t, presets.DefaultBaseline, reply.Active.Baseline)
	assert.Equal(t, []string{"linodes:many"}, reply.Active.Populators)
	assert.NotEmpty(t, reply.Available)
}

func TestSelectPresetsSwapsSession(t *testing.T) {
	f := newFixture(t, func(o *server.Options) {
		o.Selection = presets.Selection{Populators: []string{"linodes:many"}}
	})
	before := f.srv.State().ID

	var reply presetsReply
	code := f.do(http.MethodPut, "/__mock/presets", presets.Selection{Extras: []string{"errors"}}, &reply)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"api:errors"}, reply.Active.Extras)
	assert.NotEqual(t, before, f.srv.State().ID)

	var env response.ErrorEnvelope
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodGet, "/v4/linode/instances", nil, &env))
	assert.Equal(t, "An unexpected error occurred.", env.Errors[0].Reason)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/__mock/presets", presets.Selection{}, nil))
	assert.Zero(t, f.linodeCount(), "switching presets empties the store")
}

func TestUnknownPresetLeavesSessionAlone(t *testing.T) {
	f := newFixture(t, func(o *server.Options) {
		o.Selection = presets.Selection{Populators: []string{"linodes:many"}}
	})
	before := f.srv.State().ID

	var env response.ErrorEnvelope
	code := f.do(http.MethodPut, "/__mock/presets", presets.Selection{Extras: []string{"api:missing"}}, &env)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Errors[0].Reason, "api:missing")
	assert.Equal(t, before, f.srv.State().ID)
	assert.Equal(t, 3, f.linodeCount())

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/__mock/presets", map[string]any{"baseline": 7}, nil))
}

// seeds a linode, then fails on a config whose parent was never populated
const orphanFixture = `
linodes:
  - id: 40
    label: half-written
    region: us-east
    type: g6-nanode-1
linode_configs:
  - parent_id: 99
    value:
      label: boot
`

func TestFailedResetRebuildsPreviousSession(t *testing.T) {
	f := newFixture(t, func(o *server.Options) {
		reg, err := presets.Builtin(presets.Options{ManyLinodes: 3, Fixtures: map[string][]byte{"orphan": []byte(orphanFixture)}})
		require.NoError(t, err)
		o.Registry = reg
		o.Selection = presets.Selection{Populators: []string{"linodes:many"}}
	})
	before := f.srv.State().ID

	_, err := f.srv.Reset(context.Background(), presets.Selection{Populators: []string{"fixtures:orphan"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parent 99")

	assert.Equal(t, []string{"linodes:many"}, f.srv.Selection().Populators)
	assert.NotEqual(t, before, f.srv.State().ID)
	assert.Equal(t, 3, f.linodeCount(), "the half-seeded fixture is discarded")
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v4/linode/instances/40", nil, nil))

	var env response.ErrorEnvelope
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodPut, "/__mock/presets", presets.Selection{Populators: []string{"fixtures:orphan"}}, &env))
	assert.Equal(t, 3, f.linodeCount())
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/__mock/reset", nil, nil))
	assert.Equal(t, 3, f.linodeCount(), "reset reruns the rebuilt selection")
}

func TestResetStopsPendingEvents(t *testing.T) {
	f := newFixture(t, nil)
	code := f.do(http.MethodPost, "/v4/linode/instances", map[string]any{"region": "us-east", "type": "g6-nanode-1"}, nil)
	require.Equal(t, http.StatusOK, code)
	require.Positive(t, f.clock.Pending())

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/__mock/reset", nil, nil))
	assert.Zero(t, f.clock.Pending())
	assert.Zero(t, f.linodeCount())
}

func TestClockAdvance(t *testing.T) {
	f := newFixture(t, nil)
	var view struct {
		Now     time.Time `json:"now"`
		Virtual bool      `json:"virtual"`
	}
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/__mock/clock/advance", map[string]string{"duration": "90s"}, &view))
	assert.True(t, view.Virtual)
	assert.True(t, epoch.Add(90*time.Second).Equal(view.Now))

	var env response.ErrorEnvelope
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/__mock/clock/advance", map[string]string{"duration": "later"}, &env))
	assert.Equal(t, "duration", env.Errors[0].Field)

	wall := newFixture(t, func(o *server.Options) { o.Clock = nil })
	assert.Equal(t, http.StatusConflict, wall.do(http.MethodPost, "/__mock/clock/advance", map[string]string{"duration": "1s"}, nil))
}

func TestSnapshotSaveAndRestore(t *testing.T) {
	f := newFixture(t, func(o *server.Options) {
		o.Selection = presets.Selection{Extras: []string{"linode-limits"}, Populators: []string{"linodes:many"}}
	})

	var doc snapshot.Document
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/__mock/snapshots", map[string]string{"name": "three"}, &doc))
	assert.Equal(t, "three", doc.Name)
	assert.Empty(t, doc.Store.Tables, "the admin reply omits the store body")

	require.Equal(t, http.StatusOK, f.do(http.MethodPut, "/__mock/presets", presets.Selection{}, nil))
	require.Zero(t, f.linodeCount())

	var list struct {
		Data []snapshot.Summary `json:"data"`
	}
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/__mock/snapshots", nil, &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, doc.ID, list.Data[0].ID)

	var reply presetsReply
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/__mock/snapshots/"+doc.ID+"/restore", nil, &reply))
	assert.Equal(t, []string{"limits:linode-limits"}, reply.Active.Extras)
	assert.Equal(t, []string{"linodes:many"}, reply.Active.Populators)
	assert.Equal(t, 3, f.linodeCount(), "populators are not rerun on restore")
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v4/linode/instances", map[string]any{"region": "us-east", "type": "g6-nanode-1"}, nil))

	assert.Equal(t, http.StatusOK, f.do(http.MethodDelete, "/__mock/snapshots/"+doc.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/__mock/snapshots/"+doc.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/__mock/snapshots/"+doc.ID+"/restore", nil, nil))
}

func TestSnapshotsDisabledWithoutArchive(t *testing.T) {
	f := newFixture(t, func(o *server.Options) { o.Archive = nil })
	assert.Equal(t, http.StatusConflict, f.do(http.MethodGet, "/__mock/snapshots", nil, nil))
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/__mock/snapshots", nil, nil))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetrics(reg)
	require.NoError(t, err)
	f := newFixture(t, func(o *server.Options) {
		o.Metrics = metrics
		o.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	})
	f.linodeCount()

	resp, err := f.http.Client().Get(f.http.URL + "/__mock/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `cloudmock_requests_total{method="GET",pattern="*/v4*/linode/instances",status="200"} 1`), string(body))
}

func TestSessionAndUnknownAdminRoute(t *testing.T) {
	f := newFixture(t, nil)
	var view struct {
		ID     string `json:"id"`
		Driver string `json:"storage_driver"`
	}
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/__mock/session", nil, &view))
	assert.Equal(t, f.srv.State().ID.String(), view.ID)
	assert.Equal(t, "memory", view.Driver)

	var env response.ErrorEnvelope
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/__mock/nothing", nil, &env))
	assert.Equal(t, "Not found", env.Errors[0].Reason)
}
