package presets_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmock/internal/core"
	"cloudmock/internal/infra/persistence/memory"
	"cloudmock/internal/presets"
	"cloudmock/internal/response"
	"cloudmock/internal/router"
	"cloudmock/pkg/domain"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type session struct {
	t     *testing.T
	state *core.MockState
	rt    *router.Router
	comp  presets.Composition
}

func newState(t *testing.T) *core.MockState {
	t.Helper()
	state := core.NewMockState(memory.NewStore(), core.WithClock(core.NewVirtualClock(epoch)))
	t.Cleanup(state.Close)
	return state
}

func compose(t *testing.T, reg *presets.Registry, sel presets.Selection) *session {
	t.Helper()
	state := newState(t)
	comp, err := reg.Compose(context.Background(), sel, state)
	require.NoError(t, err)
	rt, err := router.New(comp.Sets)
	require.NoError(t, err)
	return &session{t: t, state: state, rt: rt, comp: comp}
}

func builtin(t *testing.T, opts presets.Options) *presets.Registry {
	t.Helper()
	reg, err := presets.Builtin(opts)
	require.NoError(t, err)
	return reg
}

func (s *session) do(method, path string, out any) int {
	s.t.Helper()
	req := httptest.NewRequest(method, "https://api.linode.test/v4"+path, strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	s.rt.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestExtraOverridesBaseline(t *testing.T) {
	reg := builtin(t, presets.Options{})

	plain := compose(t, reg, presets.Selection{})
	assert.Equal(t, "baseline:crud", plain.comp.Selection.Baseline)
	assert.Equal(t, http.StatusOK, plain.do(http.MethodGet, "/linode/instances", nil))

	failing := compose(t, reg, presets.Selection{Extras: []string{"errors"}})
	assert.Equal(t, []string{"api:errors"}, failing.comp.Selection.Extras)
	var env response.ErrorEnvelope
	assert.Equal(t, http.StatusInternalServerError, failing.do(http.MethodGet, "/linode/instances", &env))
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "An unexpected error occurred.", env.Errors[0].Reason)
}

func TestResponseTimePassesThrough(t *testing.T) {
	reg := builtin(t, presets.Options{ResponseDelay: 5 * time.Millisecond})
	s := compose(t, reg, presets.Selection{Extras: []string{"api:response-time"}})
	start := time.Now()
	var page response.Page[domain.Linode]
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/linode/instances", &page))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
	assert.Zero(t, page.Results)
}

func TestLinodeLimitsRejectsCreateOnly(t *testing.T) {
	reg := builtin(t, presets.Options{})
	s := compose(t, reg, presets.Selection{Extras: []string{"linode-limits"}})
	var env response.ErrorEnvelope
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/linode/instances", &env))
	require.Len(t, env.Errors, 1)
	assert.Contains(t, env.Errors[0].Reason, "Limit")
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/linode/instances", nil))
}

func TestNoMocksBaselineAnswersNotFound(t *testing.T) {
	reg := builtin(t, presets.Options{})
	s := compose(t, reg, presets.Selection{Baseline: "no-mocks"})
	assert.Empty(t, s.comp.Sets)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/linode/instances", nil))
}

func TestPopulatorsSeedStore(t *testing.T) {
	reg := builtin(t, presets.Options{ManyLinodes: 3})
	s := compose(t, reg, presets.Selection{
		Populators: []string{"linodes:many", "vpcs:default", "support:abuse-ticket"},
	})

	var linodes response.Page[domain.Linode]
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/linode/instances", &linodes))
	assert.Equal(t, 3, linodes.Results)
	assert.Equal(t, epoch, linodes.Data[0].Created)

	var configs response.Page[domain.LinodeConfig]
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/linode/instances/2/configs", &configs))
	assert.Equal(t, 1, configs.Results)

	var vpc domain.VPC
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/vpcs/1", &vpc))
	assert.Len(t, vpc.Subnets, 2)

	var replies response.Page[domain.SupportReply]
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/support/tickets/1/replies", &replies))
	assert.Equal(t, 1, replies.Results)
	assert.True(t, replies.Data[0].FromLinode)

	var evs response.Page[domain.Event]
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/account/events", &evs))
	require.Equal(t, 1, evs.Results)
	assert.Equal(t, domain.ActionTicketCreate, evs.Data[0].Action)
}

func TestComposeUnknownIDLeavesStoreUntouched(t *testing.T) {
	reg := builtin(t, presets.Options{})
	state := newState(t)
	before, err := state.Store.Export(context.Background())
	require.NoError(t, err)

	_, err = reg.Compose(context.Background(), presets.Selection{Populators: []string{"linodes:many", "nope"}}, state)
	require.ErrorIs(t, err, presets.ErrUnknownPreset)
	_, err = reg.Compose(context.Background(), presets.Selection{Baseline: "baseline:missing"}, state)
	require.ErrorIs(t, err, presets.ErrUnknownPreset)

	after, err := state.Store.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRegistryResolution(t *testing.T) {
	reg := presets.NewRegistry()
	noop := func(*core.MockState) router.HandlerSet { return nil }
	require.NoError(t, reg.RegisterExtra(presets.Extra{ID: "api:slow", Factories: []router.Factory{noop}}))
	require.NoError(t, reg.RegisterExtra(presets.Extra{ID: "db:slow", Factories: []router.Factory{noop}}))
	require.NoError(t, reg.RegisterExtra(presets.Extra{ID: "api:errors", Factories: []router.Factory{noop}}))

	e, err := reg.Extra("errors")
	require.NoError(t, err)
	assert.Equal(t, "api:errors", e.ID)

	_, err = reg.Extra("slow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = reg.Extra("api:missing")
	assert.ErrorIs(t, err, presets.ErrUnknownPreset)

	assert.Error(t, reg.RegisterExtra(presets.Extra{ID: "api:errors", Factories: []router.Factory{noop}}))
	assert.Error(t, reg.RegisterExtra(presets.Extra{ID: "plain", Factories: []router.Factory{noop}}))
	assert.Error(t, reg.RegisterExtra(presets.Extra{ID: "api:nil"}))
	assert.Error(t, reg.RegisterExtra(presets.Extra{ID: "api:gap", Factories: []router.Factory{noop, nil}}))
	assert.Error(t, reg.RegisterPopulator(presets.Populator{ID: "x:y"}))
}

func TestExtraWithSeveralFactories(t *testing.T) {
	reg := builtin(t, presets.Options{})
	teapot := func(*core.MockState) router.HandlerSet {
		return router.HandlerSet{
			router.Get("*/v4*/linode/instances", func(context.Context, *router.Request) response.Response {
				return response.MakeError(http.StatusTeapot, "short and stout")
			}),
		}
	}
	conflict := func(*core.MockState) router.HandlerSet {
		return router.HandlerSet{
			router.Post("*/v4*/linode/instances", func(context.Context, *router.Request) response.Response {
				return response.MakeError(http.StatusConflict, "busy")
			}),
		}
	}
	require.NoError(t, reg.RegisterExtra(presets.Extra{ID: "test:pair", Factories: []router.Factory{teapot, conflict}}))

	plain := compose(t, reg, presets.Selection{})
	s := compose(t, reg, presets.Selection{Extras: []string{"test:pair"}})
	assert.Len(t, s.comp.Sets, len(plain.comp.Sets)+2)
	assert.Equal(t, http.StatusTeapot, s.do(http.MethodGet, "/linode/instances", nil))
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/linode/instances", nil))
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/volumes", nil))
}

func TestRegistryListIsSorted(t *testing.T) {
	reg := builtin(t, presets.Options{})
	list := reg.List()
	var ids []string
	for _, d := range list {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{
		"baseline:crud",
		"baseline:no-mocks",
		"api:errors",
		"api:response-time",
		"limits:linode-limits",
		"linodes:many",
		"support:abuse-ticket",
		"vpcs:default",
	}, ids)
	assert.Equal(t, presets.KindBaseline, list[0].Kind)
	assert.Equal(t, presets.KindPopulator, list[len(list)-1].Kind)
}

func TestWriteRejectsOrphans(t *testing.T) {
	state := newState(t)
	mc := presets.NewMockContext(epoch)
	mc.DomainRecords = append(mc.DomainRecords, presets.Owned[domain.DomainRecord]{
		ParentID: 7,
		Value:    domain.DomainRecord{Type: "A", Name: "www", Target: "203.0.113.1"},
	})
	err := mc.Write(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parent 7")
}

func TestWriteRemapsTakenParentIDs(t *testing.T) {
	state := newState(t)
	ctx := context.Background()
	_, err := core.Add(ctx, state, domain.TableDomains, domain.Domain{Domain: "taken.test"})
	require.NoError(t, err)

	mc := presets.NewMockContext(epoch)
	mc.Domains = append(mc.Domains, domain.Domain{ID: 1, Domain: "seeded.test"})
	mc.DomainRecords = append(mc.DomainRecords, presets.Owned[domain.DomainRecord]{
		ParentID: 1,
		Value:    domain.DomainRecord{Type: "A", Name: "www", Target: "203.0.113.1"},
	})
	require.NoError(t, mc.Write(ctx, state))

	rows, err := core.GetRows[domain.DomainRecord](ctx, state, domain.TableDomainRecords)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].ParentID)
}
