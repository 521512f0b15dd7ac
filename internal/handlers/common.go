// Package handlers holds one handler-set factory per resource domain. Every
// factory is a pure function of the mock state it is given; nothing here is
// registered globally.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cloudmock/internal/core"
	"cloudmock/internal/events"
	"cloudmock/internal/response"
	"cloudmock/internal/router"
	"cloudmock/pkg/domain"
)

// env bundles what a handler set closes over.
type env struct {
	state  *core.MockState
	events *events.Sequencer
}

func newEnv(state *core.MockState) env {
	return env{state: state, events: events.New(state)}
}

func (e env) now() time.Time { return e.state.Clock.Now() }

// notify queues a single notification. Queue failures are logged since the
// primary write already succeeded.
func (e env) notify(ctx context.Context, action domain.EventAction, entity domain.EntityRef) {
	e.notifySecondary(ctx, action, entity, nil)
}

func (e env) notifySecondary(ctx context.Context, action domain.EventAction, entity domain.EntityRef, secondary *domain.EntityRef) {
	if err := e.events.Notify(ctx, action, entity, secondary); err != nil {
		e.state.Log.WithError(err).WithField("action", action).Warn("queue notification")
	}
}

// queue schedules a multi-step sequence, logging rather than failing.
func (e env) queue(ctx context.Context, in events.Input) {
	if _, err := e.events.Queue(ctx, in); err != nil {
		e.state.Log.WithError(err).WithField("action", in.Event.Action).Warn("queue events")
	}
}

// lookup resolves a path id against table. The bool is false when the id is
// malformed or absent, in which case resp holds the envelope to return.
func lookup[T any](ctx context.Context, e env, r *router.Request, param string, table domain.Table) (T, int, response.Response, bool) {
	var zero T
	id, ok := r.Params.Int(param)
	if !ok {
		return zero, 0, response.NotFound(), false
	}
	v, found, err := core.Get[T](ctx, e.state, table, id)
	if err != nil {
		return zero, id, response.FromError(err), false
	}
	if !found {
		return zero, id, response.NotFound(), false
	}
	return v, id, response.Response{}, true
}

// lookupChild is lookup for a child table scoped to parentID.
func lookupChild[T any](ctx context.Context, e env, r *router.Request, param string, table domain.Table, parentID int) (T, int, response.Response, bool) {
	var zero T
	id, ok := r.Params.Int(param)
	if !ok {
		return zero, 0, response.NotFound(), false
	}
	v, found, err := core.GetChild[T](ctx, e.state, table, parentID, id)
	if err != nil {
		return zero, id, response.FromError(err), false
	}
	if !found {
		return zero, id, response.NotFound(), false
	}
	return v, id, response.Response{}, true
}

// list renders a paginated view of every row in table.
func list[T any](ctx context.Context, e env, r *router.Request, table domain.Table) response.Response {
	rows, err := core.GetAll[T](ctx, e.state, table)
	if err != nil {
		return response.FromError(err)
	}
	return response.MakePaginated(rows, r.Request)
}

// children renders a paginated view of the rows owned by parentID.
func children[T any](ctx context.Context, e env, r *router.Request, table domain.Table, parentID int) response.Response {
	rows, err := core.Children[T](ctx, e.state, table, parentID)
	if err != nil {
		return response.FromError(err)
	}
	return response.MakePaginated(rows, r.Request)
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }

func ref(id int, label, kind, url string) domain.EntityRef {
	return domain.EntityRef{ID: id, Label: label, Type: kind, URL: url}
}

func linodeRef(l domain.Linode) domain.EntityRef {
	return ref(l.ID, l.Label, "linode", fmt.Sprintf("/v4/linode/instances/%d", l.ID))
}

func nodeBalancerRef(nb domain.NodeBalancer) domain.EntityRef {
	return ref(nb.ID, nb.Label, "nodebalancer", fmt.Sprintf("/v4/nodebalancers/%d", nb.ID))
}

func firewallRef(fw domain.Firewall) domain.EntityRef {
	return ref(fw.ID, fw.Label, "firewall", fmt.Sprintf("/v4/networking/firewalls/%d", fw.ID))
}

func vpcRef(v domain.VPC) domain.EntityRef {
	return ref(v.ID, v.Label, "vpc", fmt.Sprintf("/v4/vpcs/%d", v.ID))
}

func volumeRef(v domain.Volume) domain.EntityRef {
	return ref(v.ID, v.Label, "volume", fmt.Sprintf("/v4/volumes/%d", v.ID))
}

func domainRef(d domain.Domain) domain.EntityRef {
	return ref(d.ID, d.Domain, "domain", fmt.Sprintf("/v4/domains/%d", d.ID))
}

func ticketRef(t domain.SupportTicket) domain.EntityRef {
	return ref(t.ID, t.Summary, "ticket", fmt.Sprintf("/v4/support/tickets/%d", t.ID))
}

func orEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func ptr[T any](v T) *T { return &v }

// privateIPv4 fabricates a deterministic 192.168.x.y address for id.
func privateIPv4(id int) string {
	return "192.168." + strconv.Itoa((id/254)%256) + "." + strconv.Itoa(id%254+1)
}

// publicIPv4 fabricates a deterministic documentation-range address for id.
func publicIPv4(id int) string {
	return "203.0." + strconv.Itoa((id/254)%256) + "." + strconv.Itoa(id%254+1)
}
