package handlers

import (
	"context"

	"cloudmock/internal/core"
	"cloudmock/internal/response"
	"cloudmock/internal/router"
	"cloudmock/pkg/domain"
)

// Quotas serves the read-only per-service quota views. Usage is derived from
// the live tables rather than stored, so it tracks creates and deletes.
func Quotas(state *core.MockState) router.HandlerSet {
	h := quotaHandlers{newEnv(state)}
	return router.HandlerSet{
		router.Get("*/v4*/:service/quotas", h.list),
		router.Get("*/v4*/:service/quotas/:id", h.get),
		router.Get("*/v4*/:service/quotas/:id/usage", h.usage),
	}
}

type quotaHandlers struct{ env }

func (h quotaHandlers) forService(ctx context.Context, service string) ([]domain.Quota, error) {
	all, err := core.GetAll[domain.Quota](ctx, h.state, domain.TableQuotas)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Quota, 0, len(all))
	for _, q := range all {
		if q.Service == service {
			out = append(out, q)
		}
	}
	return out, nil
}

func (h quotaHandlers) list(ctx context.Context, r *router.Request) response.Response {
	quotas, err := h.forService(ctx, r.Params["service"])
	if err != nil {
		return response.FromError(err)
	}
	return response.MakePaginated(quotas, r.Request)
}

// quota resolves :id scoped to :service; a quota of another service is absent.
func (h quotaHandlers) quota(ctx context.Context, r *router.Request) (domain.Quota, response.Response, bool) {
	q, _, resp, ok := lookup[domain.Quota](ctx, h.env, r, "id", domain.TableQuotas)
	if !ok {
		return q, resp, false
	}
	if q.Service != r.Params["service"] {
		return q, response.NotFound(), false
	}
	return q, response.Response{}, true
}

func (h quotaHandlers) get(ctx context.Context, r *router.Request) response.Response {
	q, resp, ok := h.quota(ctx, r)
	if !ok {
		return resp
	}
	return response.Make(q)
}

func (h quotaHandlers) usage(ctx context.Context, r *router.Request) response.Response {
	q, resp, ok := h.quota(ctx, r)
	if !ok {
		return resp
	}
	used, err := quotaUsage(ctx, h.env, q)
	if err != nil {
		return response.FromError(err)
	}
	return response.Make(domain.QuotaUsage{QuotaLimit: q.QuotaLimit, Usage: used})
}

// quotaUsage counts the rows a quota's resource metric meters in its region.
// Metrics without a backing table report zero.
func quotaUsage(ctx context.Context, e env, q domain.Quota) (int, error) {
	switch q.ResourceMetric {
	case "instance":
		return countIn(ctx, e, domain.TableLinodes, q.Region, func(l domain.Linode) string { return l.Region })
	case "volume":
		return countIn(ctx, e, domain.TableVolumes, q.Region, func(v domain.Volume) string { return v.Region })
	case "nodebalancer":
		return countIn(ctx, e, domain.TableNodeBalancers, q.Region, func(nb domain.NodeBalancer) string { return nb.Region })
	case "vpc":
		return countIn(ctx, e, domain.TableVPCs, q.Region, func(v domain.VPC) string { return v.Region })
	}
	return 0, nil
}

func countIn[T any](ctx context.Context, e env, table domain.Table, region string, regionOf func(T) string) (int, error) {
	rows, err := core.GetAll[T](ctx, e.state, table)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, row := range rows {
		if region == "" || regionOf(row) == region {
			n++
		}
	}
	return n, nil
}
