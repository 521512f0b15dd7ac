package handlers

import (
	"context"
	"strings"
	"time"

	"cloudmock/internal/core"
	"cloudmock/internal/response"
	"cloudmock/internal/router"
	"cloudmock/pkg/domain"
)

type domainCreateInput struct {
	Domain      string   `json:"domain"`
	Type        string   `json:"type"`
	SOAEmail    string   `json:"soa_email"`
	Description string   `json:"description"`
	TTLSec      *int     `json:"ttl_sec"`
	Tags        []string `json:"tags"`
	MasterIPs   []string `json:"master_ips"`
}

func (in domainCreateInput) Validate() error {
	v := &domain.ValidationError{}
	checkRequired(v, "domain", in.Domain)
	if in.Domain != "" && !strings.Contains(in.Domain, ".") {
		v.Add("domain", "Domain must be a fully qualified domain name.")
	}
	checkOneOf(v, "type", in.Type, "master", "slave")
	if (in.Type == "" || in.Type == "master") && in.SOAEmail == "" {
		v.Add("soa_email", "soa_email is required for master domains.")
	}
	if in.Type == "slave" && len(in.MasterIPs) == 0 {
		v.Add("master_ips", "At least one master IP is required for slave domains.")
	}
	return v.Err()
}

type domainUpdateInput struct {
	SOAEmail    *string   `json:"soa_email,omitempty"`
	Description *string   `json:"description,omitempty"`
	Status      *string   `json:"status,omitempty"`
	TTLSec      *int      `json:"ttl_sec,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

func (in domainUpdateInput) Validate() error {
	v := &domain.ValidationError{}
	if in.Status != nil {
		checkOneOf(v, "status", *in.Status, "active", "disabled")
	}
	return v.Err()
}

type domainRecordInput struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Target   string `json:"target"`
	Priority *int   `json:"priority,omitempty"`
	Weight   *int   `json:"weight,omitempty"`
	Port     *int   `json:"port,omitempty"`
	TTLSec   *int   `json:"ttl_sec,omitempty"`
}

var recordTypes = []string{"A", "AAAA", "CNAME", "MX", "TXT", "SRV", "NS", "CAA"}

func (in domainRecordInput) Validate() error {
	v := &domain.ValidationError{}
	checkRequired(v, "type", in.Type)
	checkOneOf(v, "type", in.Type, recordTypes...)
	checkRequired(v, "target", in.Target)
	if in.Priority != nil {
		checkRange(v, "priority", *in.Priority, 0, 255)
	}
	if in.Port != nil {
		checkRange(v, "port", *in.Port, 0, 65535)
	}
	return v.Err()
}

type domainRecordUpdateInput struct {
	Name     *string `json:"name,omitempty"`
	Target   *string `json:"target,omitempty"`
	Priority *int    `json:"priority,omitempty"`
	Weight   *int    `json:"weight,omitempty"`
	Port     *int    `json:"port,omitempty"`
	TTLSec   *int    `json:"ttl_sec,omitempty"`
}

// Domains serves DNS zones and their records. Deleting a domain removes its
// records.
func Domains(state *core.MockState) router.HandlerSet {
	h := domainHandlers{newEnv(state)}
	return router.HandlerSet{
		router.Get("*/v4*/domains", h.list),
		router.Post("*/v4*/domains", h.create),
		router.Get("*/v4*/domains/:id", h.get),
		router.Put("*/v4*/domains/:id", h.update),
		router.Delete("*/v4*/domains/:id", h.delete),
		router.Get("*/v4*/domains/:id/records", h.listRecords),
		router.Post("*/v4*/domains/:id/records", h.createRecord),
		router.Get("*/v4*/domains/:id/records/:recordId", h.getRecord),
		router.Put("*/v4*/domains/:id/records/:recordId", h.updateRecord),
		router.Delete("*/v4*/domains/:id/records/:recordId", h.deleteRecord),
	}
}

type domainHandlers struct{ env }

func (h domainHandlers) list(ctx context.Context, r *router.Request) response.Response {
	return list[domain.Domain](ctx, h.env, r, domain.TableDomains)
}

func (h domainHandlers) get(ctx context.Context, r *router.Request) response.Response {
	d, _, resp, ok := lookup[domain.Domain](ctx, h.env, r, "id", domain.TableDomains)
	if !ok {
		return resp
	}
	return response.Make(d)
}

func (h domainHandlers) create(ctx context.Context, r *router.Request) response.Response {
	var in domainCreateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.Validate(); err != nil {
		return response.FromError(err)
	}
	now := h.now()
	d := domain.Domain{
		Domain:      in.Domain,
		Type:        "master",
		SOAEmail:    in.SOAEmail,
		Status:      "active",
		Description: in.Description,
		Tags:        orEmpty(in.Tags),
		Created:     now,
		Updated:     now,
	}
	setIf(&d.Type, in.Type)
	if in.TTLSec != nil {
		d.TTLSec = *in.TTLSec
	}
	d, err := core.Add(ctx, h.state, domain.TableDomains, d)
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionDomainCreate, domainRef(d))
	return response.Make(d)
}

func (h domainHandlers) update(ctx context.Context, r *router.Request) response.Response {
	_, id, resp, ok := lookup[domain.Domain](ctx, h.env, r, "id", domain.TableDomains)
	if !ok {
		return resp
	}
	var in domainUpdateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.Validate(); err != nil {
		return response.FromError(err)
	}
	patch := struct {
		domainUpdateInput
		Updated time.Time `json:"updated"`
	}{in, h.now()}
	d, err := core.Update[domain.Domain](ctx, h.state, domain.TableDomains, id, patch)
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionDomainUpdate, domainRef(d))
	return response.Make(d)
}

func (h domainHandlers) delete(ctx context.Context, r *router.Request) response.Response {
	d, id, resp, ok := lookup[domain.Domain](ctx, h.env, r, "id", domain.TableDomains)
	if !ok {
		return resp
	}
	if _, err := core.DeleteChildren(ctx, h.state, domain.TableDomainRecords, id); err != nil {
		return response.FromError(err)
	}
	if err := core.Delete(ctx, h.state, domain.TableDomains, id); err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionDomainDelete, domainRef(d))
	return response.Empty()
}

func (h domainHandlers) listRecords(ctx context.Context, r *router.Request) response.Response {
	_, id, resp, ok := lookup[domain.Domain](ctx, h.env, r, "id", domain.TableDomains)
	if !ok {
		return resp
	}
	return children[domain.DomainRecord](ctx, h.env, r, domain.TableDomainRecords, id)
}

func (h domainHandlers) createRecord(ctx context.Context, r *router.Request) response.Response {
	d, id, resp, ok := lookup[domain.Domain](ctx, h.env, r, "id", domain.TableDomains)
	if !ok {
		return resp
	}
	var in domainRecordInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.Validate(); err != nil {
		return response.FromError(err)
	}
	now := h.now()
	rec := domain.DomainRecord{
		Type:    in.Type,
		Name:    in.Name,
		Target:  in.Target,
		Created: now,
		Updated: now,
	}
	if in.Priority != nil {
		rec.Priority = *in.Priority
	}
	if in.Weight != nil {
		rec.Weight = *in.Weight
	}
	if in.Port != nil {
		rec.Port = *in.Port
	}
	if in.TTLSec != nil {
		rec.TTLSec = *in.TTLSec
	}
	rec, err := core.AddChild(ctx, h.state, domain.TableDomainRecords, id, rec)
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionDomainRecordCreate, domainRef(d))
	return response.Make(rec)
}

func (h domainHandlers) record(ctx context.Context, r *router.Request) (domain.Domain, domain.DomainRecord, response.Response, bool) {
	d, id, resp, ok := lookup[domain.Domain](ctx, h.env, r, "id", domain.TableDomains)
	if !ok {
		return d, domain.DomainRecord{}, resp, false
	}
	rec, _, resp, ok := lookupChild[domain.DomainRecord](ctx, h.env, r, "recordId", domain.TableDomainRecords, id)
	return d, rec, resp, ok
}

func (h domainHandlers) getRecord(ctx context.Context, r *router.Request) response.Response {
	_, rec, resp, ok := h.record(ctx, r)
	if !ok {
		return resp
	}
	return response.Make(rec)
}

func (h domainHandlers) updateRecord(ctx context.Context, r *router.Request) response.Response {
	d, rec, resp, ok := h.record(ctx, r)
	if !ok {
		return resp
	}
	var in domainRecordUpdateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	patch := struct {
		domainRecordUpdateInput
		Updated time.Time `json:"updated"`
	}{in, h.now()}
	updated, err := core.Update[domain.DomainRecord](ctx, h.state, domain.TableDomainRecords, rec.ID, patch)
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionDomainRecordUpdate, domainRef(d))
	return response.Make(updated)
}

func (h domainHandlers) deleteRecord(ctx context.Context, r *router.Request) response.Response {
	d, rec, resp, ok := h.record(ctx, r)
	if !ok {
		return resp
	}
	if err := core.Delete(ctx, h.state, domain.TableDomainRecords, rec.ID); err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionDomainRecordDelete, domainRef(d))
	return response.Empty()
}
