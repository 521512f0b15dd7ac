package handlers

import (
	"context"
	"fmt"
	"time"

	"cloudmock/internal/core"
	"cloudmock/internal/response"
	"cloudmock/internal/router"
	"cloudmock/pkg/domain"
)

type firewallRuleInput struct {
	Action      string                       `json:"action"`
	Protocol    string                       `json:"protocol"`
	Ports       string                       `json:"ports"`
	Label       string                       `json:"label"`
	Description string                       `json:"description"`
	Addresses   domain.FirewallRuleAddresses `json:"addresses"`
}

type firewallRulesInput struct {
	InboundPolicy  *string             `json:"inbound_policy"`
	OutboundPolicy *string             `json:"outbound_policy"`
	Inbound        []firewallRuleInput `json:"inbound"`
	Outbound       []firewallRuleInput `json:"outbound"`
}

func (in firewallRulesInput) validate(v *domain.ValidationError, prefix string) {
	if in.InboundPolicy != nil {
		checkOneOf(v, prefix+"inbound_policy", *in.InboundPolicy, "ACCEPT", "DROP")
	}
	if in.OutboundPolicy != nil {
		checkOneOf(v, prefix+"outbound_policy", *in.OutboundPolicy, "ACCEPT", "DROP")
	}
	check := func(dir string, rules []firewallRuleInput) {
		for i, r := range rules {
			field := fmt.Sprintf("%s%s[%d].", prefix, dir, i)
			checkRequired(v, field+"action", r.Action)
			checkOneOf(v, field+"action", r.Action, "ACCEPT", "DROP")
			checkRequired(v, field+"protocol", r.Protocol)
			checkOneOf(v, field+"protocol", r.Protocol, "TCP", "UDP", "ICMP", "IPENCAP")
		}
	}
	check("inbound", in.Inbound)
	check("outbound", in.Outbound)
}

// merge overlays the supplied parts of in onto base.
func (in firewallRulesInput) merge(base domain.FirewallRules) domain.FirewallRules {
	if in.InboundPolicy != nil {
		base.InboundPolicy = *in.InboundPolicy
	}
	if in.OutboundPolicy != nil {
		base.OutboundPolicy = *in.OutboundPolicy
	}
	if in.Inbound != nil {
		base.Inbound = convertRules(in.Inbound)
	}
	if in.Outbound != nil {
		base.Outbound = convertRules(in.Outbound)
	}
	return base
}

func convertRules(in []firewallRuleInput) []domain.FirewallRule {
	out := make([]domain.FirewallRule, 0, len(in))
	for _, r := range in {
		out = append(out, domain.FirewallRule(r))
	}
	return out
}

func defaultRules() domain.FirewallRules {
	return domain.FirewallRules{
		InboundPolicy:  "DROP",
		OutboundPolicy: "ACCEPT",
		Inbound:        []domain.FirewallRule{},
		Outbound:       []domain.FirewallRule{},
	}
}

type firewallDevicesInput struct {
	Linodes       []int `json:"linodes"`
	NodeBalancers []int `json:"nodebalancers"`
}

type firewallCreateInput struct {
	Label   string                `json:"label"`
	Rules   *firewallRulesInput   `json:"rules"`
	Tags    []string              `json:"tags"`
	Devices *firewallDevicesInput `json:"devices"`
}

func (in firewallCreateInput) Validate() error {
	v := &domain.ValidationError{}
	checkLabel(v, "label", in.Label, 3, 32)
	if in.Rules != nil {
		in.Rules.validate(v, "rules.")
	}
	return v.Err()
}

type firewallUpdateInput struct {
	Label  *string   `json:"label,omitempty"`
	Status *string   `json:"status,omitempty"`
	Tags   *[]string `json:"tags,omitempty"`
}

func (in firewallUpdateInput) Validate() error {
	v := &domain.ValidationError{}
	if in.Label != nil {
		checkLabel(v, "label", *in.Label, 3, 32)
	}
	if in.Status != nil {
		checkOneOf(v, "status", *in.Status, "enabled", "disabled")
	}
	return v.Err()
}

type firewallDeviceInput struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

func (in firewallDeviceInput) Validate() error {
	v := &domain.ValidationError{}
	if in.ID <= 0 {
		v.Add("id", "id is required.")
	}
	checkRequired(v, "type", in.Type)
	checkOneOf(v, "type", in.Type, "linode", "nodebalancer")
	return v.Err()
}

// Firewalls serves cloud firewalls, their rules and device attachments.
//
// Cascade: deleting a firewall removes its devices. Deleting an attached
// Linode or NodeBalancer removes the matching devices and entity entries.
func Firewalls(state *core.MockState) router.HandlerSet {
	h := firewallHandlers{newEnv(state)}
	return router.HandlerSet{
		router.Get("*/v4*/networking/firewalls", h.list),
		router.Post("*/v4*/networking/firewalls", h.create),
		router.Get("*/v4*/networking/firewalls/:id", h.get),
		router.Put("*/v4*/networking/firewalls/:id", h.update),
		router.Delete("*/v4*/networking/firewalls/:id", h.delete),
		router.Get("*/v4*/networking/firewalls/:id/rules", h.getRules),
		router.Put("*/v4*/networking/firewalls/:id/rules", h.putRules),
		router.Get("*/v4*/networking/firewalls/:id/devices", h.listDevices),
		router.Post("*/v4*/networking/firewalls/:id/devices", h.createDevice),
		router.Get("*/v4*/networking/firewalls/:id/devices/:deviceId", h.getDevice),
		router.Delete("*/v4*/networking/firewalls/:id/devices/:deviceId", h.deleteDevice),
	}
}

type firewallHandlers struct{ env }

func (h firewallHandlers) list(ctx context.Context, r *router.Request) response.Response {
	return list[domain.Firewall](ctx, h.env, r, domain.TableFirewalls)
}

func (h firewallHandlers) get(ctx context.Context, r *router.Request) response.Response {
	fw, _, resp, ok := lookup[domain.Firewall](ctx, h.env, r, "id", domain.TableFirewalls)
	if !ok {
		return resp
	}
	return response.Make(fw)
}

func (h firewallHandlers) create(ctx context.Context, r *router.Request) response.Response {
	var in firewallCreateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.Validate(); err != nil {
		return response.FromError(err)
	}
	var targets []domain.EntityRef
	if in.Devices != nil {
		resolved, err := h.resolveDevices(ctx, *in.Devices)
		if err != nil {
			return response.FromError(err)
		}
		targets = resolved
	}

	now := h.now()
	rules := defaultRules()
	if in.Rules != nil {
		rules = in.Rules.merge(rules)
	}
	fw, err := core.Add(ctx, h.state, domain.TableFirewalls, domain.Firewall{
		Label:    in.Label,
		Status:   "enabled",
		Rules:    rules,
		Entities: []domain.EntityRef{},
		Tags:     orEmpty(in.Tags),
		Created:  now,
		Updated:  now,
	})
	if err != nil {
		return response.FromError(err)
	}
	for _, target := range targets {
		if fw, err = attachFirewall(ctx, h.env, fw, target); err != nil {
			return response.FromError(err)
		}
	}
	h.notify(ctx, domain.ActionFirewallCreate, firewallRef(fw))
	return response.Make(fw)
}

// resolveDevices maps requested device ids onto entity references, failing
// with not-found when one does not exist.
func (h firewallHandlers) resolveDevices(ctx context.Context, in firewallDevicesInput) ([]domain.EntityRef, error) {
	var out []domain.EntityRef
	for _, id := range in.Linodes {
		entity, err := deviceEntity(ctx, h.env, "linode", id)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	for _, id := range in.NodeBalancers {
		entity, err := deviceEntity(ctx, h.env, "nodebalancer", id)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

func (h firewallHandlers) update(ctx context.Context, r *router.Request) response.Response {
	_, id, resp, ok := lookup[domain.Firewall](ctx, h.env, r, "id", domain.TableFirewalls)
	if !ok {
		return resp
	}
	var in firewallUpdateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.Validate(); err != nil {
		return response.FromError(err)
	}
	patch := struct {
		firewallUpdateInput
		Updated time.Time `json:"updated"`
	}{in, h.now()}
	fw, err := core.Update[domain.Firewall](ctx, h.state, domain.TableFirewalls, id, patch)
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionFirewallUpdate, firewallRef(fw))
	return response.Make(fw)
}

func (h firewallHandlers) delete(ctx context.Context, r *router.Request) response.Response {
	fw, id, resp, ok := lookup[domain.Firewall](ctx, h.env, r, "id", domain.TableFirewalls)
	if !ok {
		return resp
	}
	if _, err := core.DeleteChildren(ctx, h.state, domain.TableFirewallDevices, id); err != nil {
		return response.FromError(err)
	}
	if err := core.Delete(ctx, h.state, domain.TableFirewalls, id); err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionFirewallDelete, firewallRef(fw))
	return response.Empty()
}

func (h firewallHandlers) getRules(ctx context.Context, r *router.Request) response.Response {
	fw, _, resp, ok := lookup[domain.Firewall](ctx, h.env, r, "id", domain.TableFirewalls)
	if !ok {
		return resp
	}
	return response.Make(fw.Rules)
}

func (h firewallHandlers) putRules(ctx context.Context, r *router.Request) response.Response {
	fw, id, resp, ok := lookup[domain.Firewall](ctx, h.env, r, "id", domain.TableFirewalls)
	if !ok {
		return resp
	}
	var in firewallRulesInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	v := &domain.ValidationError{}
	in.validate(v, "")
	if err := v.Err(); err != nil {
		return response.FromError(err)
	}
	rules := in.merge(fw.Rules)
	if _, err := core.Update[domain.Firewall](ctx, h.state, domain.TableFirewalls, id, map[string]any{
		"rules":   rules,
		"updated": h.now(),
	}); err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionFirewallRulesUpdate, firewallRef(fw))
	return response.Make(rules)
}

func (h firewallHandlers) listDevices(ctx context.Context, r *router.Request) response.Response {
	_, id, resp, ok := lookup[domain.Firewall](ctx, h.env, r, "id", domain.TableFirewalls)
	if !ok {
		return resp
	}
	return children[domain.FirewallDevice](ctx, h.env, r, domain.TableFirewallDevices, id)
}

func (h firewallHandlers) createDevice(ctx context.Context, r *router.Request) response.Response {
	fw, _, resp, ok := lookup[domain.Firewall](ctx, h.env, r, "id", domain.TableFirewalls)
	if !ok {
		return resp
	}
	var in firewallDeviceInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.Validate(); err != nil {
		return response.FromError(err)
	}
	entity, err := deviceEntity(ctx, h.env, in.Type, in.ID)
	if err != nil {
		return response.FromError(err)
	}
	for _, existing := range fw.Entities {
		if existing.ID == entity.ID && existing.Type == entity.Type {
			return response.MakeFieldError("id", "This entity is already assigned to the firewall.")
		}
	}
	fw, err = attachFirewall(ctx, h.env, fw, entity)
	if err != nil {
		return response.FromError(err)
	}
	device, err := deviceFor(ctx, h.env, fw.ID, entity)
	if err != nil {
		return response.FromError(err)
	}
	return response.Make(device)
}

func (h firewallHandlers) getDevice(ctx context.Context, r *router.Request) response.Response {
	_, id, resp, ok := lookup[domain.Firewall](ctx, h.env, r, "id", domain.TableFirewalls)
	if !ok {
		return resp
	}
	device, _, resp, ok := lookupChild[domain.FirewallDevice](ctx, h.env, r, "deviceId", domain.TableFirewallDevices, id)
	if !ok {
		return resp
	}
	return response.Make(device)
}

func (h firewallHandlers) deleteDevice(ctx context.Context, r *router.Request) response.Response {
	fw, id, resp, ok := lookup[domain.Firewall](ctx, h.env, r, "id", domain.TableFirewalls)
	if !ok {
		return resp
	}
	device, _, resp, ok := lookupChild[domain.FirewallDevice](ctx, h.env, r, "deviceId", domain.TableFirewallDevices, id)
	if !ok {
		return resp
	}
	if err := removeDevice(ctx, h.env, fw, device); err != nil {
		return response.FromError(err)
	}
	return response.Empty()
}

// deviceEntity builds the reference for an attachable entity, or a
// not-found error naming it.
func deviceEntity(ctx context.Context, e env, kind string, id int) (domain.EntityRef, error) {
	switch kind {
	case "linode":
		l, found, err := core.Get[domain.Linode](ctx, e.state, domain.TableLinodes, id)
		if err != nil {
			return domain.EntityRef{}, err
		}
		if !found {
			return domain.EntityRef{}, domain.NotFoundError{Table: domain.TableLinodes, ID: id}
		}
		return linodeRef(l), nil
	case "nodebalancer":
		nb, found, err := core.Get[domain.NodeBalancer](ctx, e.state, domain.TableNodeBalancers, id)
		if err != nil {
			return domain.EntityRef{}, err
		}
		if !found {
			return domain.EntityRef{}, domain.NotFoundError{Table: domain.TableNodeBalancers, ID: id}
		}
		return nodeBalancerRef(nb), nil
	}
	return domain.EntityRef{}, &domain.ValidationError{Errors: []domain.FieldError{{Field: "type", Reason: "Unsupported device type."}}}
}

// attachFirewall records a device row under fw and appends entity to the
// firewall's entity list. The caller has already resolved both sides.
func attachFirewall(ctx context.Context, e env, fw domain.Firewall, entity domain.EntityRef) (domain.Firewall, error) {
	now := e.now()
	if _, err := core.AddChild(ctx, e.state, domain.TableFirewallDevices, fw.ID, domain.FirewallDevice{
		Entity:  entity,
		Created: now,
		Updated: now,
	}); err != nil {
		return fw, err
	}
	entities := append(append([]domain.EntityRef{}, fw.Entities...), entity)
	updated, err := core.Update[domain.Firewall](ctx, e.state, domain.TableFirewalls, fw.ID, map[string]any{
		"entities": entities,
		"updated":  now,
	})
	if err != nil {
		return fw, err
	}
	e.notifySecondary(ctx, domain.ActionFirewallDeviceAdd, firewallRef(updated), &entity)
	return updated, nil
}

func deviceFor(ctx context.Context, e env, firewallID int, entity domain.EntityRef) (domain.FirewallDevice, error) {
	devices, err := core.Children[domain.FirewallDevice](ctx, e.state, domain.TableFirewallDevices, firewallID)
	if err != nil {
		return domain.FirewallDevice{}, err
	}
	for i := len(devices) - 1; i >= 0; i-- {
		if devices[i].Entity.ID == entity.ID && devices[i].Entity.Type == entity.Type {
			return devices[i], nil
		}
	}
	return domain.FirewallDevice{}, domain.NotFoundError{Table: domain.TableFirewallDevices, ID: entity.ID}
}

// removeDevice deletes one device row and drops its entity from fw.
func removeDevice(ctx context.Context, e env, fw domain.Firewall, device domain.FirewallDevice) error {
	if err := core.Delete(ctx, e.state, domain.TableFirewallDevices, device.ID); err != nil {
		return err
	}
	entities := make([]domain.EntityRef, 0, len(fw.Entities))
	for _, ent := range fw.Entities {
		if ent.ID == device.Entity.ID && ent.Type == device.Entity.Type {
			continue
		}
		entities = append(entities, ent)
	}
	if _, err := core.Update[domain.Firewall](ctx, e.state, domain.TableFirewalls, fw.ID, map[string]any{
		"entities": entities,
		"updated":  e.now(),
	}); err != nil {
		return err
	}
	entity := device.Entity
	e.notifySecondary(ctx, domain.ActionFirewallDeviceRemove, firewallRef(fw), &entity)
	return nil
}

// detachFromFirewalls removes entity from every firewall it is attached to.
func detachFromFirewalls(ctx context.Context, e env, entity domain.EntityRef) error {
	rows, err := core.GetRows[domain.FirewallDevice](ctx, e.state, domain.TableFirewallDevices)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.Value.Entity.ID != entity.ID || row.Value.Entity.Type != entity.Type {
			continue
		}
		fw, found, err := core.Get[domain.Firewall](ctx, e.state, domain.TableFirewalls, row.ParentID)
		if err != nil {
			return err
		}
		if !found {
			if err := core.Delete(ctx, e.state, domain.TableFirewallDevices, row.Value.ID); err != nil {
				return err
			}
			continue
		}
		if err := removeDevice(ctx, e, fw, row.Value); err != nil {
			return err
		}
	}
	return nil
}

// firewallsFor lists the firewalls entity is attached to.
func firewallsFor(ctx context.Context, e env, entity domain.EntityRef) ([]domain.Firewall, error) {
	all, err := core.GetAll[domain.Firewall](ctx, e.state, domain.TableFirewalls)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Firewall, 0)
	for _, fw := range all {
		for _, ent := range fw.Entities {
			if ent.ID == entity.ID && ent.Type == entity.Type {
				out = append(out, fw)
				break
			}
		}
	}
	return out, nil
}
