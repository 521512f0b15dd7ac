package handlers

import (
	"context"
	"fmt"
	"time"

	"cloudmock/internal/core"
	"cloudmock/internal/events"
	"cloudmock/internal/response"
	"cloudmock/internal/router"
	"cloudmock/pkg/domain"
)

type linodeCreateInput struct {
	Label          *string                `json:"label"`
	Region         string                 `json:"region"`
	Type           string                 `json:"type"`
	Image          *string                `json:"image"`
	RootPass       string                 `json:"root_pass"`
	AuthorizedKeys []string               `json:"authorized_keys"`
	Tags           []string               `json:"tags"`
	FirewallID     *int                   `json:"firewall_id"`
	Booted         *bool                  `json:"booted"`
	PrivateIP      bool                   `json:"private_ip"`
	BackupsEnabled bool                   `json:"backups_enabled"`
	Interfaces     []linodeInterfaceInput `json:"interfaces"`
}

type linodeInterfaceInput struct {
	Purpose     string  `json:"purpose"`
	Label       *string `json:"label"`
	IPAMAddress *string `json:"ipam_address"`
	SubnetID    *int    `json:"subnet_id"`
	IPv4        *struct {
		VPC string `json:"vpc"`
	} `json:"ipv4"`
}

func (in linodeInterfaceInput) validate(v *domain.ValidationError, prefix string) {
	checkRequired(v, prefix+"purpose", in.Purpose)
	checkOneOf(v, prefix+"purpose", in.Purpose, "public", "vlan", "vpc")
	if in.Purpose == "vpc" && in.SubnetID == nil {
		v.Add(prefix+"subnet_id", "subnet_id is required for VPC interfaces.")
	}
}

func (in linodeCreateInput) Validate() error {
	v := &domain.ValidationError{}
	checkRequired(v, "region", in.Region)
	checkRequired(v, "type", in.Type)
	if in.Label != nil {
		checkLabel(v, "label", *in.Label, 3, 64)
	}
	if in.Image != nil && in.RootPass == "" {
		v.Add("root_pass", "root_pass is required when deploying an image.")
	}
	for i, iface := range in.Interfaces {
		iface.validate(v, fmt.Sprintf("interfaces[%d].", i))
	}
	return v.Err()
}

// Update inputs hold Tags behind a pointer so an explicit empty list
// clears them while an absent key leaves them alone.
type linodeUpdateInput struct {
	Label *string   `json:"label,omitempty"`
	Tags  *[]string `json:"tags,omitempty"`
	Type  *string   `json:"type,omitempty"`
}

func (in linodeUpdateInput) Validate() error {
	v := &domain.ValidationError{}
	if in.Label != nil {
		checkLabel(v, "label", *in.Label, 3, 64)
	}
	return v.Err()
}

type linodeConfigInput struct {
	Label      *string `json:"label,omitempty"`
	Kernel     *string `json:"kernel,omitempty"`
	RootDevice *string `json:"root_device,omitempty"`
}

func (in linodeConfigInput) validate(create bool) error {
	v := &domain.ValidationError{}
	switch {
	case in.Label != nil:
		checkLabel(v, "label", *in.Label, 1, 48)
	case create:
		v.Add("label", "label is required.")
	}
	return v.Err()
}

// Linodes serves compute instances and their configuration profiles.
//
// Creation, boot, reboot, shutdown and deletion are asynchronous: each
// queues an event sequence and the status change lands once it finishes.
// Cascade: deleting a Linode removes its configs, firewall attachments, VPC
// addresses and subnet assignments, and detaches its volumes.
func Linodes(state *core.MockState) router.HandlerSet {
	h := linodeHandlers{newEnv(state)}
	return router.HandlerSet{
		router.Get("*/v4*/linode/instances", h.list),
		router.Post("*/v4*/linode/instances", h.create),
		router.Get("*/v4*/linode/instances/:id", h.get),
		router.Put("*/v4*/linode/instances/:id", h.update),
		router.Delete("*/v4*/linode/instances/:id", h.delete),
		router.Post("*/v4*/linode/instances/:id/boot", h.boot),
		router.Post("*/v4*/linode/instances/:id/reboot", h.reboot),
		router.Post("*/v4*/linode/instances/:id/shutdown", h.shutdown),
		router.Get("*/v4*/linode/instances/:id/firewalls", h.firewalls),
		router.Get("*/v4*/linode/instances/:id/volumes", h.volumes),
		router.Get("*/v4*/linode/instances/:id/configs", h.listConfigs),
		router.Post("*/v4*/linode/instances/:id/configs", h.createConfig),
		router.Get("*/v4*/linode/instances/:id/configs/:configId", h.getConfig),
		router.Put("*/v4*/linode/instances/:id/configs/:configId", h.updateConfig),
		router.Delete("*/v4*/linode/instances/:id/configs/:configId", h.deleteConfig),
	}
}

type linodeHandlers struct{ env }

func (h linodeHandlers) list(ctx context.Context, r *router.Request) response.Response {
	return list[domain.Linode](ctx, h.env, r, domain.TableLinodes)
}

func (h linodeHandlers) get(ctx context.Context, r *router.Request) response.Response {
	l, _, resp, ok := lookup[domain.Linode](ctx, h.env, r, "id", domain.TableLinodes)
	if !ok {
		return resp
	}
	return response.Make(l)
}

func (h linodeHandlers) create(ctx context.Context, r *router.Request) response.Response {
	var in linodeCreateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.Validate(); err != nil {
		return response.FromError(err)
	}
	var firewall domain.Firewall
	if in.FirewallID != nil {
		fw, found, err := core.Get[domain.Firewall](ctx, h.state, domain.TableFirewalls, *in.FirewallID)
		if err != nil {
			return response.FromError(err)
		}
		if !found {
			return response.NotFound()
		}
		firewall = fw
	}
	for _, iface := range in.Interfaces {
		if iface.Purpose != "vpc" {
			continue
		}
		if _, _, err := subnetOwner(ctx, h.env, *iface.SubnetID); err != nil {
			return response.FromError(err)
		}
	}

	now := h.now()
	l := domain.Linode{
		Region:  in.Region,
		Type:    in.Type,
		Image:   in.Image,
		Status:  domain.LinodeProvisioning,
		Tags:    orEmpty(in.Tags),
		Created: now,
		Updated: now,
	}
	if in.Label != nil {
		l.Label = *in.Label
	}
	l, err := core.Add(ctx, h.state, domain.TableLinodes, l)
	if err != nil {
		return response.FromError(err)
	}
	if l.Label == "" {
		l.Label = fmt.Sprintf("linode%d", l.ID)
	}
	l.IPv4 = []string{publicIPv4(l.ID)}
	if in.PrivateIP {
		l.IPv4 = append(l.IPv4, privateIPv4(l.ID))
	}
	if l, err = core.Put(ctx, h.state, domain.TableLinodes, l.ID, l); err != nil {
		return response.FromError(err)
	}
	cfg, err := core.AddChild(ctx, h.state, domain.TableLinodeConfigs, l.ID, domain.LinodeConfig{
		Label:      "My Boot Config",
		Kernel:     "linode/grub2",
		RootDevice: "/dev/sda",
		Created:    now,
		Updated:    now,
	})
	if err != nil {
		return response.FromError(err)
	}
	for _, iface := range in.Interfaces {
		if iface.Purpose != "vpc" {
			continue
		}
		address := ""
		if iface.IPv4 != nil {
			address = iface.IPv4.VPC
		}
		if err := assignLinodeToSubnet(ctx, h.env, *iface.SubnetID, l.ID, cfg.ID, address); err != nil {
			return response.FromError(err)
		}
	}
	if in.FirewallID != nil {
		if _, err := attachFirewall(ctx, h.env, firewall, linodeRef(l)); err != nil {
			return response.FromError(err)
		}
	}

	booted := in.Booted == nil || *in.Booted
	id := l.ID
	entity := linodeRef(l)
	h.queue(ctx, events.Input{
		Event:    domain.Event{Action: domain.ActionLinodeCreate, Entity: &entity},
		Sequence: events.Lifecycle(h.state.EventDelay),
		OnComplete: func(ctx context.Context) error {
			if !booted {
				return h.setStatus(ctx, id, domain.LinodeOffline)
			}
			return h.bootSequence(ctx, id, entity, domain.ActionLinodeBoot)
		},
	})
	return response.Make(l)
}

// bootSequence moves the instance to booting, queues action, and settles
// on running once it finishes.
func (h linodeHandlers) bootSequence(ctx context.Context, id int, entity domain.EntityRef, action domain.EventAction) error {
	if err := h.setStatus(ctx, id, domain.LinodeBooting); err != nil {
		return err
	}
	_, err := h.events.Queue(ctx, events.Input{
		Event:    domain.Event{Action: action, Entity: &entity},
		Sequence: events.StartFinish(h.state.EventDelay),
		OnComplete: func(ctx context.Context) error {
			return h.setStatus(ctx, id, domain.LinodeRunning)
		},
	})
	return err
}

// setStatus tolerates the instance having been deleted in the meantime.
func (h linodeHandlers) setStatus(ctx context.Context, id int, status domain.LinodeStatus) error {
	_, err := core.Update[domain.Linode](ctx, h.state, domain.TableLinodes, id, map[string]any{
		"status":  status,
		"updated": h.now(),
	})
	if isNotFound(err) {
		return nil
	}
	return err
}

func (h linodeHandlers) update(ctx context.Context, r *router.Request) response.Response {
	_, id, resp, ok := lookup[domain.Linode](ctx, h.env, r, "id", domain.TableLinodes)
	if !ok {
		return resp
	}
	var in linodeUpdateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.Validate(); err != nil {
		return response.FromError(err)
	}
	patch := struct {
		linodeUpdateInput
		Updated time.Time `json:"updated"`
	}{in, h.now()}
	l, err := core.Update[domain.Linode](ctx, h.state, domain.TableLinodes, id, patch)
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionLinodeUpdate, linodeRef(l))
	return response.Make(l)
}

func (h linodeHandlers) delete(ctx context.Context, r *router.Request) response.Response {
	l, id, resp, ok := lookup[domain.Linode](ctx, h.env, r, "id", domain.TableLinodes)
	if !ok {
		return resp
	}
	entity := linodeRef(l)
	h.queue(ctx, events.Input{
		Event:    domain.Event{Action: domain.ActionLinodeShutdown, Entity: &entity},
		Sequence: events.Lifecycle(h.state.EventDelay),
		OnComplete: func(ctx context.Context) error {
			if err := h.setStatus(ctx, id, domain.LinodeShuttingDown); err != nil {
				return err
			}
			_, err := h.events.Queue(ctx, events.Input{
				Event:    domain.Event{Action: domain.ActionLinodeDelete, Entity: &entity},
				Sequence: []events.Step{{Status: domain.EventFinished, Delay: h.state.EventDelay}},
				OnComplete: func(ctx context.Context) error {
					return deleteLinode(ctx, h.env, entity)
				},
			})
			return err
		},
	})
	return response.Empty()
}

// deleteLinode removes the instance and everything that references it.
func deleteLinode(ctx context.Context, e env, entity domain.EntityRef) error {
	id := entity.ID
	if _, err := core.DeleteChildren(ctx, e.state, domain.TableLinodeConfigs, id); err != nil {
		return err
	}
	if err := detachFromFirewalls(ctx, e, entity); err != nil {
		return err
	}
	if err := detachLinodeVolumes(ctx, e, id); err != nil {
		return err
	}
	if err := releaseLinodeFromVPCs(ctx, e, id); err != nil {
		return err
	}
	return core.Delete(ctx, e.state, domain.TableLinodes, id)
}

func (h linodeHandlers) boot(ctx context.Context, r *router.Request) response.Response {
	l, id, resp, ok := lookup[domain.Linode](ctx, h.env, r, "id", domain.TableLinodes)
	if !ok {
		return resp
	}
	if err := h.bootSequence(ctx, id, linodeRef(l), domain.ActionLinodeBoot); err != nil {
		return response.FromError(err)
	}
	return response.Empty()
}

func (h linodeHandlers) reboot(ctx context.Context, r *router.Request) response.Response {
	l, id, resp, ok := lookup[domain.Linode](ctx, h.env, r, "id", domain.TableLinodes)
	if !ok {
		return resp
	}
	if err := h.bootSequence(ctx, id, linodeRef(l), domain.ActionLinodeReboot); err != nil {
		return response.FromError(err)
	}
	return response.Empty()
}

func (h linodeHandlers) shutdown(ctx context.Context, r *router.Request) response.Response {
	l, id, resp, ok := lookup[domain.Linode](ctx, h.env, r, "id", domain.TableLinodes)
	if !ok {
		return resp
	}
	if err := h.setStatus(ctx, id, domain.LinodeShuttingDown); err != nil {
		return response.FromError(err)
	}
	entity := linodeRef(l)
	h.queue(ctx, events.Input{
		Event:    domain.Event{Action: domain.ActionLinodeShutdown, Entity: &entity},
		Sequence: events.Lifecycle(h.state.EventDelay),
		OnComplete: func(ctx context.Context) error {
			return h.setStatus(ctx, id, domain.LinodeOffline)
		},
	})
	l.Status = domain.LinodeShuttingDown
	return response.Make(l)
}

func (h linodeHandlers) firewalls(ctx context.Context, r *router.Request) response.Response {
	l, _, resp, ok := lookup[domain.Linode](ctx, h.env, r, "id", domain.TableLinodes)
	if !ok {
		return resp
	}
	fws, err := firewallsFor(ctx, h.env, linodeRef(l))
	if err != nil {
		return response.FromError(err)
	}
	return response.MakePaginated(fws, r.Request)
}

func (h linodeHandlers) volumes(ctx context.Context, r *router.Request) response.Response {
	_, id, resp, ok := lookup[domain.Linode](ctx, h.env, r, "id", domain.TableLinodes)
	if !ok {
		return resp
	}
	all, err := core.GetAll[domain.Volume](ctx, h.state, domain.TableVolumes)
	if err != nil {
		return response.FromError(err)
	}
	attached := make([]domain.Volume, 0)
	for _, v := range all {
		if v.LinodeID != nil && *v.LinodeID == id {
			attached = append(attached, v)
		}
	}
	return response.MakePaginated(attached, r.Request)
}

func (h linodeHandlers) listConfigs(ctx context.Context, r *router.Request) response.Response {
	_, id, resp, ok := lookup[domain.Linode](ctx, h.env, r, "id", domain.TableLinodes)
	if !ok {
		return resp
	}
	return children[domain.LinodeConfig](ctx, h.env, r, domain.TableLinodeConfigs, id)
}

func (h linodeHandlers) createConfig(ctx context.Context, r *router.Request) response.Response {
	l, id, resp, ok := lookup[domain.Linode](ctx, h.env, r, "id", domain.TableLinodes)
	if !ok {
		return resp
	}
	var in linodeConfigInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.validate(true); err != nil {
		return response.FromError(err)
	}
	now := h.now()
	cfg := domain.LinodeConfig{
		Label:      *in.Label,
		Kernel:     "linode/grub2",
		RootDevice: "/dev/sda",
		Created:    now,
		Updated:    now,
	}
	if in.Kernel != nil {
		cfg.Kernel = *in.Kernel
	}
	if in.RootDevice != nil {
		cfg.RootDevice = *in.RootDevice
	}
	cfg, err := core.AddChild(ctx, h.state, domain.TableLinodeConfigs, id, cfg)
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionLinodeConfigCreate, linodeRef(l))
	return response.Make(cfg)
}

func (h linodeHandlers) config(ctx context.Context, r *router.Request) (domain.Linode, domain.LinodeConfig, response.Response, bool) {
	l, id, resp, ok := lookup[domain.Linode](ctx, h.env, r, "id", domain.TableLinodes)
	if !ok {
		return l, domain.LinodeConfig{}, resp, false
	}
	cfg, _, resp, ok := lookupChild[domain.LinodeConfig](ctx, h.env, r, "configId", domain.TableLinodeConfigs, id)
	return l, cfg, resp, ok
}

func (h linodeHandlers) getConfig(ctx context.Context, r *router.Request) response.Response {
	_, cfg, resp, ok := h.config(ctx, r)
	if !ok {
		return resp
	}
	return response.Make(cfg)
}

func (h linodeHandlers) updateConfig(ctx context.Context, r *router.Request) response.Response {
	l, cfg, resp, ok := h.config(ctx, r)
	if !ok {
		return resp
	}
	var in linodeConfigInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.validate(false); err != nil {
		return response.FromError(err)
	}
	patch := struct {
		linodeConfigInput
		Updated time.Time `json:"updated"`
	}{in, h.now()}
	updated, err := core.Update[domain.LinodeConfig](ctx, h.state, domain.TableLinodeConfigs, cfg.ID, patch)
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionLinodeConfigUpdate, linodeRef(l))
	return response.Make(updated)
}

func (h linodeHandlers) deleteConfig(ctx context.Context, r *router.Request) response.Response {
	l, cfg, resp, ok := h.config(ctx, r)
	if !ok {
		return resp
	}
	if err := core.Delete(ctx, h.state, domain.TableLinodeConfigs, cfg.ID); err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionLinodeConfigDelete, linodeRef(l))
	return response.Empty()
}
