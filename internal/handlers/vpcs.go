package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloudmock/internal/core"
	"cloudmock/internal/response"
	"cloudmock/internal/router"
	"cloudmock/pkg/domain"
)

type subnetInput struct {
	Label string `json:"label"`
	IPv4  string `json:"ipv4"`
}

func (in subnetInput) validate(v *domain.ValidationError, prefix string) {
	checkLabel(v, prefix+"label", in.Label, 1, 64)
	checkRequired(v, prefix+"ipv4", in.IPv4)
	if in.IPv4 != "" {
		checkCIDR(v, prefix+"ipv4", in.IPv4)
	}
}

type vpcCreateInput struct {
	Label       string        `json:"label"`
	Description string        `json:"description"`
	Region      string        `json:"region"`
	Subnets     []subnetInput `json:"subnets"`
}

func (in vpcCreateInput) Validate() error {
	v := &domain.ValidationError{}
	checkLabel(v, "label", in.Label, 1, 64)
	checkRequired(v, "region", in.Region)
	if len(in.Description) > 255 {
		v.Add("description", "Description must be 255 characters or less.")
	}
	for i, s := range in.Subnets {
		s.validate(v, fmt.Sprintf("subnets[%d].", i))
	}
	return v.Err()
}

type vpcUpdateInput struct {
	Label       *string `json:"label,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (in vpcUpdateInput) Validate() error {
	v := &domain.ValidationError{}
	if in.Label != nil {
		checkLabel(v, "label", *in.Label, 1, 64)
	}
	if in.Description != nil && len(*in.Description) > 255 {
		v.Add("description", "Description must be 255 characters or less.")
	}
	return v.Err()
}

type subnetUpdateInput struct {
	Label *string `json:"label,omitempty"`
}

// VPCs serves virtual private clouds, their subnets and allocated addresses.
//
// Subnets are stored in their own child table and embedded into VPC bodies
// on read. A VPC or subnet with attached resources refuses deletion;
// otherwise deleting a VPC removes its subnets and addresses.
func VPCs(state *core.MockState) router.HandlerSet {
	h := vpcHandlers{newEnv(state)}
	return router.HandlerSet{
		router.Get("*/v4*/vpcs", h.list),
		router.Post("*/v4*/vpcs", h.create),
		router.Get("*/v4*/vpcs/ips", h.allIPs),
		router.Get("*/v4*/vpcs/:id", h.get),
		router.Put("*/v4*/vpcs/:id", h.update),
		router.Delete("*/v4*/vpcs/:id", h.delete),
		router.Get("*/v4*/vpcs/:id/ips", h.ips),
		router.Get("*/v4*/vpcs/:id/subnets", h.listSubnets),
		router.Post("*/v4*/vpcs/:id/subnets", h.createSubnet),
		router.Get("*/v4*/vpcs/:id/subnets/:subnetId", h.getSubnet),
		router.Put("*/v4*/vpcs/:id/subnets/:subnetId", h.updateSubnet),
		router.Delete("*/v4*/vpcs/:id/subnets/:subnetId", h.deleteSubnet),
	}
}

type vpcHandlers struct{ env }

// withSubnets fills the embedded subnet list from the child table.
func (h vpcHandlers) withSubnets(ctx context.Context, v domain.VPC) (domain.VPC, error) {
	subnets, err := core.Children[domain.Subnet](ctx, h.state, domain.TableSubnets, v.ID)
	if err != nil {
		return v, err
	}
	v.Subnets = subnets
	return v, nil
}

func (h vpcHandlers) list(ctx context.Context, r *router.Request) response.Response {
	all, err := core.GetAll[domain.VPC](ctx, h.state, domain.TableVPCs)
	if err != nil {
		return response.FromError(err)
	}
	for i := range all {
		if all[i], err = h.withSubnets(ctx, all[i]); err != nil {
			return response.FromError(err)
		}
	}
	return response.MakePaginated(all, r.Request)
}

func (h vpcHandlers) get(ctx context.Context, r *router.Request) response.Response {
	v, _, resp, ok := lookup[domain.VPC](ctx, h.env, r, "id", domain.TableVPCs)
	if !ok {
		return resp
	}
	v, err := h.withSubnets(ctx, v)
	if err != nil {
		return response.FromError(err)
	}
	return response.Make(v)
}

func (h vpcHandlers) create(ctx context.Context, r *router.Request) response.Response {
	var in vpcCreateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.Validate(); err != nil {
		return response.FromError(err)
	}
	now := h.now()
	v, err := core.Add(ctx, h.state, domain.TableVPCs, domain.VPC{
		Label:       in.Label,
		Description: in.Description,
		Region:      in.Region,
		Created:     now,
		Updated:     now,
	})
	if err != nil {
		return response.FromError(err)
	}
	for _, s := range in.Subnets {
		if _, err := h.addSubnet(ctx, v.ID, s, now); err != nil {
			return response.FromError(err)
		}
	}
	if _, err := core.Add(ctx, h.state, domain.TableVPCIPs, domain.VPCIP{
		Address: fmt.Sprintf("10.%d.0.1", v.ID%256),
		VPCID:   v.ID,
		Region:  v.Region,
		Active:  true,
	}); err != nil {
		return response.FromError(err)
	}
	if v, err = h.withSubnets(ctx, v); err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionVPCCreate, vpcRef(v))
	return response.Make(v)
}

func (h vpcHandlers) addSubnet(ctx context.Context, vpcID int, in subnetInput, now time.Time) (domain.Subnet, error) {
	return core.AddChild(ctx, h.state, domain.TableSubnets, vpcID, domain.Subnet{
		Label:         in.Label,
		IPv4:          in.IPv4,
		Linodes:       []domain.SubnetLinode{},
		NodeBalancers: []domain.SubnetNodeBalancer{},
		Created:       now,
		Updated:       now,
	})
}

func (h vpcHandlers) update(ctx context.Context, r *router.Request) response.Response {
	_, id, resp, ok := lookup[domain.VPC](ctx, h.env, r, "id", domain.TableVPCs)
	if !ok {
		return resp
	}
	var in vpcUpdateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.Validate(); err != nil {
		return response.FromError(err)
	}
	patch := struct {
		vpcUpdateInput
		Updated time.Time `json:"updated"`
	}{in, h.now()}
	v, err := core.Update[domain.VPC](ctx, h.state, domain.TableVPCs, id, patch)
	if err != nil {
		return response.FromError(err)
	}
	if v, err = h.withSubnets(ctx, v); err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionVPCUpdate, vpcRef(v))
	return response.Make(v)
}

func (h vpcHandlers) delete(ctx context.Context, r *router.Request) response.Response {
	v, id, resp, ok := lookup[domain.VPC](ctx, h.env, r, "id", domain.TableVPCs)
	if !ok {
		return resp
	}
	v, err := h.withSubnets(ctx, v)
	if err != nil {
		return response.FromError(err)
	}
	for _, s := range v.Subnets {
		if s.HasResources() {
			return response.MakeError(http.StatusBadRequest, "Cannot delete a VPC with resources attached")
		}
	}
	ips, err := core.GetAll[domain.VPCIP](ctx, h.state, domain.TableVPCIPs)
	if err != nil {
		return response.FromError(err)
	}
	for _, ip := range ips {
		if ip.VPCID != id {
			continue
		}
		if err := core.Delete(ctx, h.state, domain.TableVPCIPs, ip.ID); err != nil {
			return response.FromError(err)
		}
	}
	if _, err := core.DeleteChildren(ctx, h.state, domain.TableSubnets, id); err != nil {
		return response.FromError(err)
	}
	if err := core.Delete(ctx, h.state, domain.TableVPCs, id); err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionVPCDelete, vpcRef(v))
	return response.Empty()
}

func (h vpcHandlers) allIPs(ctx context.Context, r *router.Request) response.Response {
	return list[domain.VPCIP](ctx, h.env, r, domain.TableVPCIPs)
}

func (h vpcHandlers) ips(ctx context.Context, r *router.Request) response.Response {
	_, id, resp, ok := lookup[domain.VPC](ctx, h.env, r, "id", domain.TableVPCs)
	if !ok {
		return resp
	}
	all, err := core.GetAll[domain.VPCIP](ctx, h.state, domain.TableVPCIPs)
	if err != nil {
		return response.FromError(err)
	}
	out := make([]domain.VPCIP, 0)
	for _, ip := range all {
		if ip.VPCID == id {
			out = append(out, ip)
		}
	}
	return response.MakePaginated(out, r.Request)
}

func (h vpcHandlers) listSubnets(ctx context.Context, r *router.Request) response.Response {
	_, id, resp, ok := lookup[domain.VPC](ctx, h.env, r, "id", domain.TableVPCs)
	if !ok {
		return resp
	}
	return children[domain.Subnet](ctx, h.env, r, domain.TableSubnets, id)
}

func (h vpcHandlers) createSubnet(ctx context.Context, r *router.Request) response.Response {
	v, id, resp, ok := lookup[domain.VPC](ctx, h.env, r, "id", domain.TableVPCs)
	if !ok {
		return resp
	}
	var in subnetInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	verr := &domain.ValidationError{}
	in.validate(verr, "")
	if err := verr.Err(); err != nil {
		return response.FromError(err)
	}
	s, err := h.addSubnet(ctx, id, in, h.now())
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionSubnetCreate, subnetRef(v, s))
	return response.Make(s)
}

func (h vpcHandlers) subnet(ctx context.Context, r *router.Request) (domain.VPC, domain.Subnet, response.Response, bool) {
	v, id, resp, ok := lookup[domain.VPC](ctx, h.env, r, "id", domain.TableVPCs)
	if !ok {
		return v, domain.Subnet{}, resp, false
	}
	s, _, resp, ok := lookupChild[domain.Subnet](ctx, h.env, r, "subnetId", domain.TableSubnets, id)
	return v, s, resp, ok
}

func (h vpcHandlers) getSubnet(ctx context.Context, r *router.Request) response.Response {
	_, s, resp, ok := h.subnet(ctx, r)
	if !ok {
		return resp
	}
	return response.Make(s)
}

func (h vpcHandlers) updateSubnet(ctx context.Context, r *router.Request) response.Response {
	v, s, resp, ok := h.subnet(ctx, r)
	if !ok {
		return resp
	}
	var in subnetUpdateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if in.Label != nil {
		verr := &domain.ValidationError{}
		checkLabel(verr, "label", *in.Label, 1, 64)
		if err := verr.Err(); err != nil {
			return response.FromError(err)
		}
	}
	patch := struct {
		subnetUpdateInput
		Updated time.Time `json:"updated"`
	}{in, h.now()}
	updated, err := core.Update[domain.Subnet](ctx, h.state, domain.TableSubnets, s.ID, patch)
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionSubnetUpdate, subnetRef(v, updated))
	return response.Make(updated)
}

func (h vpcHandlers) deleteSubnet(ctx context.Context, r *router.Request) response.Response {
	v, s, resp, ok := h.subnet(ctx, r)
	if !ok {
		return resp
	}
	if s.HasResources() {
		return response.MakeError(http.StatusBadRequest, "Cannot delete a subnet with resources associated with it")
	}
	if err := core.Delete(ctx, h.state, domain.TableSubnets, s.ID); err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionSubnetDelete, subnetRef(v, s))
	return response.Empty()
}

func subnetRef(v domain.VPC, s domain.Subnet) domain.EntityRef {
	return ref(s.ID, s.Label, "subnet", fmt.Sprintf("/v4/vpcs/%d/subnets/%d", v.ID, s.ID))
}

// releaseLinodeFromVPCs drops linodeID from every subnet assignment and
// frees the addresses it held.
func releaseLinodeFromVPCs(ctx context.Context, e env, linodeID int) error {
	rows, err := core.GetRows[domain.Subnet](ctx, e.state, domain.TableSubnets)
	if err != nil {
		return err
	}
	for _, row := range rows {
		kept := make([]domain.SubnetLinode, 0, len(row.Value.Linodes))
		for _, l := range row.Value.Linodes {
			if l.ID != linodeID {
				kept = append(kept, l)
			}
		}
		if len(kept) == len(row.Value.Linodes) {
			continue
		}
		if _, err := core.Update[domain.Subnet](ctx, e.state, domain.TableSubnets, row.Value.ID, map[string]any{
			"linodes": kept,
			"updated": e.now(),
		}); err != nil {
			return err
		}
	}
	ips, err := core.GetAll[domain.VPCIP](ctx, e.state, domain.TableVPCIPs)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		if ip.LinodeID != nil && *ip.LinodeID == linodeID {
			if err := core.Delete(ctx, e.state, domain.TableVPCIPs, ip.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// subnetOwner finds the subnet and the VPC that owns it.
func subnetOwner(ctx context.Context, e env, subnetID int) (domain.Subnet, int, error) {
	rows, err := core.GetRows[domain.Subnet](ctx, e.state, domain.TableSubnets)
	if err != nil {
		return domain.Subnet{}, 0, err
	}
	for _, row := range rows {
		if row.Value.ID == subnetID {
			return row.Value, row.ParentID, nil
		}
	}
	return domain.Subnet{}, 0, domain.NotFoundError{Table: domain.TableSubnets, ID: subnetID}
}

// assignLinodeToSubnet records the instance on the subnet and allocates the
// VPC address it holds. An empty address is derived from the ids.
func assignLinodeToSubnet(ctx context.Context, e env, subnetID, linodeID, configID int, address string) error {
	subnet, vpcID, err := subnetOwner(ctx, e, subnetID)
	if err != nil {
		return err
	}
	if address == "" {
		address = fmt.Sprintf("10.%d.%d.%d", vpcID%256, subnet.ID%256, linodeID%254+2)
	}
	linodes := append(append([]domain.SubnetLinode{}, subnet.Linodes...), domain.SubnetLinode{
		ID:         linodeID,
		Interfaces: []domain.SubnetInterface{{ID: linodeID, Active: true, ConfigID: ptr(configID)}},
	})
	if _, err := core.Update[domain.Subnet](ctx, e.state, domain.TableSubnets, subnet.ID, map[string]any{
		"linodes": linodes,
		"updated": e.now(),
	}); err != nil {
		return err
	}
	vpc, found, err := core.Get[domain.VPC](ctx, e.state, domain.TableVPCs, vpcID)
	if err != nil {
		return err
	}
	if !found {
		return domain.NotFoundError{Table: domain.TableVPCs, ID: vpcID}
	}
	_, err = core.Add(ctx, e.state, domain.TableVPCIPs, domain.VPCIP{
		Address:  address,
		VPCID:    vpcID,
		SubnetID: ptr(subnet.ID),
		LinodeID: ptr(linodeID),
		Region:   vpc.Region,
		Active:   true,
	})
	return err
}
