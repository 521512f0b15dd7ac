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

type nodeBalancerNodeInput struct {
	Label   string `json:"label"`
	Address string `json:"address"`
	Weight  *int   `json:"weight"`
	Mode    string `json:"mode"`
}

func (in nodeBalancerNodeInput) validate(v *domain.ValidationError, prefix string) {
	checkLabel(v, prefix+"label", in.Label, 3, 32)
	checkPrivateAddress(v, prefix+"address", in.Address)
	if in.Weight != nil {
		checkRange(v, prefix+"weight", *in.Weight, 1, 255)
	}
	checkOneOf(v, prefix+"mode", in.Mode, "accept", "reject", "drain", "backup")
}

type nodeBalancerConfigInput struct {
	Port          *int                    `json:"port"`
	Protocol      string                  `json:"protocol"`
	Algorithm     string                  `json:"algorithm"`
	Stickiness    string                  `json:"stickiness"`
	Check         string                  `json:"check"`
	CheckInterval *int                    `json:"check_interval"`
	CheckTimeout  *int                    `json:"check_timeout"`
	CheckAttempts *int                    `json:"check_attempts"`
	CheckPath     string                  `json:"check_path"`
	CipherSuite   string                  `json:"cipher_suite"`
	Nodes         []nodeBalancerNodeInput `json:"nodes"`
}

func (in nodeBalancerConfigInput) validate(v *domain.ValidationError, prefix string) {
	if in.Port != nil {
		checkRange(v, prefix+"port", *in.Port, 1, 65535)
	}
	checkOneOf(v, prefix+"protocol", in.Protocol, "http", "https", "tcp", "udp")
	checkOneOf(v, prefix+"algorithm", in.Algorithm, "roundrobin", "leastconn", "source", "ring_hash")
	checkOneOf(v, prefix+"stickiness", in.Stickiness, "none", "table", "http_cookie", "session", "source_ip")
	checkOneOf(v, prefix+"check", in.Check, "none", "connection", "http", "http_body")
	if in.CheckInterval != nil {
		checkRange(v, prefix+"check_interval", *in.CheckInterval, 2, 3600)
	}
	if in.CheckTimeout != nil {
		checkRange(v, prefix+"check_timeout", *in.CheckTimeout, 1, 30)
	}
	if in.CheckAttempts != nil {
		checkRange(v, prefix+"check_attempts", *in.CheckAttempts, 1, 30)
	}
	for i, n := range in.Nodes {
		n.validate(v, fmt.Sprintf("%snodes[%d].", prefix, i))
	}
}

// build applies defaults for fields the caller left out.
func (in nodeBalancerConfigInput) build(nbID int) domain.NodeBalancerConfig {
	cfg := domain.NodeBalancerConfig{
		NodeBalancerID: nbID,
		Port:           80,
		Protocol:       "http",
		Algorithm:      "roundrobin",
		Stickiness:     "none",
		Check:          "none",
		CheckInterval:  5,
		CheckTimeout:   3,
		CheckAttempts:  2,
		CheckPath:      in.CheckPath,
		CipherSuite:    "recommended",
		NodesStatus:    domain.NodesStatus{Up: len(in.Nodes)},
	}
	if in.Port != nil {
		cfg.Port = *in.Port
	}
	setIf(&cfg.Protocol, in.Protocol)
	setIf(&cfg.Algorithm, in.Algorithm)
	setIf(&cfg.Stickiness, in.Stickiness)
	setIf(&cfg.Check, in.Check)
	setIf(&cfg.CipherSuite, in.CipherSuite)
	if in.CheckInterval != nil {
		cfg.CheckInterval = *in.CheckInterval
	}
	if in.CheckTimeout != nil {
		cfg.CheckTimeout = *in.CheckTimeout
	}
	if in.CheckAttempts != nil {
		cfg.CheckAttempts = *in.CheckAttempts
	}
	return cfg
}

func (in nodeBalancerNodeInput) build(nbID, configID int) domain.NodeBalancerConfigNode {
	node := domain.NodeBalancerConfigNode{
		NodeBalancerID: nbID,
		ConfigID:       configID,
		Label:          in.Label,
		Address:        in.Address,
		Weight:         100,
		Mode:           "accept",
		Status:         "UP",
	}
	if in.Weight != nil {
		node.Weight = *in.Weight
	}
	setIf(&node.Mode, in.Mode)
	return node
}

type nodeBalancerCreateInput struct {
	Label              *string                   `json:"label"`
	Region             string                    `json:"region"`
	ClientConnThrottle *int                      `json:"client_conn_throttle"`
	Tags               []string                  `json:"tags"`
	Configs            []nodeBalancerConfigInput `json:"configs"`
	FirewallID         *int                      `json:"firewall_id"`
}

func (in nodeBalancerCreateInput) Validate() error {
	v := &domain.ValidationError{}
	checkRequired(v, "region", in.Region)
	if in.Label != nil {
		checkLabel(v, "label", *in.Label, 3, 32)
	}
	if in.ClientConnThrottle != nil {
		checkRange(v, "client_conn_throttle", *in.ClientConnThrottle, 0, 20)
	}
	for i, c := range in.Configs {
		c.validate(v, fmt.Sprintf("configs[%d].", i))
	}
	return v.Err()
}

type nodeBalancerUpdateInput struct {
	Label              *string   `json:"label,omitempty"`
	ClientConnThrottle *int      `json:"client_conn_throttle,omitempty"`
	Tags               *[]string `json:"tags,omitempty"`
}

func (in nodeBalancerUpdateInput) Validate() error {
	v := &domain.ValidationError{}
	if in.Label != nil {
		checkLabel(v, "label", *in.Label, 3, 32)
	}
	if in.ClientConnThrottle != nil {
		checkRange(v, "client_conn_throttle", *in.ClientConnThrottle, 0, 20)
	}
	return v.Err()
}

// Config updates never touch nodes; a nodes field is accepted and ignored.
type nodeBalancerConfigUpdateInput struct {
	nodeBalancerConfigInput
}

func (in nodeBalancerConfigUpdateInput) Validate() error {
	v := &domain.ValidationError{}
	in.nodeBalancerConfigInput.Nodes = nil
	in.nodeBalancerConfigInput.validate(v, "")
	return v.Err()
}

// patch returns only the fields the caller supplied.
func (in nodeBalancerConfigUpdateInput) patch() map[string]any {
	p := map[string]any{}
	if in.Port != nil {
		p["port"] = *in.Port
	}
	putIf(p, "protocol", in.Protocol)
	putIf(p, "algorithm", in.Algorithm)
	putIf(p, "stickiness", in.Stickiness)
	putIf(p, "check", in.Check)
	putIf(p, "check_path", in.CheckPath)
	putIf(p, "cipher_suite", in.CipherSuite)
	if in.CheckInterval != nil {
		p["check_interval"] = *in.CheckInterval
	}
	if in.CheckTimeout != nil {
		p["check_timeout"] = *in.CheckTimeout
	}
	if in.CheckAttempts != nil {
		p["check_attempts"] = *in.CheckAttempts
	}
	return p
}

type nodeBalancerNodeUpdateInput struct {
	Label   *string `json:"label,omitempty"`
	Address *string `json:"address,omitempty"`
	Weight  *int    `json:"weight,omitempty"`
	Mode    *string `json:"mode,omitempty"`
}

func (in nodeBalancerNodeUpdateInput) Validate() error {
	v := &domain.ValidationError{}
	if in.Label != nil {
		checkLabel(v, "label", *in.Label, 3, 32)
	}
	if in.Address != nil {
		checkPrivateAddress(v, "address", *in.Address)
	}
	if in.Weight != nil {
		checkRange(v, "weight", *in.Weight, 1, 255)
	}
	if in.Mode != nil {
		checkOneOf(v, "mode", *in.Mode, "accept", "reject", "drain", "backup")
	}
	return v.Err()
}

// NodeBalancers serves load balancers with their configs and config nodes.
//
// Cascade: deleting a NodeBalancer removes its configs, their nodes and its
// firewall attachments; deleting a config removes its nodes.
func NodeBalancers(state *core.MockState) router.HandlerSet {
	h := nodeBalancerHandlers{newEnv(state)}
	return router.HandlerSet{
		router.Get("*/v4*/nodebalancers", h.list),
		router.Post("*/v4*/nodebalancers", h.create),
		router.Get("*/v4*/nodebalancers/types", h.types),
		router.Get("*/v4*/nodebalancers/:id", h.get),
		router.Put("*/v4*/nodebalancers/:id", h.update),
		router.Delete("*/v4*/nodebalancers/:id", h.delete),
		router.Get("*/v4*/nodebalancers/:id/firewalls", h.firewalls),
		router.Get("*/v4*/nodebalancers/:id/configs", h.listConfigs),
		router.Post("*/v4*/nodebalancers/:id/configs", h.createConfig),
		router.Get("*/v4*/nodebalancers/:id/configs/:configId", h.getConfig),
		router.Put("*/v4*/nodebalancers/:id/configs/:configId", h.updateConfig),
		router.Delete("*/v4*/nodebalancers/:id/configs/:configId", h.deleteConfig),
		router.Get("*/v4*/nodebalancers/:id/configs/:configId/nodes", h.listNodes),
		router.Post("*/v4*/nodebalancers/:id/configs/:configId/nodes", h.createNode),
		router.Get("*/v4*/nodebalancers/:id/configs/:configId/nodes/:nodeId", h.getNode),
		router.Put("*/v4*/nodebalancers/:id/configs/:configId/nodes/:nodeId", h.updateNode),
		router.Delete("*/v4*/nodebalancers/:id/configs/:configId/nodes/:nodeId", h.deleteNode),
	}
}

type nodeBalancerHandlers struct{ env }

type priceType struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Price monthly `json:"price"`
}

type monthly struct {
	Hourly  float64 `json:"hourly"`
	Monthly float64 `json:"monthly"`
}

func (h nodeBalancerHandlers) types(_ context.Context, r *router.Request) response.Response {
	return response.MakePaginated([]priceType{
		{ID: "nodebalancer", Label: "NodeBalancer", Price: monthly{Hourly: 0.015, Monthly: 10}},
	}, r.Request)
}

func (h nodeBalancerHandlers) list(ctx context.Context, r *router.Request) response.Response {
	return list[domain.NodeBalancer](ctx, h.env, r, domain.TableNodeBalancers)
}

func (h nodeBalancerHandlers) get(ctx context.Context, r *router.Request) response.Response {
	nb, _, resp, ok := lookup[domain.NodeBalancer](ctx, h.env, r, "id", domain.TableNodeBalancers)
	if !ok {
		return resp
	}
	return response.Make(nb)
}

func (h nodeBalancerHandlers) create(ctx context.Context, r *router.Request) response.Response {
	var in nodeBalancerCreateInput
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

	now := h.now()
	nb := domain.NodeBalancer{
		Region:  in.Region,
		Tags:    orEmpty(in.Tags),
		Created: now,
		Updated: now,
	}
	if in.ClientConnThrottle != nil {
		nb.ClientConnThrottle = *in.ClientConnThrottle
	}
	if in.Label != nil {
		nb.Label = *in.Label
	}
	nb, err := core.Add(ctx, h.state, domain.TableNodeBalancers, nb)
	if err != nil {
		return response.FromError(err)
	}
	if nb.Label == "" {
		nb.Label = fmt.Sprintf("nodebalancer%d", nb.ID)
	}
	nb.Hostname = fmt.Sprintf("nb-%d.%s.nodebalancer.linode.com", nb.ID, nb.Region)
	nb.IPv4 = publicIPv4(nb.ID)
	if nb, err = core.Put(ctx, h.state, domain.TableNodeBalancers, nb.ID, nb); err != nil {
		return response.FromError(err)
	}

	for _, c := range in.Configs {
		if _, err := h.addConfig(ctx, nb.ID, c); err != nil {
			return response.FromError(err)
		}
	}
	if in.FirewallID != nil {
		if _, err := attachFirewall(ctx, h.env, firewall, nodeBalancerRef(nb)); err != nil {
			return response.FromError(err)
		}
	}
	h.notify(ctx, domain.ActionNodeBalancerCreate, nodeBalancerRef(nb))
	return response.Make(nb)
}

// addConfig writes a config and then its inline nodes.
func (h nodeBalancerHandlers) addConfig(ctx context.Context, nbID int, in nodeBalancerConfigInput) (domain.NodeBalancerConfig, error) {
	cfg, err := core.AddChild(ctx, h.state, domain.TableNodeBalancerConfigs, nbID, in.build(nbID))
	if err != nil {
		return cfg, err
	}
	for _, n := range in.Nodes {
		if _, err := core.AddChild(ctx, h.state, domain.TableNodeBalancerConfigNodes, cfg.ID, n.build(nbID, cfg.ID)); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func (h nodeBalancerHandlers) update(ctx context.Context, r *router.Request) response.Response {
	_, id, resp, ok := lookup[domain.NodeBalancer](ctx, h.env, r, "id", domain.TableNodeBalancers)
	if !ok {
		return resp
	}
	var in nodeBalancerUpdateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.Validate(); err != nil {
		return response.FromError(err)
	}
	patch := struct {
		nodeBalancerUpdateInput
		Updated time.Time `json:"updated"`
	}{in, h.now()}
	nb, err := core.Update[domain.NodeBalancer](ctx, h.state, domain.TableNodeBalancers, id, patch)
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionNodeBalancerUpdate, nodeBalancerRef(nb))
	return response.Make(nb)
}

func (h nodeBalancerHandlers) delete(ctx context.Context, r *router.Request) response.Response {
	nb, id, resp, ok := lookup[domain.NodeBalancer](ctx, h.env, r, "id", domain.TableNodeBalancers)
	if !ok {
		return resp
	}
	configIDs, err := core.ChildIDs(ctx, h.state, domain.TableNodeBalancerConfigs, id)
	if err != nil {
		return response.FromError(err)
	}
	for _, cfgID := range configIDs {
		if _, err := core.DeleteChildren(ctx, h.state, domain.TableNodeBalancerConfigNodes, cfgID); err != nil {
			return response.FromError(err)
		}
	}
	if _, err := core.DeleteChildren(ctx, h.state, domain.TableNodeBalancerConfigs, id); err != nil {
		return response.FromError(err)
	}
	if err := detachFromFirewalls(ctx, h.env, nodeBalancerRef(nb)); err != nil {
		return response.FromError(err)
	}
	if err := core.Delete(ctx, h.state, domain.TableNodeBalancers, id); err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionNodeBalancerDelete, nodeBalancerRef(nb))
	return response.Empty()
}

func (h nodeBalancerHandlers) firewalls(ctx context.Context, r *router.Request) response.Response {
	nb, _, resp, ok := lookup[domain.NodeBalancer](ctx, h.env, r, "id", domain.TableNodeBalancers)
	if !ok {
		return resp
	}
	fws, err := firewallsFor(ctx, h.env, nodeBalancerRef(nb))
	if err != nil {
		return response.FromError(err)
	}
	return response.MakePaginated(fws, r.Request)
}

func (h nodeBalancerHandlers) listConfigs(ctx context.Context, r *router.Request) response.Response {
	_, id, resp, ok := lookup[domain.NodeBalancer](ctx, h.env, r, "id", domain.TableNodeBalancers)
	if !ok {
		return resp
	}
	return children[domain.NodeBalancerConfig](ctx, h.env, r, domain.TableNodeBalancerConfigs, id)
}

func (h nodeBalancerHandlers) createConfig(ctx context.Context, r *router.Request) response.Response {
	nb, id, resp, ok := lookup[domain.NodeBalancer](ctx, h.env, r, "id", domain.TableNodeBalancers)
	if !ok {
		return resp
	}
	var in nodeBalancerConfigInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	v := &domain.ValidationError{}
	in.validate(v, "")
	if err := v.Err(); err != nil {
		return response.FromError(err)
	}
	cfg, err := h.addConfig(ctx, id, in)
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionNodeBalancerConfigCreate, nodeBalancerRef(nb))
	return response.Make(cfg)
}

// config resolves both the NodeBalancer and the config scoped to it.
func (h nodeBalancerHandlers) config(ctx context.Context, r *router.Request) (domain.NodeBalancer, domain.NodeBalancerConfig, response.Response, bool) {
	nb, id, resp, ok := lookup[domain.NodeBalancer](ctx, h.env, r, "id", domain.TableNodeBalancers)
	if !ok {
		return nb, domain.NodeBalancerConfig{}, resp, false
	}
	cfg, _, resp, ok := lookupChild[domain.NodeBalancerConfig](ctx, h.env, r, "configId", domain.TableNodeBalancerConfigs, id)
	return nb, cfg, resp, ok
}

func (h nodeBalancerHandlers) getConfig(ctx context.Context, r *router.Request) response.Response {
	_, cfg, resp, ok := h.config(ctx, r)
	if !ok {
		return resp
	}
	return response.Make(cfg)
}

func (h nodeBalancerHandlers) updateConfig(ctx context.Context, r *router.Request) response.Response {
	nb, cfg, resp, ok := h.config(ctx, r)
	if !ok {
		return resp
	}
	var in nodeBalancerConfigUpdateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.Validate(); err != nil {
		return response.FromError(err)
	}
	updated, err := core.Update[domain.NodeBalancerConfig](ctx, h.state, domain.TableNodeBalancerConfigs, cfg.ID, in.patch())
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionNodeBalancerConfigUpdate, nodeBalancerRef(nb))
	return response.Make(updated)
}

func (h nodeBalancerHandlers) deleteConfig(ctx context.Context, r *router.Request) response.Response {
	nb, cfg, resp, ok := h.config(ctx, r)
	if !ok {
		return resp
	}
	if _, err := core.DeleteChildren(ctx, h.state, domain.TableNodeBalancerConfigNodes, cfg.ID); err != nil {
		return response.FromError(err)
	}
	if err := core.Delete(ctx, h.state, domain.TableNodeBalancerConfigs, cfg.ID); err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionNodeBalancerConfigDelete, nodeBalancerRef(nb))
	return response.Empty()
}

func (h nodeBalancerHandlers) listNodes(ctx context.Context, r *router.Request) response.Response {
	_, cfg, resp, ok := h.config(ctx, r)
	if !ok {
		return resp
	}
	return children[domain.NodeBalancerConfigNode](ctx, h.env, r, domain.TableNodeBalancerConfigNodes, cfg.ID)
}

func (h nodeBalancerHandlers) createNode(ctx context.Context, r *router.Request) response.Response {
	nb, cfg, resp, ok := h.config(ctx, r)
	if !ok {
		return resp
	}
	var in nodeBalancerNodeInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	v := &domain.ValidationError{}
	in.validate(v, "")
	if err := v.Err(); err != nil {
		return response.FromError(err)
	}
	node, err := core.AddChild(ctx, h.state, domain.TableNodeBalancerConfigNodes, cfg.ID, in.build(nb.ID, cfg.ID))
	if err != nil {
		return response.FromError(err)
	}
	if err := h.refreshNodesStatus(ctx, cfg.ID); err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionNodeBalancerNodeCreate, nodeBalancerRef(nb))
	return response.Make(node)
}

func (h nodeBalancerHandlers) node(ctx context.Context, r *router.Request) (domain.NodeBalancer, domain.NodeBalancerConfigNode, response.Response, bool) {
	nb, cfg, resp, ok := h.config(ctx, r)
	if !ok {
		return nb, domain.NodeBalancerConfigNode{}, resp, false
	}
	node, _, resp, ok := lookupChild[domain.NodeBalancerConfigNode](ctx, h.env, r, "nodeId", domain.TableNodeBalancerConfigNodes, cfg.ID)
	return nb, node, resp, ok
}

func (h nodeBalancerHandlers) getNode(ctx context.Context, r *router.Request) response.Response {
	_, node, resp, ok := h.node(ctx, r)
	if !ok {
		return resp
	}
	return response.Make(node)
}

func (h nodeBalancerHandlers) updateNode(ctx context.Context, r *router.Request) response.Response {
	nb, node, resp, ok := h.node(ctx, r)
	if !ok {
		return resp
	}
	var in nodeBalancerNodeUpdateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.Validate(); err != nil {
		return response.FromError(err)
	}
	updated, err := core.Update[domain.NodeBalancerConfigNode](ctx, h.state, domain.TableNodeBalancerConfigNodes, node.ID, in)
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionNodeBalancerNodeUpdate, nodeBalancerRef(nb))
	return response.Make(updated)
}

func (h nodeBalancerHandlers) deleteNode(ctx context.Context, r *router.Request) response.Response {
	nb, node, resp, ok := h.node(ctx, r)
	if !ok {
		return resp
	}
	if err := core.Delete(ctx, h.state, domain.TableNodeBalancerConfigNodes, node.ID); err != nil {
		return response.FromError(err)
	}
	if err := h.refreshNodesStatus(ctx, node.ConfigID); err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionNodeBalancerNodeDelete, nodeBalancerRef(nb))
	return response.Empty()
}

func (h nodeBalancerHandlers) refreshNodesStatus(ctx context.Context, configID int) error {
	nodes, err := core.Children[domain.NodeBalancerConfigNode](ctx, h.state, domain.TableNodeBalancerConfigNodes, configID)
	if err != nil {
		return err
	}
	status := domain.NodesStatus{}
	for _, n := range nodes {
		if n.Status == "DOWN" {
			status.Down++
			continue
		}
		status.Up++
	}
	_, err = core.Update[domain.NodeBalancerConfig](ctx, h.state, domain.TableNodeBalancerConfigs, configID, map[string]any{"nodes_status": status})
	return err
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func putIf(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}
