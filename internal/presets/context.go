package presets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloudmock/internal/core"
	"cloudmock/pkg/domain"
)

// Owned is a child-table entity together with the id of its parent as the
// populator knows it.
type Owned[T any] struct {
	ParentID int `json:"parent_id"`
	Value    T   `json:"value"`
}

// MockContext accumulates the entities populators contribute. Ids are
// optional; when set they are honoured if still free in the store, and child
// ParentIDs refer to them.
type MockContext struct {
	// Now is the session clock reading when population starts.
	Now time.Time `json:"-"`

	Linodes                 []domain.Linode                        `json:"linodes,omitempty"`
	LinodeConfigs           []Owned[domain.LinodeConfig]           `json:"linode_configs,omitempty"`
	NodeBalancers           []domain.NodeBalancer                  `json:"nodebalancers,omitempty"`
	NodeBalancerConfigs     []Owned[domain.NodeBalancerConfig]     `json:"nodebalancer_configs,omitempty"`
	NodeBalancerConfigNodes []Owned[domain.NodeBalancerConfigNode] `json:"nodebalancer_config_nodes,omitempty"`
	Firewalls               []domain.Firewall                      `json:"firewalls,omitempty"`
	FirewallDevices         []Owned[domain.FirewallDevice]         `json:"firewall_devices,omitempty"`
	VPCs                    []domain.VPC                           `json:"vpcs,omitempty"`
	Subnets                 []Owned[domain.Subnet]                 `json:"subnets,omitempty"`
	VPCIPs                  []domain.VPCIP                         `json:"vpc_ips,omitempty"`
	Volumes                 []domain.Volume                        `json:"volumes,omitempty"`
	Domains                 []domain.Domain                        `json:"domains,omitempty"`
	DomainRecords           []Owned[domain.DomainRecord]           `json:"domain_records,omitempty"`
	SupportTickets          []domain.SupportTicket                 `json:"support_tickets,omitempty"`
	SupportReplies          []Owned[domain.SupportReply]           `json:"support_replies,omitempty"`
	Quotas                  []domain.Quota                         `json:"quotas,omitempty"`
	Events                  []domain.Event                         `json:"events,omitempty"`
}

// NewMockContext returns an empty accumulator stamped with now.
func NewMockContext(now time.Time) *MockContext {
	return &MockContext{Now: now}
}

// Merge appends every entity of other onto mc.
func (mc *MockContext) Merge(other MockContext) {
	mc.Linodes = append(mc.Linodes, other.Linodes...)
	mc.LinodeConfigs = append(mc.LinodeConfigs, other.LinodeConfigs...)
	mc.NodeBalancers = append(mc.NodeBalancers, other.NodeBalancers...)
	mc.NodeBalancerConfigs = append(mc.NodeBalancerConfigs, other.NodeBalancerConfigs...)
	mc.NodeBalancerConfigNodes = append(mc.NodeBalancerConfigNodes, other.NodeBalancerConfigNodes...)
	mc.Firewalls = append(mc.Firewalls, other.Firewalls...)
	mc.FirewallDevices = append(mc.FirewallDevices, other.FirewallDevices...)
	mc.VPCs = append(mc.VPCs, other.VPCs...)
	mc.Subnets = append(mc.Subnets, other.Subnets...)
	mc.VPCIPs = append(mc.VPCIPs, other.VPCIPs...)
	mc.Volumes = append(mc.Volumes, other.Volumes...)
	mc.Domains = append(mc.Domains, other.Domains...)
	mc.DomainRecords = append(mc.DomainRecords, other.DomainRecords...)
	mc.SupportTickets = append(mc.SupportTickets, other.SupportTickets...)
	mc.SupportReplies = append(mc.SupportReplies, other.SupportReplies...)
	mc.Quotas = append(mc.Quotas, other.Quotas...)
	mc.Events = append(mc.Events, other.Events...)
}

// idMap translates the ids a populator used into the ids the store assigned.
type idMap map[int]int

func (m idMap) parent(table domain.Table, id int) (int, error) {
	stored, ok := m[id]
	if !ok {
		return 0, fmt.Errorf("%s parent %d was not populated", table, id)
	}
	return stored, nil
}

// writeRows inserts rows in order, remapping each ParentID through parents.
// A nil parents map marks a top-level table.
func writeRows[T any](ctx context.Context, state *core.MockState, table domain.Table, rows []Owned[T], parents idMap) (idMap, error) {
	ids := make(idMap, len(rows))
	for i, row := range rows {
		data, err := json.Marshal(row.Value)
		if err != nil {
			return nil, fmt.Errorf("encode %s[%d]: %w", table, i, err)
		}
		requested, err := domain.PeekID(data)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", table, i, err)
		}
		rec := domain.Record{ID: requested, Data: data}
		if parents != nil {
			if rec.ParentID, err = parents.parent(table, row.ParentID); err != nil {
				return nil, err
			}
		}
		stored, err := state.Store.Add(ctx, table, rec)
		if err != nil {
			return nil, fmt.Errorf("populate %s: %w", table, err)
		}
		if requested != 0 {
			if _, dup := ids[requested]; dup {
				return nil, fmt.Errorf("%s id %d populated twice", table, requested)
			}
			ids[requested] = stored.ID
		}
	}
	return ids, nil
}

func topLevel[T any](values []T) []Owned[T] {
	out := make([]Owned[T], len(values))
	for i, v := range values {
		out[i] = Owned[T]{Value: v}
	}
	return out
}

// Write stores the accumulated entities, parents before children. Only
// ParentIDs are remapped; references held inside entity bodies assume the
// requested ids were honoured, which holds on a freshly reset store.
func (mc *MockContext) Write(ctx context.Context, state *core.MockState) error {
	now := mc.Now
	if now.IsZero() {
		now = state.Clock.Now()
	}
	linodes, err := writeRows(ctx, state, domain.TableLinodes, topLevel(mc.Linodes), nil)
	if err != nil {
		return err
	}
	if _, err := writeRows(ctx, state, domain.TableLinodeConfigs, mc.LinodeConfigs, linodes); err != nil {
		return err
	}
	nodeBalancers, err := writeRows(ctx, state, domain.TableNodeBalancers, topLevel(mc.NodeBalancers), nil)
	if err != nil {
		return err
	}
	nbConfigs, err := writeRows(ctx, state, domain.TableNodeBalancerConfigs, mc.NodeBalancerConfigs, nodeBalancers)
	if err != nil {
		return err
	}
	if _, err := writeRows(ctx, state, domain.TableNodeBalancerConfigNodes, mc.NodeBalancerConfigNodes, nbConfigs); err != nil {
		return err
	}
	firewalls, err := writeRows(ctx, state, domain.TableFirewalls, topLevel(mc.Firewalls), nil)
	if err != nil {
		return err
	}
	if _, err := writeRows(ctx, state, domain.TableFirewallDevices, mc.FirewallDevices, firewalls); err != nil {
		return err
	}
	vpcs, err := writeRows(ctx, state, domain.TableVPCs, topLevel(mc.VPCs), nil)
	if err != nil {
		return err
	}
	if _, err := writeRows(ctx, state, domain.TableSubnets, mc.Subnets, vpcs); err != nil {
		return err
	}
	if _, err := writeRows(ctx, state, domain.TableVPCIPs, topLevel(mc.VPCIPs), nil); err != nil {
		return err
	}
	if _, err := writeRows(ctx, state, domain.TableVolumes, topLevel(mc.Volumes), nil); err != nil {
		return err
	}
	domains, err := writeRows(ctx, state, domain.TableDomains, topLevel(mc.Domains), nil)
	if err != nil {
		return err
	}
	if _, err := writeRows(ctx, state, domain.TableDomainRecords, mc.DomainRecords, domains); err != nil {
		return err
	}
	tickets, err := writeRows(ctx, state, domain.TableSupportTickets, topLevel(mc.SupportTickets), nil)
	if err != nil {
		return err
	}
	if _, err := writeRows(ctx, state, domain.TableSupportReplies, mc.SupportReplies, tickets); err != nil {
		return err
	}
	if _, err := writeRows(ctx, state, domain.TableQuotas, topLevel(mc.Quotas), nil); err != nil {
		return err
	}
	evs := make([]domain.Event, len(mc.Events))
	for i, ev := range mc.Events {
		if ev.Created.IsZero() {
			ev.Created = now
		}
		if ev.VisibleAt.IsZero() {
			ev.VisibleAt = ev.Created
		}
		evs[i] = ev
	}
	_, err = writeRows(ctx, state, domain.TableEvents, topLevel(evs), nil)
	return err
}
