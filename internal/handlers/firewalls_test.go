package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmock/internal/response"
	"cloudmock/pkg/domain"
)

func TestFirewallDevices(t *testing.T) {
	h := newHarness(t, 0)
	l := h.createLinode("us-east", nil)

	var fw domain.Firewall
	h.mustDo(http.MethodPost, "/networking/firewalls", map[string]any{
		"label":   "fw-web",
		"devices": map[string]any{"linodes": []int{l.ID}},
	}, &fw)
	assert.Equal(t, "enabled", fw.Status)
	assert.Equal(t, "DROP", fw.Rules.InboundPolicy)
	require.Len(t, fw.Entities, 1)
	assert.Equal(t, "linode", fw.Entities[0].Type)

	code, errs := h.errors(http.MethodPost, path("/networking/firewalls/%d/devices", fw.ID), map[string]any{"id": l.ID, "type": "linode"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "id", errs[0].Field)

	var nb domain.NodeBalancer
	h.mustDo(http.MethodPost, "/nodebalancers", map[string]any{"region": "us-east"}, &nb)
	var device domain.FirewallDevice
	h.mustDo(http.MethodPost, path("/networking/firewalls/%d/devices", fw.ID), map[string]any{"id": nb.ID, "type": "nodebalancer"}, &device)
	assert.Equal(t, nb.ID, device.Entity.ID)

	var devices response.Page[domain.FirewallDevice]
	h.mustDo(http.MethodGet, path("/networking/firewalls/%d/devices", fw.ID), nil, &devices)
	assert.Equal(t, 2, devices.Results)

	var fws response.Page[domain.Firewall]
	h.mustDo(http.MethodGet, path("/linode/instances/%d/firewalls", l.ID), nil, &fws)
	assert.Equal(t, 1, fws.Results)

	h.mustDo(http.MethodDelete, path("/networking/firewalls/%d/devices/%d", fw.ID, device.ID), nil, nil)
	h.mustDo(http.MethodGet, path("/networking/firewalls/%d", fw.ID), nil, &fw)
	require.Len(t, fw.Entities, 1)
	assert.Equal(t, l.ID, fw.Entities[0].ID)

	h.mustDo(http.MethodDelete, path("/networking/firewalls/%d", fw.ID), nil, nil)
	assert.Zero(t, h.count(domain.TableFirewallDevices))
}

func TestFirewallMissingDeviceIsNotFound(t *testing.T) {
	h := newHarness(t, 0)
	before := h.export()
	code, _ := h.errors(http.MethodPost, "/networking/firewalls", map[string]any{
		"label":   "fw-web",
		"devices": map[string]any{"nodebalancers": []int{3}},
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, before, h.export())
}

func TestFirewallRules(t *testing.T) {
	h := newHarness(t, 0)
	var fw domain.Firewall
	h.mustDo(http.MethodPost, "/networking/firewalls", map[string]any{"label": "fw-rules"}, &fw)

	var rules domain.FirewallRules
	h.mustDo(http.MethodPut, path("/networking/firewalls/%d/rules", fw.ID), map[string]any{
		"inbound": []map[string]any{{
			"action":    "ACCEPT",
			"protocol":  "TCP",
			"ports":     "22,443",
			"addresses": map[string]any{"ipv4": []string{"0.0.0.0/0"}},
		}},
	}, &rules)
	require.Len(t, rules.Inbound, 1)
	assert.Equal(t, "22,443", rules.Inbound[0].Ports)
	assert.Equal(t, "ACCEPT", rules.OutboundPolicy)

	h.mustDo(http.MethodGet, path("/networking/firewalls/%d/rules", fw.ID), nil, &rules)
	assert.Len(t, rules.Inbound, 1)

	code, errs := h.errors(http.MethodPut, path("/networking/firewalls/%d/rules", fw.ID), map[string]any{
		"inbound_policy": "MAYBE",
		"outbound":       []map[string]any{{"action": "ACCEPT"}},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	assert.True(t, fields["inbound_policy"])
	assert.True(t, fields["outbound[0].protocol"])

	var disabled domain.Firewall
	h.mustDo(http.MethodPut, path("/networking/firewalls/%d", fw.ID), map[string]any{"status": "disabled"}, &disabled)
	assert.Equal(t, "disabled", disabled.Status)
	assert.Len(t, disabled.Rules.Inbound, 1)
}

func TestVPCSubnets(t *testing.T) {
	h := newHarness(t, 0)
	var vpc domain.VPC
	h.mustDo(http.MethodPost, "/vpcs", map[string]any{"label": "vpc-1", "region": "us-east"}, &vpc)
	assert.Empty(t, vpc.Subnets)

	var subnet domain.Subnet
	h.mustDo(http.MethodPost, path("/vpcs/%d/subnets", vpc.ID), map[string]any{"label": "s1", "ipv4": "10.0.0.0/24"}, &subnet)
	code, errs := h.errors(http.MethodPost, path("/vpcs/%d/subnets", vpc.ID), map[string]any{"label": "s2", "ipv4": "not-a-cidr"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ipv4", errs[0].Field)

	l := h.createLinode("us-east", map[string]any{
		"interfaces": []map[string]any{{"purpose": "vpc", "subnet_id": subnet.ID, "ipv4": map[string]any{"vpc": "10.0.0.5"}}},
	})
	h.mustDo(http.MethodGet, path("/vpcs/%d/subnets/%d", vpc.ID, subnet.ID), nil, &subnet)
	require.Len(t, subnet.Linodes, 1)
	assert.Equal(t, l.ID, subnet.Linodes[0].ID)

	var ips response.Page[domain.VPCIP]
	h.mustDo(http.MethodGet, "/vpcs/ips", nil, &ips)
	var addresses []string
	for _, ip := range ips.Data {
		addresses = append(addresses, ip.Address)
	}
	assert.Contains(t, addresses, "10.0.0.5")

	code, errs = h.errors(http.MethodDelete, path("/vpcs/%d/subnets/%d", vpc.ID, subnet.ID), nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Cannot delete a subnet with resources associated with it", errs[0].Reason)

	var renamed domain.Subnet
	h.mustDo(http.MethodPut, path("/vpcs/%d/subnets/%d", vpc.ID, subnet.ID), map[string]any{"label": "renamed"}, &renamed)
	assert.Equal(t, "renamed", renamed.Label)
	assert.Len(t, renamed.Linodes, 1)
}
