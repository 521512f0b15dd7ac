package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmock/internal/response"
	"cloudmock/pkg/domain"
)

func twoConfigBody() map[string]any {
	return map[string]any{
		"label":  "nb-test",
		"region": "us-east",
		"configs": []map[string]any{
			{
				"port": 80,
				"nodes": []map[string]any{
					{"label": "node-a", "address": "192.168.10.1:80"},
					{"label": "node-b", "address": "192.168.10.2:80", "weight": 50},
				},
			},
			{"port": 443, "protocol": "https"},
		},
	}
}

func TestNodeBalancerCreateWithConfigs(t *testing.T) {
	h := newHarness(t, 0)

	var nb domain.NodeBalancer
	h.mustDo(http.MethodPost, "/nodebalancers", twoConfigBody(), &nb)
	require.NotZero(t, nb.ID)
	assert.Equal(t, "nb-test", nb.Label)
	assert.NotEmpty(t, nb.Hostname)

	var configs response.Page[domain.NodeBalancerConfig]
	h.mustDo(http.MethodGet, path("/nodebalancers/%d/configs", nb.ID), nil, &configs)
	require.Equal(t, 2, configs.Results)
	for _, c := range configs.Data {
		assert.Equal(t, nb.ID, c.NodeBalancerID)
	}
	assert.Equal(t, 80, configs.Data[0].Port)
	assert.Equal(t, "http", configs.Data[0].Protocol)
	assert.Equal(t, 2, configs.Data[0].NodesStatus.Up)
	assert.Equal(t, "https", configs.Data[1].Protocol)
	assert.Equal(t, "roundrobin", configs.Data[1].Algorithm)

	var nodes response.Page[domain.NodeBalancerConfigNode]
	h.mustDo(http.MethodGet, path("/nodebalancers/%d/configs/%d/nodes", nb.ID, configs.Data[0].ID), nil, &nodes)
	require.Equal(t, 2, nodes.Results)
	assert.Equal(t, 100, nodes.Data[0].Weight)
	assert.Equal(t, 50, nodes.Data[1].Weight)
	assert.Equal(t, configs.Data[0].ID, nodes.Data[0].ConfigID)
}

func TestNodeBalancerDefaultLabel(t *testing.T) {
	h := newHarness(t, 0)
	var nb domain.NodeBalancer
	h.mustDo(http.MethodPost, "/nodebalancers", map[string]any{"region": "us-east"}, &nb)
	assert.Equal(t, path("nodebalancer%d", nb.ID), nb.Label)
}

func TestDeleteMissingNodeBalancerLeavesStoreUntouched(t *testing.T) {
	h := newHarness(t, 0)
	h.mustDo(http.MethodPost, "/nodebalancers", twoConfigBody(), nil)
	before := h.export()

	code, errs := h.errors(http.MethodDelete, "/nodebalancers/999", nil)
	assert.Equal(t, http.StatusNotFound, code)
	require.Len(t, errs, 1)
	assert.Equal(t, "Not found", errs[0].Reason)
	assert.Equal(t, before, h.export())
}

func TestGetAbsentNodeBalancerHasNoSideEffects(t *testing.T) {
	h := newHarness(t, 0)
	before := h.export()
	code, _ := h.errors(http.MethodGet, "/nodebalancers/42", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = h.errors(http.MethodGet, "/nodebalancers/not-a-number", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, before, h.export())
}

func TestNodeBalancerDeleteCascades(t *testing.T) {
	h := newHarness(t, 0)
	var fw domain.Firewall
	h.mustDo(http.MethodPost, "/networking/firewalls", map[string]any{"label": "fw-nb"}, &fw)

	body := twoConfigBody()
	body["firewall_id"] = fw.ID
	var nb domain.NodeBalancer
	h.mustDo(http.MethodPost, "/nodebalancers", body, &nb)
	require.Equal(t, 1, h.count(domain.TableFirewallDevices))

	var fws response.Page[domain.Firewall]
	h.mustDo(http.MethodGet, path("/nodebalancers/%d/firewalls", nb.ID), nil, &fws)
	require.Equal(t, 1, fws.Results)
	assert.Equal(t, fw.ID, fws.Data[0].ID)

	h.mustDo(http.MethodDelete, path("/nodebalancers/%d", nb.ID), nil, nil)

	assert.Zero(t, h.count(domain.TableNodeBalancers))
	assert.Zero(t, h.count(domain.TableNodeBalancerConfigs))
	assert.Zero(t, h.count(domain.TableNodeBalancerConfigNodes))
	assert.Zero(t, h.count(domain.TableFirewallDevices))

	var after domain.Firewall
	h.mustDo(http.MethodGet, path("/networking/firewalls/%d", fw.ID), nil, &after)
	assert.Empty(t, after.Entities)
}

func TestNodeBalancerCreateWithMissingFirewall(t *testing.T) {
	h := newHarness(t, 0)
	body := twoConfigBody()
	body["firewall_id"] = 77
	code, _ := h.errors(http.MethodPost, "/nodebalancers", body)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Zero(t, h.count(domain.TableNodeBalancers))
}

func TestNodeBalancerValidation(t *testing.T) {
	h := newHarness(t, 0)
	tests := []struct {
		name  string
		body  any
		field string
	}{
		{name: "region required", body: map[string]any{"label": "nb-ok"}, field: "region"},
		{name: "short label", body: map[string]any{"label": "x", "region": "us-east"}, field: "label"},
		{name: "throttle range", body: map[string]any{"region": "us-east", "client_conn_throttle": 21}, field: "client_conn_throttle"},
		{name: "public node address", body: map[string]any{
			"region":  "us-east",
			"configs": []map[string]any{{"nodes": []map[string]any{{"label": "node-a", "address": "8.8.8.8:80"}}}},
		}, field: "configs[0].nodes[0].address"},
		{name: "bad protocol", body: map[string]any{
			"region":  "us-east",
			"configs": []map[string]any{{"protocol": "gopher"}},
		}, field: "configs[0].protocol"},
		{name: "unknown field", body: map[string]any{"region": "us-east", "bogus": true}, field: "bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, errs := h.errors(http.MethodPost, "/nodebalancers", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			fields := make([]string, 0, len(errs))
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
	assert.Zero(t, h.count(domain.TableNodeBalancers))
}

func TestNodeBalancerNodeLifecycleRefreshesStatus(t *testing.T) {
	h := newHarness(t, 0)
	var nb domain.NodeBalancer
	h.mustDo(http.MethodPost, "/nodebalancers", twoConfigBody(), &nb)
	var configs response.Page[domain.NodeBalancerConfig]
	h.mustDo(http.MethodGet, path("/nodebalancers/%d/configs", nb.ID), nil, &configs)
	https := configs.Data[1]
	assert.Zero(t, https.NodesStatus.Up)

	var node domain.NodeBalancerConfigNode
	h.mustDo(http.MethodPost, path("/nodebalancers/%d/configs/%d/nodes", nb.ID, https.ID),
		map[string]any{"label": "node-c", "address": "192.168.10.3:443"}, &node)
	assert.Equal(t, nb.ID, node.NodeBalancerID)

	var cfg domain.NodeBalancerConfig
	h.mustDo(http.MethodGet, path("/nodebalancers/%d/configs/%d", nb.ID, https.ID), nil, &cfg)
	assert.Equal(t, 1, cfg.NodesStatus.Up)

	h.mustDo(http.MethodDelete, path("/nodebalancers/%d/configs/%d/nodes/%d", nb.ID, https.ID, node.ID), nil, nil)
	h.mustDo(http.MethodGet, path("/nodebalancers/%d/configs/%d", nb.ID, https.ID), nil, &cfg)
	assert.Zero(t, cfg.NodesStatus.Up)

	// A node is only reachable through the config that owns it.
	code, _ := h.errors(http.MethodGet, path("/nodebalancers/%d/configs/%d/nodes/1", nb.ID, https.ID), nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestNodeBalancerConfigDeleteRemovesNodes(t *testing.T) {
	h := newHarness(t, 0)
	var nb domain.NodeBalancer
	h.mustDo(http.MethodPost, "/nodebalancers", twoConfigBody(), &nb)
	var configs response.Page[domain.NodeBalancerConfig]
	h.mustDo(http.MethodGet, path("/nodebalancers/%d/configs", nb.ID), nil, &configs)

	h.mustDo(http.MethodDelete, path("/nodebalancers/%d/configs/%d", nb.ID, configs.Data[0].ID), nil, nil)
	assert.Equal(t, 1, h.count(domain.TableNodeBalancerConfigs))
	assert.Zero(t, h.count(domain.TableNodeBalancerConfigNodes))
}

func TestNodeBalancerUpdateConfigKeepsNodes(t *testing.T) {
	h := newHarness(t, 0)
	var nb domain.NodeBalancer
	h.mustDo(http.MethodPost, "/nodebalancers", twoConfigBody(), &nb)
	var configs response.Page[domain.NodeBalancerConfig]
	h.mustDo(http.MethodGet, path("/nodebalancers/%d/configs", nb.ID), nil, &configs)

	var cfg domain.NodeBalancerConfig
	h.mustDo(http.MethodPut, path("/nodebalancers/%d/configs/%d", nb.ID, configs.Data[0].ID),
		map[string]any{"port": 8080, "algorithm": "leastconn"}, &cfg)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "leastconn", cfg.Algorithm)
	assert.Equal(t, "http", cfg.Protocol)
	assert.Equal(t, 2, h.count(domain.TableNodeBalancerConfigNodes))
}

func TestNodeBalancerUpdateClearsTags(t *testing.T) {
	h := newHarness(t, 0)
	var nb domain.NodeBalancer
	h.mustDo(http.MethodPost, "/nodebalancers", map[string]any{"region": "us-east", "tags": []string{"edge"}}, &nb)
	require.Equal(t, []string{"edge"}, nb.Tags)

	var updated domain.NodeBalancer
	h.mustDo(http.MethodPut, path("/nodebalancers/%d", nb.ID), map[string]any{"tags": []string{}}, &updated)
	assert.Empty(t, updated.Tags)
	assert.Equal(t, nb.Label, updated.Label)
}
