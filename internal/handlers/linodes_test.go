package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmock/internal/response"
	"cloudmock/pkg/domain"
)

func (h *harness) linodeStatus(id int) domain.LinodeStatus {
	h.t.Helper()
	var l domain.Linode
	h.mustDo(http.MethodGet, path("/linode/instances/%d", id), nil, &l)
	return l.Status
}

func (h *harness) visibleEvents() []domain.Event {
	h.t.Helper()
	var page response.Page[domain.Event]
	h.mustDo(http.MethodGet, "/account/events?page_size=500", nil, &page)
	return page.Data
}

func actions(evs []domain.Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, string(ev.Action)+":"+string(ev.Status))
	}
	return out
}

func TestLinodeCreateBootsThroughEvents(t *testing.T) {
	delay := 10 * time.Second
	h := newHarness(t, delay)

	l := h.createLinode("us-east", map[string]any{"label": "web-1"})
	assert.Equal(t, domain.LinodeProvisioning, l.Status)
	assert.Equal(t, "web-1", l.Label)
	require.Len(t, l.IPv4, 1)
	assert.Equal(t, []string{"linode_create:scheduled"}, actions(h.visibleEvents()))

	h.clock.Advance(2 * delay)
	assert.Equal(t, domain.LinodeBooting, h.linodeStatus(l.ID))
	assert.Equal(t, []string{
		"linode_create:scheduled",
		"linode_create:started",
		"linode_create:finished",
		"linode_boot:started",
	}, actions(h.visibleEvents()))

	h.clock.Advance(delay)
	assert.Equal(t, domain.LinodeRunning, h.linodeStatus(l.ID))
	evs := h.visibleEvents()
	require.Len(t, evs, 5)
	assert.Equal(t, "linode_boot:finished", actions(evs)[4])
	require.NotNil(t, evs[4].PercentComplete)
	assert.Equal(t, 100, *evs[4].PercentComplete)
}

func TestLinodeCreateUnbootedSettlesOffline(t *testing.T) {
	h := newHarness(t, 0)
	l := h.createLinode("us-east", map[string]any{"booted": false, "private_ip": true})
	assert.Len(t, l.IPv4, 2)
	h.clock.Advance(0)
	assert.Equal(t, domain.LinodeOffline, h.linodeStatus(l.ID))
}

func TestLinodeCreateAddsDefaultConfig(t *testing.T) {
	h := newHarness(t, 0)
	l := h.createLinode("us-east", nil)
	assert.Equal(t, path("linode%d", l.ID), l.Label)

	var configs response.Page[domain.LinodeConfig]
	h.mustDo(http.MethodGet, path("/linode/instances/%d/configs", l.ID), nil, &configs)
	require.Equal(t, 1, configs.Results)
	assert.Equal(t, "My Boot Config", configs.Data[0].Label)
}

func TestLinodeShutdownAndBoot(t *testing.T) {
	h := newHarness(t, 0)
	l := h.createLinode("us-east", nil)
	h.clock.Advance(0)
	require.Equal(t, domain.LinodeRunning, h.linodeStatus(l.ID))

	var shutting domain.Linode
	h.mustDo(http.MethodPost, path("/linode/instances/%d/shutdown", l.ID), nil, &shutting)
	assert.Equal(t, domain.LinodeShuttingDown, shutting.Status)
	h.clock.Advance(0)
	assert.Equal(t, domain.LinodeOffline, h.linodeStatus(l.ID))

	h.mustDo(http.MethodPost, path("/linode/instances/%d/boot", l.ID), nil, nil)
	assert.Equal(t, domain.LinodeBooting, h.linodeStatus(l.ID))
	h.clock.Advance(0)
	assert.Equal(t, domain.LinodeRunning, h.linodeStatus(l.ID))
}

func TestLinodeDeleteCascadesAfterEvents(t *testing.T) {
	h := newHarness(t, time.Second)

	var vpc domain.VPC
	h.mustDo(http.MethodPost, "/vpcs", map[string]any{
		"label":   "vpc-app",
		"region":  "us-east",
		"subnets": []map[string]any{{"label": "subnet-a", "ipv4": "10.0.1.0/24"}},
	}, &vpc)
	require.Len(t, vpc.Subnets, 1)
	subnetID := vpc.Subnets[0].ID

	var fw domain.Firewall
	h.mustDo(http.MethodPost, "/networking/firewalls", map[string]any{"label": "fw-app"}, &fw)

	l := h.createLinode("us-east", map[string]any{
		"firewall_id": fw.ID,
		"interfaces":  []map[string]any{{"purpose": "vpc", "subnet_id": subnetID}},
	})
	var vol domain.Volume
	h.mustDo(http.MethodPost, "/volumes", map[string]any{"label": "data", "linode_id": l.ID}, &vol)
	require.NotNil(t, vol.LinodeID)

	var ips response.Page[domain.VPCIP]
	h.mustDo(http.MethodGet, path("/vpcs/%d/ips", vpc.ID), nil, &ips)
	require.Equal(t, 2, ips.Results)

	code, errs := h.errors(http.MethodDelete, path("/vpcs/%d", vpc.ID), nil)
	assert.Equal(t, http.StatusBadRequest, code)
	require.Len(t, errs, 1)
	assert.Equal(t, "Cannot delete a VPC with resources attached", errs[0].Reason)

	h.mustDo(http.MethodDelete, path("/linode/instances/%d", l.ID), nil, nil)
	// Deletion lands only once the shutdown and delete events have finished.
	h.linodeStatus(l.ID)

	h.clock.Advance(10 * time.Second)
	code, _ = h.errors(http.MethodGet, path("/linode/instances/%d", l.ID), nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Zero(t, h.count(domain.TableLinodeConfigs))
	assert.Zero(t, h.count(domain.TableFirewallDevices))

	h.mustDo(http.MethodGet, path("/volumes/%d", vol.ID), nil, &vol)
	assert.Nil(t, vol.LinodeID)
	assert.Nil(t, vol.LinodeLabel)

	h.mustDo(http.MethodGet, path("/networking/firewalls/%d", fw.ID), nil, &fw)
	assert.Empty(t, fw.Entities)

	h.mustDo(http.MethodGet, path("/vpcs/%d", vpc.ID), nil, &vpc)
	assert.Empty(t, vpc.Subnets[0].Linodes)
	h.mustDo(http.MethodGet, path("/vpcs/%d/ips", vpc.ID), nil, &ips)
	assert.Equal(t, 1, ips.Results)

	h.mustDo(http.MethodDelete, path("/vpcs/%d", vpc.ID), nil, nil)
	assert.Zero(t, h.count(domain.TableSubnets))
	assert.Zero(t, h.count(domain.TableVPCIPs))

	var seen []string
	for _, ev := range h.visibleEvents() {
		if ev.Entity != nil && ev.Entity.Type == "linode" {
			seen = append(seen, string(ev.Action)+":"+string(ev.Status))
		}
	}
	assert.Contains(t, seen, "linode_shutdown:finished")
	assert.Contains(t, seen, "linode_delete:finished")
}

func TestLinodeCreateRejectsMissingReferences(t *testing.T) {
	h := newHarness(t, 0)
	before := h.export()

	code, _ := h.errors(http.MethodPost, "/linode/instances", map[string]any{
		"region": "us-east", "type": "g6-nanode-1", "firewall_id": 9,
	})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = h.errors(http.MethodPost, "/linode/instances", map[string]any{
		"region": "us-east", "type": "g6-nanode-1",
		"interfaces": []map[string]any{{"purpose": "vpc", "subnet_id": 4}},
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, before, h.export())
}

func TestLinodeValidation(t *testing.T) {
	h := newHarness(t, 0)
	code, errs := h.errors(http.MethodPost, "/linode/instances", map[string]any{"image": "linode/debian12"})
	assert.Equal(t, http.StatusBadRequest, code)
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	assert.True(t, fields["region"])
	assert.True(t, fields["type"])
	assert.True(t, fields["root_pass"])

	code, errs = h.errors(http.MethodPost, "/linode/instances", map[string]any{
		"region": "us-east", "type": "g6-nanode-1",
		"interfaces": []map[string]any{{"purpose": "vpc"}},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	require.Len(t, errs, 1)
	assert.Equal(t, "interfaces[0].subnet_id", errs[0].Field)
}

func TestLinodeUpdate(t *testing.T) {
	h := newHarness(t, 0)
	l := h.createLinode("us-east", nil)
	var updated domain.Linode
	h.mustDo(http.MethodPut, path("/linode/instances/%d", l.ID), map[string]any{"label": "renamed", "tags": []string{"prod"}}, &updated)
	assert.Equal(t, "renamed", updated.Label)
	assert.Equal(t, []string{"prod"}, updated.Tags)
	assert.Equal(t, l.Region, updated.Region)
}

func TestLinodeUpdateClearsTags(t *testing.T) {
	h := newHarness(t, 0)
	l := h.createLinode("us-east", map[string]any{"tags": []string{"prod", "web"}})
	var updated domain.Linode
	h.mustDo(http.MethodPut, path("/linode/instances/%d", l.ID), map[string]any{"label": "kept-tags"}, &updated)
	assert.Equal(t, []string{"prod", "web"}, updated.Tags, "an absent key leaves tags alone")

	h.mustDo(http.MethodPut, path("/linode/instances/%d", l.ID), map[string]any{"tags": []string{}}, &updated)
	assert.Empty(t, updated.Tags)

	var got domain.Linode
	h.mustDo(http.MethodGet, path("/linode/instances/%d", l.ID), nil, &got)
	assert.NotNil(t, got.Tags)
	assert.Empty(t, got.Tags)
	assert.Equal(t, "kept-tags", got.Label)
}
