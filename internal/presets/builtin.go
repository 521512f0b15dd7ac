package presets

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"cloudmock/internal/core"
	"cloudmock/internal/handlers"
	"cloudmock/internal/response"
	"cloudmock/internal/router"
	"cloudmock/pkg/domain"
)

// Options tunes the builtin presets.
type Options struct {
	// ResponseDelay is the latency added by api:response-time.
	ResponseDelay time.Duration
	// ManyLinodes is the instance count seeded by linodes:many.
	ManyLinodes int
	// Fixtures maps a fixture name to its YAML document; each becomes a
	// fixtures:<name> populator.
	Fixtures map[string][]byte
}

const (
	defaultResponseDelay = 1500 * time.Millisecond
	defaultManyLinodes   = 30
)

// Builtin returns a registry holding every stock baseline, extra, and
// populator plus one populator per fixture.
func Builtin(opts Options) (*Registry, error) {
	if opts.ResponseDelay <= 0 {
		opts.ResponseDelay = defaultResponseDelay
	}
	if opts.ManyLinodes <= 0 {
		opts.ManyLinodes = defaultManyLinodes
	}
	r := NewRegistry()
	for _, b := range []Baseline{
		{ID: "baseline:crud", Label: "Stateful CRUD handlers for every resource", Factories: handlers.CRUD()},
		{ID: "baseline:no-mocks", Label: "No mocked endpoints"},
	} {
		if err := r.RegisterBaseline(b); err != nil {
			return nil, err
		}
	}
	for _, e := range []Extra{
		{ID: "api:response-time", Label: "Delay every response", Factories: []router.Factory{responseTime(opts.ResponseDelay)}},
		{ID: "api:errors", Label: "Fail every request", Factories: []router.Factory{apiErrors}},
		{ID: "limits:linode-limits", Label: "Reject Linode creation with a limit error", Factories: []router.Factory{linodeLimits}},
	} {
		if err := r.RegisterExtra(e); err != nil {
			return nil, err
		}
	}
	for _, p := range []Populator{
		{ID: "linodes:many", Label: "Many Linodes", Populate: manyLinodes(opts.ManyLinodes)},
		{ID: "support:abuse-ticket", Label: "Open abuse ticket", Populate: abuseTicket},
		{ID: "vpcs:default", Label: "VPC with two subnets", Populate: defaultVPC},
	} {
		if err := r.RegisterPopulator(p); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(opts.Fixtures))
	for name := range opts.Fixtures {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p, err := FixturePopulator(name, opts.Fixtures[name])
		if err != nil {
			return nil, err
		}
		if err := r.RegisterPopulator(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func responseTime(delay time.Duration) router.Factory {
	return func(*core.MockState) router.HandlerSet {
		return router.HandlerSet{
			router.All("*", func(ctx context.Context, _ *router.Request) response.Response {
				t := time.NewTimer(delay)
				defer t.Stop()
				select {
				case <-t.C:
					return response.Passthrough()
				case <-ctx.Done():
					return response.FromError(ctx.Err())
				}
			}),
		}
	}
}

func apiErrors(*core.MockState) router.HandlerSet {
	return router.HandlerSet{
		router.All("*", func(context.Context, *router.Request) response.Response {
			return response.MakeError(http.StatusInternalServerError, "An unexpected error occurred.")
		}),
	}
}

func linodeLimits(*core.MockState) router.HandlerSet {
	return router.HandlerSet{
		router.Post("*/v4*/linode/instances", func(context.Context, *router.Request) response.Response {
			return response.MakeError(http.StatusBadRequest, "Account Limit reached. Please open a Support ticket to request a limit increase.")
		}),
	}
}

func manyLinodes(n int) func(*MockContext) error {
	regions := []string{"us-east", "us-west", "eu-west", "ap-south"}
	return func(mc *MockContext) error {
		for i := 1; i <= n; i++ {
			mc.Linodes = append(mc.Linodes, domain.Linode{
				ID:      i,
				Label:   fmt.Sprintf("linode-%d", i),
				Region:  regions[(i-1)%len(regions)],
				Type:    "g6-standard-1",
				Status:  domain.LinodeRunning,
				IPv4:    []string{fmt.Sprintf("203.0.%d.%d", (i/254)%256, i%254+1)},
				Tags:    []string{},
				Created: mc.Now,
				Updated: mc.Now,
			})
			mc.LinodeConfigs = append(mc.LinodeConfigs, Owned[domain.LinodeConfig]{
				ParentID: i,
				Value: domain.LinodeConfig{
					Label:      "My Boot Config",
					Kernel:     "linode/grub2",
					RootDevice: "/dev/sda",
					Created:    mc.Now,
					Updated:    mc.Now,
				},
			})
		}
		return nil
	}
}

func abuseTicket(mc *MockContext) error {
	const ticketID = 1
	mc.SupportTickets = append(mc.SupportTickets, domain.SupportTicket{
		ID:          ticketID,
		Summary:     "Policy Violation: Outbound abuse detected",
		Description: "We have received a report of malicious activity originating from your account.",
		Status:      "new",
		OpenedBy:    "Linode",
		UpdatedBy:   "Linode",
		Opened:      mc.Now,
		Updated:     mc.Now,
	})
	mc.SupportReplies = append(mc.SupportReplies, Owned[domain.SupportReply]{
		ParentID: ticketID,
		Value: domain.SupportReply{
			Description: "Please respond within 24 hours to avoid service interruption.",
			CreatedBy:   "Linode",
			FromLinode:  true,
			Created:     mc.Now,
		},
	})
	mc.Events = append(mc.Events, domain.Event{
		Action: domain.ActionTicketCreate,
		Entity: &domain.EntityRef{
			ID:    ticketID,
			Label: "Policy Violation: Outbound abuse detected",
			Type:  "ticket",
			URL:   fmt.Sprintf("/v4/support/tickets/%d", ticketID),
		},
		Status:   domain.EventNotification,
		Username: "Linode",
	})
	return nil
}

func defaultVPC(mc *MockContext) error {
	const vpcID = 1
	mc.VPCs = append(mc.VPCs, domain.VPC{
		ID:          vpcID,
		Label:       "vpc-default",
		Description: "Default VPC",
		Region:      "us-east",
		Created:     mc.Now,
		Updated:     mc.Now,
	})
	for i, cidr := range []string{"10.0.0.0/24", "10.0.1.0/24"} {
		mc.Subnets = append(mc.Subnets, Owned[domain.Subnet]{
			ParentID: vpcID,
			Value: domain.Subnet{
				Label:         fmt.Sprintf("subnet-%d", i+1),
				IPv4:          cidr,
				Linodes:       []domain.SubnetLinode{},
				NodeBalancers: []domain.SubnetNodeBalancer{},
				Created:       mc.Now,
				Updated:       mc.Now,
			},
		})
	}
	mc.VPCIPs = append(mc.VPCIPs, domain.VPCIP{
		Address: "10.1.0.1",
		VPCID:   vpcID,
		Region:  "us-east",
		Active:  true,
	})
	return nil
}
