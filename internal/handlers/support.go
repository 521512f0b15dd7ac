package handlers

import (
	"context"
	"net/http"

	"cloudmock/internal/core"
	"cloudmock/internal/response"
	"cloudmock/internal/router"
	"cloudmock/pkg/domain"
)

const mockUsername = "mock-user"

type ticketCreateInput struct {
	Summary        string `json:"summary"`
	Description    string `json:"description"`
	LinodeID       *int   `json:"linode_id"`
	NodeBalancerID *int   `json:"nodebalancer_id"`
	VolumeID       *int   `json:"volume_id"`
	DomainID       *int   `json:"domain_id"`
	Severity       *int   `json:"severity"`
}

func (in ticketCreateInput) Validate() error {
	v := &domain.ValidationError{}
	if len(in.Summary) < 1 || len(in.Summary) > 64 {
		v.Add("summary", "Summary must be between 1 and 64 characters.")
	}
	if len(in.Description) < 1 || len(in.Description) > 65000 {
		v.Add("description", "Description must be between 1 and 65000 characters.")
	}
	if in.Severity != nil {
		checkRange(v, "severity", *in.Severity, 1, 3)
	}
	return v.Err()
}

type ticketReplyInput struct {
	Description string `json:"description"`
}

// Support serves support tickets and their replies. Replies are owned by
// the ticket; tickets are never deleted, only closed.
func Support(state *core.MockState) router.HandlerSet {
	h := supportHandlers{newEnv(state)}
	return router.HandlerSet{
		router.Get("*/v4*/support/tickets", h.list),
		router.Post("*/v4*/support/tickets", h.create),
		router.Get("*/v4*/support/tickets/:id", h.get),
		router.Post("*/v4*/support/tickets/:id/close", h.close),
		router.Get("*/v4*/support/tickets/:id/replies", h.listReplies),
		router.Post("*/v4*/support/tickets/:id/replies", h.createReply),
	}
}

type supportHandlers struct{ env }

func (h supportHandlers) list(ctx context.Context, r *router.Request) response.Response {
	return list[domain.SupportTicket](ctx, h.env, r, domain.TableSupportTickets)
}

func (h supportHandlers) get(ctx context.Context, r *router.Request) response.Response {
	t, _, resp, ok := lookup[domain.SupportTicket](ctx, h.env, r, "id", domain.TableSupportTickets)
	if !ok {
		return resp
	}
	return response.Make(t)
}

// entity resolves the optional resource a ticket is about.
func (h supportHandlers) entity(ctx context.Context, in ticketCreateInput) (*domain.EntityRef, error) {
	switch {
	case in.LinodeID != nil:
		ent, err := deviceEntity(ctx, h.env, "linode", *in.LinodeID)
		return &ent, err
	case in.NodeBalancerID != nil:
		ent, err := deviceEntity(ctx, h.env, "nodebalancer", *in.NodeBalancerID)
		return &ent, err
	case in.VolumeID != nil:
		v, found, err := core.Get[domain.Volume](ctx, h.state, domain.TableVolumes, *in.VolumeID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, domain.NotFoundError{Table: domain.TableVolumes, ID: *in.VolumeID}
		}
		ent := volumeRef(v)
		return &ent, nil
	case in.DomainID != nil:
		d, found, err := core.Get[domain.Domain](ctx, h.state, domain.TableDomains, *in.DomainID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, domain.NotFoundError{Table: domain.TableDomains, ID: *in.DomainID}
		}
		ent := domainRef(d)
		return &ent, nil
	}
	return nil, nil
}

func (h supportHandlers) create(ctx context.Context, r *router.Request) response.Response {
	var in ticketCreateInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if err := in.Validate(); err != nil {
		return response.FromError(err)
	}
	entity, err := h.entity(ctx, in)
	if err != nil {
		return response.FromError(err)
	}
	now := h.now()
	t, err := core.Add(ctx, h.state, domain.TableSupportTickets, domain.SupportTicket{
		Summary:     in.Summary,
		Description: in.Description,
		Status:      "new",
		Entity:      entity,
		Closable:    true,
		OpenedBy:    mockUsername,
		UpdatedBy:   mockUsername,
		Opened:      now,
		Updated:     now,
	})
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionTicketCreate, ticketRef(t))
	return response.Make(t)
}

func (h supportHandlers) close(ctx context.Context, r *router.Request) response.Response {
	t, id, resp, ok := lookup[domain.SupportTicket](ctx, h.env, r, "id", domain.TableSupportTickets)
	if !ok {
		return resp
	}
	if !t.Closable {
		return response.MakeError(http.StatusBadRequest, "Ticket is not closable.")
	}
	if t.Status == "closed" {
		return response.Empty()
	}
	now := h.now()
	t, err := core.Update[domain.SupportTicket](ctx, h.state, domain.TableSupportTickets, id, map[string]any{
		"status":     "closed",
		"closed":     now,
		"updated":    now,
		"updated_by": mockUsername,
	})
	if err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionTicketUpdate, ticketRef(t))
	return response.Empty()
}

func (h supportHandlers) listReplies(ctx context.Context, r *router.Request) response.Response {
	_, id, resp, ok := lookup[domain.SupportTicket](ctx, h.env, r, "id", domain.TableSupportTickets)
	if !ok {
		return resp
	}
	return children[domain.SupportReply](ctx, h.env, r, domain.TableSupportReplies, id)
}

func (h supportHandlers) createReply(ctx context.Context, r *router.Request) response.Response {
	t, id, resp, ok := lookup[domain.SupportTicket](ctx, h.env, r, "id", domain.TableSupportTickets)
	if !ok {
		return resp
	}
	if t.Status == "closed" {
		return response.MakeError(http.StatusBadRequest, "Cannot reply to a closed ticket.")
	}
	var in ticketReplyInput
	if err := r.Decode(&in); err != nil {
		return response.FromError(err)
	}
	if len(in.Description) < 1 || len(in.Description) > 65000 {
		return response.MakeFieldError("description", "Description must be between 1 and 65000 characters.")
	}
	now := h.now()
	reply, err := core.AddChild(ctx, h.state, domain.TableSupportReplies, id, domain.SupportReply{
		Description: in.Description,
		CreatedBy:   mockUsername,
		Created:     now,
	})
	if err != nil {
		return response.FromError(err)
	}
	if t, err = core.Update[domain.SupportTicket](ctx, h.state, domain.TableSupportTickets, id, map[string]any{
		"status":     "open",
		"updated":    now,
		"updated_by": mockUsername,
	}); err != nil {
		return response.FromError(err)
	}
	h.notify(ctx, domain.ActionTicketUpdate, ticketRef(t))
	return response.Make(reply)
}
