package handlers

import (
	"context"

	"cloudmock/internal/core"
	"cloudmock/internal/response"
	"cloudmock/internal/router"
	"cloudmock/pkg/domain"
)

// Events serves the account event feed. Only events whose visibility time
// has passed are returned. Mark-seen advances a cursor; event records are
// never rewritten.
func Events(state *core.MockState) router.HandlerSet {
	h := eventHandlers{newEnv(state)}
	return router.HandlerSet{
		router.Get("*/v4*/account/events", h.list),
		router.Get("*/v4*/account/events/:id", h.get),
		router.Post("*/v4*/account/events/:id/seen", h.seen),
	}
}

type eventHandlers struct{ env }

func (h eventHandlers) cursor(ctx context.Context) (domain.EventCursor, bool, error) {
	all, err := core.GetAll[domain.EventCursor](ctx, h.state, domain.TableEventCursors)
	if err != nil || len(all) == 0 {
		return domain.EventCursor{}, false, err
	}
	return all[0], true, nil
}

func render(ev domain.Event, c domain.EventCursor) domain.Event {
	ev.Seen = ev.ID <= c.SeenID
	return ev
}

func (h eventHandlers) list(ctx context.Context, r *router.Request) response.Response {
	visible, err := h.events.Visible(ctx)
	if err != nil {
		return response.FromError(err)
	}
	c, _, err := h.cursor(ctx)
	if err != nil {
		return response.FromError(err)
	}
	for i := range visible {
		visible[i] = render(visible[i], c)
	}
	return response.MakePaginated(visible, r.Request)
}

func (h eventHandlers) visible(ctx context.Context, r *router.Request) (domain.Event, response.Response, bool) {
	ev, _, resp, ok := lookup[domain.Event](ctx, h.env, r, "id", domain.TableEvents)
	if !ok {
		return ev, resp, false
	}
	if !ev.Visible(h.now()) {
		return ev, response.NotFound(), false
	}
	return ev, response.Response{}, true
}

func (h eventHandlers) get(ctx context.Context, r *router.Request) response.Response {
	ev, resp, ok := h.visible(ctx, r)
	if !ok {
		return resp
	}
	c, _, err := h.cursor(ctx)
	if err != nil {
		return response.FromError(err)
	}
	return response.Make(render(ev, c))
}

// seen marks every event up to and including :id as seen. The cursor only
// moves forward.
func (h eventHandlers) seen(ctx context.Context, r *router.Request) response.Response {
	ev, resp, ok := h.visible(ctx, r)
	if !ok {
		return resp
	}
	c, found, err := h.cursor(ctx)
	if err != nil {
		return response.FromError(err)
	}
	switch {
	case !found:
		_, err = core.Add(ctx, h.state, domain.TableEventCursors, domain.EventCursor{SeenID: ev.ID})
	case ev.ID > c.SeenID:
		_, err = core.Update[domain.EventCursor](ctx, h.state, domain.TableEventCursors, c.ID, map[string]any{"seen_id": ev.ID})
	}
	if err != nil {
		return response.FromError(err)
	}
	return response.Empty()
}
