package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmock/internal/response"
	"cloudmock/pkg/domain"
)

func TestSupportTicketConversation(t *testing.T) {
	h := newHarness(t, 0)
	l := h.createLinode("us-east", nil)

	var ticket domain.SupportTicket
	h.mustDo(http.MethodPost, "/support/tickets", map[string]any{
		"summary":     "Server unreachable",
		"description": "Cannot reach port 22.",
		"linode_id":   l.ID,
	}, &ticket)
	assert.Equal(t, "new", ticket.Status)
	require.NotNil(t, ticket.Entity)
	assert.Equal(t, "linode", ticket.Entity.Type)
	assert.Equal(t, l.ID, ticket.Entity.ID)

	var reply domain.SupportReply
	h.mustDo(http.MethodPost, path("/support/tickets/%d/replies", ticket.ID), map[string]any{"description": "Still down."}, &reply)
	assert.Equal(t, "Still down.", reply.Description)

	h.mustDo(http.MethodGet, path("/support/tickets/%d", ticket.ID), nil, &ticket)
	assert.Equal(t, "open", ticket.Status)

	var replies response.Page[domain.SupportReply]
	h.mustDo(http.MethodGet, path("/support/tickets/%d/replies", ticket.ID), nil, &replies)
	assert.Equal(t, 1, replies.Results)

	h.mustDo(http.MethodPost, path("/support/tickets/%d/close", ticket.ID), nil, nil)
	h.mustDo(http.MethodGet, path("/support/tickets/%d", ticket.ID), nil, &ticket)
	assert.Equal(t, "closed", ticket.Status)
	assert.NotNil(t, ticket.Closed)

	code, errs := h.errors(http.MethodPost, path("/support/tickets/%d/replies", ticket.ID), map[string]any{"description": "hello?"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Cannot reply to a closed ticket.", errs[0].Reason)

	// Closing again is accepted and changes nothing.
	before := h.export()
	h.mustDo(http.MethodPost, path("/support/tickets/%d/close", ticket.ID), nil, nil)
	assert.Equal(t, before, h.export())
}

func TestSupportTicketReferences(t *testing.T) {
	h := newHarness(t, 0)
	code, _ := h.errors(http.MethodPost, "/support/tickets", map[string]any{
		"summary": "Volume gone", "description": "Where is it?", "volume_id": 12,
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Zero(t, h.count(domain.TableSupportTickets))

	code, errs := h.errors(http.MethodPost, "/support/tickets", map[string]any{"summary": "", "description": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "summary", errs[0].Field)

	code, _ = h.errors(http.MethodDelete, "/support/tickets/1", nil)
	assert.Equal(t, http.StatusNotFound, code)
}
