// Package response renders handler results into the REST envelopes the
// console expects: single entities, paginated lists, and the shared error
// envelope.
package response

import (
	"errors"
	"net/http"

	"cloudmock/pkg/domain"
)

// Response is a handler result. A Passthrough response carries no body and
// tells the router to continue with the next matching handler.
type Response struct {
	Status      int
	Body        any
	Header      http.Header
	Passthrough bool
}

// ErrorEnvelope is the single error shape every failure is rendered through.
type ErrorEnvelope struct {
	Errors []domain.FieldError `json:"errors"`
}

// Page is the paginated list envelope.
type Page[T any] struct {
	Data    []T `json:"data"`
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	Results int `json:"results"`
}

// Make wraps body as a 200 response.
func Make(body any) Response {
	return Response{Status: http.StatusOK, Body: body}
}

// MakeStatus wraps body with an explicit status.
func MakeStatus(status int, body any) Response {
	return Response{Status: status, Body: body}
}

// Empty returns 200 with an empty JSON object, as delete endpoints do.
func Empty() Response {
	return Make(struct{}{})
}

// Passthrough defers to the next matching handler.
func Passthrough() Response {
	return Response{Passthrough: true}
}

// NotFound is the standard 404 envelope.
func NotFound() Response {
	return MakeError(http.StatusNotFound, "Not found")
}

// MakeError renders one reason with the given status.
func MakeError(status int, reason string) Response {
	return Response{Status: status, Body: ErrorEnvelope{Errors: []domain.FieldError{{Reason: reason}}}}
}

// MakeFieldError renders a single field-scoped 400.
func MakeFieldError(field, reason string) Response {
	return MakeValidation(domain.FieldError{Field: field, Reason: reason})
}

// MakeValidation renders field-scoped errors as a 400.
func MakeValidation(errs ...domain.FieldError) Response {
	return Response{Status: http.StatusBadRequest, Body: ErrorEnvelope{Errors: errs}}
}

// FromError maps err onto the envelope: validation failures become 400,
// missing records 404, and anything else 500.
func FromError(err error) Response {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return MakeValidation(verr.Errors...)
	case errors.Is(err, domain.ErrNotFound):
		return NotFound()
	default:
		return MakeError(http.StatusInternalServerError, err.Error())
	}
}
