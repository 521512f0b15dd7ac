package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"cloudmock/pkg/domain"
)

// Params holds the path parameters captured by a pattern.
type Params map[string]string

// Int parses a numeric parameter. ok is false when it is missing or not a
// positive integer; handlers treat that as not found.
func (p Params) Int(name string) (int, bool) {
	v, err := strconv.Atoi(p[name])
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// Request is the inbound call as seen by a handler.
type Request struct {
	*http.Request
	Params Params
	body   []byte
}

// NewRequest wraps r with a pre-read body. Used by tests and the router.
func NewRequest(r *http.Request, body []byte, params Params) *Request {
	if params == nil {
		params = Params{}
	}
	return &Request{Request: r, Params: params, body: body}
}

// Body returns the raw request body.
func (r *Request) Body() []byte { return r.body }

// HasBody reports whether a non-blank body was sent.
func (r *Request) HasBody() bool { return len(bytes.TrimSpace(r.body)) > 0 }

// Decode strictly decodes the JSON body into v. Unknown fields and type
// mismatches become field-scoped validation errors.
func (r *Request) Decode(v any) error {
	if !r.HasBody() {
		return &domain.ValidationError{Errors: []domain.FieldError{{Reason: "Request body is required."}}}
	}
	dec := json.NewDecoder(bytes.NewReader(r.body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return decodeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return &domain.ValidationError{Errors: []domain.FieldError{{Reason: "Request body must contain a single JSON object."}}}
	}
	return nil
}

// DecodeOptional decodes the body when present and leaves v untouched otherwise.
func (r *Request) DecodeOptional(v any) error {
	if !r.HasBody() {
		return nil
	}
	return r.Decode(v)
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		return &domain.ValidationError{Errors: []domain.FieldError{{
			Field:  typeErr.Field,
			Reason: fmt.Sprintf("Must be of type %s.", jsonKind(typeErr.Type.Kind().String())),
		}}}
	case errors.As(err, &syntaxErr):
		return &domain.ValidationError{Errors: []domain.FieldError{{Reason: "Request body is not valid JSON."}}}
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return &domain.ValidationError{Errors: []domain.FieldError{{Field: field, Reason: "Unknown field."}}}
	default:
		return &domain.ValidationError{Errors: []domain.FieldError{{Reason: "Request body is not valid JSON."}}}
	}
}

func jsonKind(goKind string) string {
	switch goKind {
	case "int", "int64", "int32", "float64", "float32", "uint", "uint64":
		return "number"
	case "slice", "array":
		return "array"
	case "struct", "map":
		return "object"
	case "bool":
		return "boolean"
	}
	return goKind
}
