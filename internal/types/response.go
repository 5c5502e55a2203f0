package types

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrEmptyBody is returned by Decode when the provider answered 2xx without a body.
var ErrEmptyBody = errors.New("response has no body")

// Response is a successful (2xx) provider answer. Body is validated JSON or empty.
type Response struct {
	Provider   string          `json:"provider"`
	Path       string          `json:"path"`
	StatusCode int             `json:"status_code"`
	Header     http.Header     `json:"-"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Empty reports whether the provider returned no body (e.g. 204).
func (r *Response) Empty() bool {
	return len(r.Body) == 0
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if r.Empty() {
		return ErrEmptyBody
	}
	return json.Unmarshal(r.Body, v)
}
