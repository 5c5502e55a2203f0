package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/enterprise-universe/universe-gateway/internal/types"
)

var (
	// ErrBodyWithGet is returned when a body is supplied with an explicit GET.
	ErrBodyWithGet = errors.New("request body not allowed with GET")
	// ErrUnsupportedMethod is returned for methods outside GET, POST, PUT, PATCH, DELETE.
	ErrUnsupportedMethod = errors.New("unsupported HTTP method")
	// ErrInvalidBody is returned when the request body cannot be encoded as JSON.
	ErrInvalidBody = errors.New("request body is not JSON-encodable")
)

// UnknownProviderError means the provider key is not in the registry, or a
// bare name matched several categories.
type UnknownProviderError struct {
	Provider   string
	Candidates []string
}

func (e *UnknownProviderError) Error() string {
	if len(e.Candidates) > 0 {
		return fmt.Sprintf("unknown provider %q: ambiguous, use one of %s", e.Provider, strings.Join(e.Candidates, ", "))
	}
	return fmt.Sprintf("unknown provider %q", e.Provider)
}

// MissingCredentialError means no credential slot for the provider's auth
// scheme holds a value. Tried lists the store keys consulted, in order.
type MissingCredentialError struct {
	Provider string
	Scheme   types.AuthScheme
	Tried    []string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("provider %s: missing %s credential (tried %s)", e.Provider, e.Scheme, strings.Join(e.Tried, ", "))
}

// PlaceholderError means a {name} segment of the base URL has no value.
type PlaceholderError struct {
	Provider string
	Name     string
}

func (e *PlaceholderError) Error() string {
	return fmt.Sprintf("provider %s: no value for base URL placeholder {%s}", e.Provider, e.Name)
}

// HeaderConflictError means a caller-supplied header or query parameter has
// the same name as the one carrying the provider credential.
type HeaderConflictError struct {
	Provider string
	Name     string
	// Query is set when the collision is on a query parameter.
	Query bool
}

func (e *HeaderConflictError) Error() string {
	kind := "header"
	if e.Query {
		kind = "query parameter"
	}
	return fmt.Sprintf("provider %s: caller %s %q collides with the auth %s", e.Provider, kind, e.Name, kind)
}

// APIError is a non-2xx response. The body is drained, never parsed.
type APIError struct {
	Status     int
	StatusText string
	Provider   string
	Path       string
	// RetryAfter echoes the provider's Retry-After header, if any.
	RetryAfter string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider %s %s: %d %s", e.Provider, e.Path, e.Status, e.StatusText)
}

// NetworkError is a transport failure: DNS, connect, TLS, timeout or
// cancellation. It has no HTTP status.
type NetworkError struct {
	Provider string
	Path     string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("provider %s %s: network error: %v", e.Provider, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline rather than a cancel.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// DecodeError is a 2xx response whose non-empty body is not valid JSON.
type DecodeError struct {
	Provider    string
	Path        string
	Status      int
	ContentType string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("provider %s %s: status %d returned non-JSON body (content-type %q)", e.Provider, e.Path, e.Status, e.ContentType)
}

// Kind classifies an error for metrics and the relay error envelope.
func Kind(err error) string {
	var (
		unknown  *UnknownProviderError
		missing  *MissingCredentialError
		ph       *PlaceholderError
		conflict *HeaderConflictError
		apiErr   *APIError
		netErr   *NetworkError
		decErr   *DecodeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unknown):
		return "unknown_provider"
	case errors.As(err, &missing):
		return "missing_credential"
	case errors.As(err, &ph):
		return "placeholder"
	case errors.As(err, &conflict):
		return "header_conflict"
	case errors.Is(err, ErrBodyWithGet), errors.Is(err, ErrUnsupportedMethod), errors.Is(err, ErrInvalidBody):
		return "invalid_request"
	case errors.As(err, &apiErr):
		return "api_error"
	case errors.As(err, &decErr):
		return "decode_error"
	case errors.As(err, &netErr):
		if errors.Is(err, context.Canceled) {
			return "cancelled"
		}
		if netErr.Timeout() {
			return "timeout"
		}
		return "network_error"
	default:
		return "internal"
	}
}

// IsLocal reports whether err was raised before any network I/O.
func IsLocal(err error) bool {
	switch Kind(err) {
	case "unknown_provider", "missing_credential", "placeholder", "header_conflict", "invalid_request":
		return true
	}
	return false
}
