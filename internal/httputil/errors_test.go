package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/enterprise-universe/universe-gateway/internal/gateway"
	"github.com/enterprise-universe/universe-gateway/internal/types"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, "req_123", http.StatusBadRequest, "invalid_request_error", "bad_request", "test message")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	if rid := w.Header().Get("X-Request-ID"); rid != "req_123" {
		t.Errorf("expected X-Request-ID req_123, got %s", rid)
	}

	var resp APIError
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.Error.Message != "test message" {
		t.Errorf("expected message 'test message', got %q", resp.Error.Message)
	}
	if resp.Error.Type != "invalid_request_error" {
		t.Errorf("expected type 'invalid_request_error', got %q", resp.Error.Type)
	}
	if resp.Error.RequestID != "req_123" {
		t.Errorf("expected request_id 'req_123', got %q", resp.Error.RequestID)
	}
}

func TestWriteAuthError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAuthError(w, "req_456", "Invalid key")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}

	var resp APIError
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "invalid_api_key" {
		t.Errorf("expected code 'invalid_api_key', got %q", resp.Error.Code)
	}
}

func TestWriteCircuitOpenError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteCircuitOpenError(w, "req_789", "versand.dhl")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	var resp APIError
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "circuit_open" || resp.Error.Provider != "versand.dhl" {
		t.Errorf("unexpected body: %+v", resp.Error)
	}
}

func TestGatewayStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown provider", &gateway.UnknownProviderError{Provider: "nope"}, http.StatusNotFound},
		{"missing credential", &gateway.MissingCredentialError{Provider: "finance.stripe", Scheme: types.AuthBearer}, http.StatusUnprocessableEntity},
		{"placeholder", &gateway.PlaceholderError{Provider: "business.mailchimp", Name: "dc"}, http.StatusUnprocessableEntity},
		{"header conflict", &gateway.HeaderConflictError{Provider: "ai.anthropic", Name: "x-api-key"}, http.StatusUnprocessableEntity},
		{"body with get", fmt.Errorf("provider x: %w", gateway.ErrBodyWithGet), http.StatusBadRequest},
		{"api error", &gateway.APIError{Status: 404, Provider: "finance.stripe"}, http.StatusBadGateway},
		{"decode error", &gateway.DecodeError{Provider: "geo.x", Status: 200}, http.StatusBadGateway},
		{"timeout", &gateway.NetworkError{Provider: "x", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"cancelled", &gateway.NetworkError{Provider: "x", Err: context.Canceled}, StatusClientClosedRequest},
		{"network", &gateway.NetworkError{Provider: "x", Err: errors.New("connection refused")}, http.StatusBadGateway},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GatewayStatus(tt.err); got != tt.want {
				t.Errorf("GatewayStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWriteGatewayError_APIError(t *testing.T) {
	w := httptest.NewRecorder()
	err := &gateway.APIError{Status: 429, StatusText: "Too Many Requests", Provider: "finance.stripe", Path: "/v1/charges", RetryAfter: "30"}
	WriteGatewayError(w, "req_1", err, "")

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", w.Code)
	}
	if ra := w.Header().Get("Retry-After"); ra != "30" {
		t.Errorf("Retry-After = %q, want 30", ra)
	}

	var resp APIError
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error.Upstream != 429 {
		t.Errorf("upstream_status = %d, want 429", resp.Error.Upstream)
	}
	if resp.Error.Type != "provider_error" || resp.Error.Code != "api_error" {
		t.Errorf("type/code = %s/%s", resp.Error.Type, resp.Error.Code)
	}
	if resp.Error.Provider != "finance.stripe" {
		t.Errorf("provider = %q", resp.Error.Provider)
	}
}

func TestWriteGatewayError_LocalAndOverride(t *testing.T) {
	w := httptest.NewRecorder()
	err := &gateway.MissingCredentialError{Provider: "finance.stripe", Scheme: types.AuthBearer, Tried: []string{"stripe.accesstoken"}}
	WriteGatewayError(w, "req_2", err, "redacted message")

	var resp APIError
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Message != "redacted message" {
		t.Errorf("message = %q, want override", resp.Error.Message)
	}
	if resp.Error.Type != "invalid_request_error" || resp.Error.Code != "missing_credential" {
		t.Errorf("type/code = %s/%s", resp.Error.Type, resp.Error.Code)
	}
}
