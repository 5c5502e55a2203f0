package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/enterprise-universe/universe-gateway/internal/gateway"
)

// StatusClientClosedRequest is reported when the relay caller went away
// before the provider answered.
const StatusClientClosedRequest = 499

// APIError is the relay's JSON error envelope.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code"`
	Provider  string `json:"provider,omitempty"`
	Upstream  int    `json:"upstream_status,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string) {
	writeBody(w, requestID, statusCode, APIErrorBody{
		Message: message,
		Type:    errType,
		Code:    code,
	})
}

func writeBody(w http.ResponseWriter, requestID string, statusCode int, body APIErrorBody) {
	body.RequestID = requestID
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{Error: body})
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", "invalid_api_key", message)
}

func WriteRateLimitError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusTooManyRequests, "rate_limit_error", "rate_limit_exceeded", message)
}

func WriteQuotaExceededError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusTooManyRequests, "rate_limit_error", "daily_quota_exceeded", message)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

func WriteForbiddenError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusForbidden, "permission_error", "policy_denied", message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", "internal_error", message)
}

func WriteServiceUnavailableError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusServiceUnavailable, "server_error", "service_unavailable", message)
}

// WriteCircuitOpenError reports a provider whose relay circuit breaker is open.
func WriteCircuitOpenError(w http.ResponseWriter, requestID, provider string) {
	writeBody(w, requestID, http.StatusServiceUnavailable, APIErrorBody{
		Message:  "provider " + provider + " is temporarily unavailable",
		Type:     "provider_error",
		Code:     "circuit_open",
		Provider: provider,
	})
}

// GatewayStatus maps a gateway error to the relay HTTP status.
func GatewayStatus(err error) int {
	switch gateway.Kind(err) {
	case "unknown_provider":
		return http.StatusNotFound
	case "missing_credential", "placeholder", "header_conflict":
		return http.StatusUnprocessableEntity
	case "invalid_request":
		return http.StatusBadRequest
	case "api_error", "decode_error", "network_error":
		return http.StatusBadGateway
	case "timeout":
		return http.StatusGatewayTimeout
	case "cancelled":
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteGatewayError writes the envelope for an error returned by
// gateway.Client. The message is the error text, which never carries
// credentials; msg may override it after redaction.
func WriteGatewayError(w http.ResponseWriter, requestID string, err error, msg string) {
	if msg == "" {
		msg = err.Error()
	}
	kind := gateway.Kind(err)
	body := APIErrorBody{
		Message: msg,
		Type:    "invalid_request_error",
		Code:    kind,
	}
	if !gateway.IsLocal(err) {
		body.Type = "provider_error"
	}
	if kind == "internal" {
		body.Type = "server_error"
		body.Code = "internal_error"
	}

	var (
		apiErr  *gateway.APIError
		unknown *gateway.UnknownProviderError
	)
	switch {
	case errors.As(err, &apiErr):
		body.Provider = apiErr.Provider
		body.Upstream = apiErr.Status
		if apiErr.RetryAfter != "" {
			w.Header().Set("Retry-After", apiErr.RetryAfter)
		}
		w.Header().Set("X-Upstream-Status", strconv.Itoa(apiErr.Status))
	case errors.As(err, &unknown):
		body.Provider = unknown.Provider
	}
	writeBody(w, requestID, GatewayStatus(err), body)
}
