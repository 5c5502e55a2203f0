// Package relay exposes the gateway client over HTTP for callers that must
// not hold provider credentials.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/enterprise-universe/universe-gateway/internal/audit"
	"github.com/enterprise-universe/universe-gateway/internal/auth"
	"github.com/enterprise-universe/universe-gateway/internal/gateway"
	"github.com/enterprise-universe/universe-gateway/internal/httputil"
	"github.com/enterprise-universe/universe-gateway/internal/policy"
	"github.com/enterprise-universe/universe-gateway/internal/redact"
	"github.com/enterprise-universe/universe-gateway/internal/types"
)

// Policy is satisfied by *policy.Evaluator.
type Policy interface {
	Enabled() bool
	Evaluate(ctx context.Context, input policy.Input) (policy.Decision, error)
}

// Auditor is satisfied by *audit.Writer.
type Auditor interface {
	Record(e audit.Entry)
}

// Denier is satisfied by *telemetry.Metrics.
type Denier interface {
	RecordDenied(reason string)
}

// Deps are the handler's collaborators. Only Current and Health are
// required.
type Deps struct {
	Current      *Current
	Health       *HealthTracker
	Policy       Policy
	Audit        Auditor
	Redactor     *redact.Redactor
	Denied       Denier
	MaxBodyBytes func() int64
}

// Handler holds dependencies for the relay HTTP handlers.
type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) *Handler {
	if deps.MaxBodyBytes == nil {
		deps.MaxBodyBytes = func() int64 { return 1 << 20 }
	}
	return &Handler{deps: deps}
}

// Call handles POST /v1/call.
func (h *Handler) Call(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	req, ok := h.decodeCall(w, r, reqID)
	if !ok {
		return
	}

	rt := h.deps.Current.Load()
	desc, lookupErr := rt.Registry.Lookup(req.Provider)
	key := req.Provider
	if lookupErr == nil {
		key = desc.Key()
		// Pin the resolved key so a bare name cannot resolve differently
		// between the checks below and the call.
		req.Provider = key

		if !authInfo.AllowsProvider(key) {
			h.deny(reqID, "provider_not_allowed", authInfo, key)
			httputil.WriteError(w, reqID, http.StatusForbidden, "permission_error", "provider_not_allowed",
				"API key is not allowed to call provider "+key)
			return
		}
		if h.deps.Policy != nil && h.deps.Policy.Enabled() {
			decision, err := h.deps.Policy.Evaluate(r.Context(), policyInput(authInfo, desc, req))
			if err != nil {
				slog.Error("policy evaluation failed", "request_id", reqID, "provider", key, "error", err)
			}
			if err != nil || !decision.Allowed {
				h.deny(reqID, "policy", authInfo, key)
				httputil.WriteForbiddenError(w, reqID, "Call denied by policy: "+decision.Reason)
				return
			}
		}
		if !h.deps.Health.Allow(key) {
			h.deny(reqID, "circuit_open", authInfo, key)
			httputil.WriteCircuitOpenError(w, reqID, key)
			return
		}
	}

	resp, err := rt.Client.Do(r.Context(), req)
	elapsed := time.Since(receivedAt)
	if lookupErr == nil {
		h.deps.Health.Record(key, err)
	}
	h.record(reqID, authInfo, key, req, resp, err, elapsed)

	if err != nil {
		httputil.WriteGatewayError(w, reqID, err, h.deps.Redactor.Error(err))
		return
	}

	w.Header().Set("X-Provider", resp.Provider)
	w.Header().Set("X-Upstream-Status", strconv.Itoa(resp.StatusCode))
	if resp.Empty() {
		w.WriteHeader(resp.StatusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

func (h *Handler) decodeCall(w http.ResponseWriter, r *http.Request, reqID string) (types.Request, bool) {
	var req types.Request
	limit := h.deps.MaxBodyBytes()
	if limit <= 0 {
		limit = 1 << 20
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	defer r.Body.Close()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, reqID, http.StatusRequestEntityTooLarge, "invalid_request_error", "body_too_large",
				"Request body exceeds the relay limit")
			return req, false
		}
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return req, false
	}

	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return req, false
	}
	if strings.TrimSpace(req.Provider) == "" {
		httputil.WriteBadRequestError(w, reqID, "provider is required")
		return req, false
	}
	// The path is appended to the provider base URL verbatim; anything but
	// a path or query could move the request to another host.
	if req.Path != "" && !strings.HasPrefix(req.Path, "/") && !strings.HasPrefix(req.Path, "?") {
		httputil.WriteBadRequestError(w, reqID, "path must start with '/' or '?'")
		return req, false
	}
	return req, true
}

func (h *Handler) deny(reqID, reason string, authInfo *auth.AuthInfo, provider string) {
	slog.Warn("relay call denied",
		"request_id", reqID,
		"reason", reason,
		"provider", provider,
		"key_id", authInfo.KeyID,
		"org_id", authInfo.OrganizationID,
	)
	if h.deps.Denied != nil {
		h.deps.Denied.RecordDenied(reason)
	}
}

func (h *Handler) record(reqID string, authInfo *auth.AuthInfo, key string, req types.Request, resp *types.Response, err error, elapsed time.Duration) {
	outcome := "success"
	status := 0
	if err != nil {
		outcome = gateway.Kind(err)
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.Status
		}
	} else {
		status = resp.StatusCode
	}
	method, path := callMethod(req), stripQuery(req.Path)

	slog.Info("call completed",
		"request_id", reqID,
		"provider", key,
		"method", method,
		"path", path,
		"status", status,
		"outcome", outcome,
		"duration_ms", elapsed.Milliseconds(),
		"key_id", authInfo.KeyID,
		"org_id", authInfo.OrganizationID,
	)

	if h.deps.Audit != nil {
		h.deps.Audit.Record(audit.Entry{
			RequestID:  reqID,
			KeyID:      authInfo.KeyID,
			OrgID:      authInfo.OrganizationID,
			Provider:   key,
			Method:     method,
			Path:       path,
			Status:     status,
			Outcome:    outcome,
			DurationMs: elapsed.Milliseconds(),
		})
	}
}

func policyInput(authInfo *auth.AuthInfo, d types.ProviderDescriptor, req types.Request) policy.Input {
	params := make([]string, 0, len(req.Params))
	for k := range req.Params {
		params = append(params, k)
	}
	sort.Strings(params)
	return policy.Input{
		Caller: policy.Caller{
			KeyID: authInfo.KeyID,
			User:  authInfo.UserID,
			Org:   authInfo.OrganizationID,
			Team:  authInfo.TeamID,
		},
		Call: policy.Call{
			Provider:   d.Key(),
			Category:   d.Category,
			Name:       d.Name,
			AuthScheme: string(d.AuthScheme),
			Method:     callMethod(req),
			Path:       stripQuery(req.Path),
			Params:     params,
			HasBody:    req.Body != nil,
		},
	}
}

// callMethod mirrors the gateway's method defaulting for logs and policy.
func callMethod(req types.Request) string {
	if m := strings.ToUpper(strings.TrimSpace(req.Method)); m != "" {
		return m
	}
	if req.Body != nil {
		return http.MethodPost
	}
	return http.MethodGet
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

// ListProviders handles GET /v1/providers. The optional category query
// parameter narrows the list. Descriptors never carry credentials.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	reg := h.deps.Current.Load().Registry
	category := r.URL.Query().Get("category")

	var data []providerObject
	for _, key := range reg.Keys() {
		if !authInfo.AllowsProvider(key) {
			continue
		}
		d, err := reg.Lookup(key)
		if err != nil {
			continue
		}
		if category != "" && d.Category != category {
			continue
		}
		data = append(data, toProviderObject(d))
	}
	if data == nil {
		data = []providerObject{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(providerListResponse{Object: "list", Data: data})
}

// GetProvider handles GET /v1/providers/{key}.
func (h *Handler) GetProvider(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	d, err := h.deps.Current.Load().Registry.Lookup(chi.URLParam(r, "key"))
	if err != nil || !authInfo.AllowsProvider(d.Key()) {
		httputil.WriteError(w, reqID, http.StatusNotFound, "invalid_request_error", "unknown_provider", "provider not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProviderObject(d))
}

// Health handles GET /universe/v1/health.
func (h *Handler) Health(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(healthResponse{
			Status:    "healthy",
			Version:   version,
			Providers: h.deps.Current.Load().Registry.Len(),
			Circuits:  h.deps.Health.States(),
		})
	}
}

type providerObject struct {
	Key         string            `json:"key"`
	Category    string            `json:"category"`
	Name        string            `json:"name"`
	BaseURL     string            `json:"base_url"`
	AuthScheme  types.AuthScheme  `json:"auth_scheme"`
	AuthParams  []string          `json:"auth_params,omitempty"`
	Description string            `json:"description,omitempty"`
	Endpoints   map[string]string `json:"endpoints,omitempty"`
	TimeoutMs   int64             `json:"timeout_ms,omitempty"`
}

func toProviderObject(d types.ProviderDescriptor) providerObject {
	return providerObject{
		Key:         d.Key(),
		Category:    d.Category,
		Name:        d.Name,
		BaseURL:     d.BaseURL,
		AuthScheme:  d.AuthScheme,
		AuthParams:  d.AuthParams,
		Description: d.Description,
		Endpoints:   d.Endpoints,
		TimeoutMs:   d.Timeout.Milliseconds(),
	}
}

type providerListResponse struct {
	Object string           `json:"object"`
	Data   []providerObject `json:"data"`
}

type healthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Providers int             `json:"providers"`
	Circuits  []ProviderState `json:"circuits"`
}
