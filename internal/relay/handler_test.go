package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/enterprise-universe/universe-gateway/internal/audit"
	"github.com/enterprise-universe/universe-gateway/internal/auth"
	"github.com/enterprise-universe/universe-gateway/internal/config"
	"github.com/enterprise-universe/universe-gateway/internal/credential"
	"github.com/enterprise-universe/universe-gateway/internal/gateway"
	"github.com/enterprise-universe/universe-gateway/internal/httputil"
	"github.com/enterprise-universe/universe-gateway/internal/policy"
	"github.com/enterprise-universe/universe-gateway/internal/redact"
	"github.com/enterprise-universe/universe-gateway/internal/registry"
	"github.com/enterprise-universe/universe-gateway/internal/types"
)

const testToken = "tok-secret-value-123"

type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (f *fakeAudit) Record(e audit.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

type fakeDenier struct {
	mu      sync.Mutex
	reasons []string
}

func (f *fakeDenier) RecordDenied(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
}

type fakePolicy struct {
	decision policy.Decision
	err      error
	got      policy.Input
}

func (f *fakePolicy) Enabled() bool { return true }

func (f *fakePolicy) Evaluate(_ context.Context, in policy.Input) (policy.Decision, error) {
	f.got = in
	return f.decision, f.err
}

type upstream struct {
	*httptest.Server
	hits     atomic.Int64
	lastAuth atomic.Value
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		u.lastAuth.Store(r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ok":true}`))
		case "/created":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"42"}`))
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		case "/fail":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(u.Close)
	return u
}

func buildRuntime(t *testing.T, baseURL string) *Runtime {
	t.Helper()
	reg, err := registry.Build(&config.ProvidersConfig{Categories: map[string]map[string]config.ProviderConfig{
		"test": {
			"echo":   {BaseURL: baseURL, AuthScheme: types.AuthNone, Description: "echo service"},
			"secure": {BaseURL: baseURL, AuthScheme: types.AuthBearer},
			"locked": {BaseURL: baseURL, AuthScheme: types.AuthAPIKeyHeader, AuthParam: "X-Key"},
		},
		"other": {
			"thing": {BaseURL: baseURL, AuthScheme: types.AuthNone},
		},
	}})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	creds := credential.NewStore(map[string]string{"secure.accessToken": testToken})
	client := gateway.New(reg, creds,
		gateway.WithDoer(http.DefaultClient),
		gateway.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return &Runtime{Registry: reg, Client: client, Secrets: creds.Secrets()}
}

type fixture struct {
	handler  *Handler
	current  *Current
	health   *HealthTracker
	audit    *fakeAudit
	denied   *fakeDenier
	upstream *upstream
}

func newFixture(t *testing.T, pol Policy) *fixture {
	t.Helper()
	u := newUpstream(t)
	f := &fixture{
		current:  NewCurrent(buildRuntime(t, u.URL)),
		health:   NewHealthTracker(2, time.Hour, nil),
		audit:    &fakeAudit{},
		denied:   &fakeDenier{},
		upstream: u,
	}
	f.handler = NewHandler(Deps{
		Current:      f.current,
		Health:       f.health,
		Policy:       pol,
		Audit:        f.audit,
		Redactor:     redact.New([]string{testToken}),
		Denied:       f.denied,
		MaxBodyBytes: func() int64 { return 1024 },
	})
	return f
}

func (f *fixture) call(t *testing.T, info *auth.AuthInfo, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/call", strings.NewReader(body))
	if info != nil {
		req = req.WithContext(auth.ContextWithAuth(req.Context(), info))
	}
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req-test")
	f.handler.Call(rec, req)
	return rec
}

func caller() *auth.AuthInfo {
	return &auth.AuthInfo{KeyID: "key-1", OrganizationID: "org-1", TeamID: "team-1"}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.APIErrorBody {
	t.Helper()
	var resp httputil.APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error envelope: %v (body %q)", err, rec.Body.String())
	}
	return resp.Error
}

func TestCall_Success(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.call(t, caller(), `{"provider":"secure","path":"/ok"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"ok":true}` {
		t.Errorf("body = %s, want provider JSON", got)
	}
	if p := rec.Header().Get("X-Provider"); p != "test.secure" {
		t.Errorf("X-Provider = %q, want test.secure", p)
	}
	if a, _ := f.upstream.lastAuth.Load().(string); a != "Bearer "+testToken {
		t.Errorf("upstream Authorization = %q", a)
	}
	if strings.Contains(rec.Body.String(), testToken) || strings.Contains(rec.Header().Get("X-Provider"), testToken) {
		t.Error("credential leaked to the relay caller")
	}

	if len(f.audit.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(f.audit.entries))
	}
	e := f.audit.entries[0]
	if e.Provider != "test.secure" || e.Method != "GET" || e.Path != "/ok" || e.Status != 200 || e.Outcome != "success" {
		t.Errorf("unexpected audit entry: %+v", e)
	}
	if e.KeyID != "key-1" || e.OrgID != "org-1" || e.RequestID != "req-test" {
		t.Errorf("audit entry misses caller identity: %+v", e)
	}
}

func TestCall_PassesUpstreamStatus(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.call(t, caller(), `{"provider":"test.echo","path":"/created","body":{"name":"x"}}`)
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if f.audit.entries[0].Method != "POST" {
		t.Errorf("body without method should audit as POST, got %s", f.audit.entries[0].Method)
	}

	rec = f.call(t, caller(), `{"provider":"test.echo","path":"/empty"}`)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
}

func TestCall_RequestValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid json", `{"provider":`, http.StatusBadRequest},
		{"missing provider", `{"path":"/ok"}`, http.StatusBadRequest},
		{"host smuggling path", `{"provider":"test.echo","path":"@evil.example/x"}`, http.StatusBadRequest},
		{"body too large", `{"provider":"test.echo","path":"/ok","body":"` + strings.Repeat("a", 2048) + `"}`, http.StatusRequestEntityTooLarge},
		{"body with get", `{"provider":"test.echo","path":"/ok","method":"GET","body":{}}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := f.call(t, caller(), tt.body)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if f.upstream.hits.Load() != 0 {
				t.Errorf("invalid request reached the provider")
			}
		})
	}
}

func TestCall_NotAuthenticated(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.call(t, nil, `{"provider":"test.echo","path":"/ok"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestCall_GatewayErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		code     string
		upstream int
	}{
		{"unknown provider", `{"provider":"nope","path":"/ok"}`, http.StatusNotFound, "unknown_provider", 0},
		{"missing credential", `{"provider":"test.locked","path":"/ok"}`, http.StatusUnprocessableEntity, "missing_credential", 0},
		{"header conflict", `{"provider":"test.secure","path":"/ok","headers":{"authorization":"Bearer mine"}}`, http.StatusUnprocessableEntity, "header_conflict", 0},
		{"api error", `{"provider":"test.echo","path":"/missing"}`, http.StatusBadGateway, "api_error", 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := f.call(t, caller(), tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			body := decodeError(t, rec)
			if body.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
			if body.Upstream != tt.upstream {
				t.Errorf("upstream_status = %d, want %d", body.Upstream, tt.upstream)
			}
			if strings.Contains(rec.Body.String(), testToken) {
				t.Error("credential leaked in error envelope")
			}
			if tt.upstream == 0 && f.upstream.hits.Load() != 0 {
				t.Errorf("local failure reached the provider")
			}
		})
	}
}

func TestCall_ProviderNotAllowed(t *testing.T) {
	f := newFixture(t, nil)
	info := caller()
	info.AllowedProviders = []string{"other.*"}

	rec := f.call(t, info, `{"provider":"echo","path":"/ok"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if f.upstream.hits.Load() != 0 {
		t.Error("denied call reached the provider")
	}
	if len(f.denied.reasons) != 1 || f.denied.reasons[0] != "provider_not_allowed" {
		t.Errorf("denied reasons = %v", f.denied.reasons)
	}
}

func TestCall_Policy(t *testing.T) {
	t.Run("deny", func(t *testing.T) {
		pol := &fakePolicy{decision: policy.Decision{Allowed: false, Reason: "weekend freeze"}}
		f := newFixture(t, pol)

		rec := f.call(t, caller(), `{"provider":"echo","path":"/ok?secret=1","params":{"b":1,"a":2},"method":"delete"}`)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
		if !strings.Contains(decodeError(t, rec).Message, "weekend freeze") {
			t.Errorf("reason not surfaced: %s", rec.Body.String())
		}
		if pol.got.Call.Provider != "test.echo" || pol.got.Call.Method != "DELETE" || pol.got.Call.Path != "/ok" {
			t.Errorf("policy input = %+v", pol.got.Call)
		}
		if strings.Join(pol.got.Call.Params, ",") != "a,b" {
			t.Errorf("policy params = %v, want sorted names", pol.got.Call.Params)
		}
		if pol.got.Caller.Org != "org-1" {
			t.Errorf("policy caller = %+v", pol.got.Caller)
		}
	})

	t.Run("error fails closed", func(t *testing.T) {
		f := newFixture(t, &fakePolicy{err: errors.New("eval timeout"), decision: policy.Decision{Allowed: true}})
		rec := f.call(t, caller(), `{"provider":"echo","path":"/ok"}`)
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("allow", func(t *testing.T) {
		f := newFixture(t, &fakePolicy{decision: policy.Decision{Allowed: true}})
		rec := f.call(t, caller(), `{"provider":"echo","path":"/ok"}`)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestCall_CircuitBreaker(t *testing.T) {
	f := newFixture(t, nil)

	for i := 0; i < 2; i++ {
		rec := f.call(t, caller(), `{"provider":"echo","path":"/fail"}`)
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("call %d: expected 502, got %d", i, rec.Code)
		}
	}
	hits := f.upstream.hits.Load()

	rec := f.call(t, caller(), `{"provider":"echo","path":"/ok"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from open circuit, got %d", rec.Code)
	}
	if decodeError(t, rec).Code != "circuit_open" {
		t.Errorf("expected circuit_open code: %s", rec.Body.String())
	}
	if f.upstream.hits.Load() != hits {
		t.Error("open circuit still called the provider")
	}

	// Other providers are unaffected.
	if rec := f.call(t, caller(), `{"provider":"other.thing","path":"/ok"}`); rec.Code != http.StatusOK {
		t.Errorf("independent provider blocked: %d", rec.Code)
	}
}

func TestCall_ClientErrorsDoNotOpenCircuit(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 5; i++ {
		f.call(t, caller(), `{"provider":"echo","path":"/missing"}`)
	}
	if rec := f.call(t, caller(), `{"provider":"echo","path":"/ok"}`); rec.Code != http.StatusOK {
		t.Errorf("404 answers opened the circuit: %d", rec.Code)
	}
}

func TestCall_HotSwap(t *testing.T) {
	f := newFixture(t, nil)
	before := f.current.Load()

	other := newUpstream(t)
	old := f.current.Swap(buildRuntime(t, other.URL))
	if old != before {
		t.Error("Swap did not return the previous runtime")
	}

	if rec := f.call(t, caller(), `{"provider":"echo","path":"/ok"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if other.hits.Load() != 1 || f.upstream.hits.Load() != 0 {
		t.Errorf("call did not use the swapped runtime (new=%d old=%d)", other.hits.Load(), f.upstream.hits.Load())
	}
}

func TestListProviders(t *testing.T) {
	f := newFixture(t, nil)

	list := func(info *auth.AuthInfo, query string) providerListResponse {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/v1/providers"+query, nil)
		req = req.WithContext(auth.ContextWithAuth(req.Context(), info))
		rec := httptest.NewRecorder()
		f.handler.ListProviders(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), testToken) {
			t.Fatal("credential leaked in provider listing")
		}
		var resp providerListResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		return resp
	}

	all := list(caller(), "")
	if len(all.Data) != 4 {
		t.Errorf("expected 4 providers, got %d", len(all.Data))
	}
	if all.Data[0].Key != "other.thing" {
		t.Errorf("providers not sorted by key: %s first", all.Data[0].Key)
	}

	byCat := list(caller(), "?category=test")
	if len(byCat.Data) != 3 {
		t.Errorf("expected 3 test providers, got %d", len(byCat.Data))
	}

	restricted := caller()
	restricted.AllowedProviders = []string{"test.echo"}
	only := list(restricted, "")
	if len(only.Data) != 1 || only.Data[0].Description != "echo service" {
		t.Errorf("allow list not applied: %+v", only.Data)
	}
}

func TestGetProvider(t *testing.T) {
	f := newFixture(t, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.ContextWithAuth(req.Context(), caller())))
		})
	})
	r.Get("/v1/providers/{key}", f.handler.GetProvider)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/providers/test.locked", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var obj providerObject
	json.Unmarshal(rec.Body.Bytes(), &obj)
	if obj.AuthScheme != types.AuthAPIKeyHeader || len(obj.AuthParams) != 1 || obj.AuthParams[0] != "X-Key" {
		t.Errorf("unexpected provider: %+v", obj)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/providers/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	f.call(t, caller(), `{"provider":"echo","path":"/ok"}`)

	rec := httptest.NewRecorder()
	f.handler.Health("test")(rec, httptest.NewRequest(http.MethodGet, "/universe/v1/health", nil))

	var resp healthResponse
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.Version != "test" || resp.Providers != 4 {
		t.Errorf("unexpected health: %+v", resp)
	}
	if len(resp.Circuits) != 1 || resp.Circuits[0].Provider != "test.echo" || resp.Circuits[0].State != "closed" {
		t.Errorf("circuits = %+v", resp.Circuits)
	}
}
