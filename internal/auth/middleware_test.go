package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// mockKeyStore implements KeyStore for testing.
type mockKeyStore struct {
	keys map[string]*KeyMetadata
	err  error
}

func (m *mockKeyStore) Lookup(ctx context.Context, keyHash string) (*KeyMetadata, error) {
	if m.err != nil {
		return nil, m.err
	}
	meta, ok := m.keys[keyHash]
	if !ok {
		return nil, nil
	}
	return meta, nil
}

type countingDenier struct{ reasons []string }

func (c *countingDenier) RecordDenied(reason string) { c.reasons = append(c.reasons, reason) }

func serve(t *testing.T, store KeyStore, denied Denier, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	handler := Middleware(store, denied)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest("POST", "/v1/call", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "test-req")
	handler.ServeHTTP(w, req)
	return w
}

func TestMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
		{"unknown key", "Bearer uvg-prod-invalidkey123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			denied := &countingDenier{}
			w := serve(t, &mockKeyStore{keys: map[string]*KeyMetadata{}}, denied, tt.header)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
			if len(denied.reasons) != 1 || denied.reasons[0] != "auth" {
				t.Errorf("denied reasons = %v, want [auth]", denied.reasons)
			}
		})
	}
}

func TestMiddleware_StoreError(t *testing.T) {
	w := serve(t, &mockKeyStore{err: errors.New("db down")}, nil, "Bearer uvg-prod-whatever")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestMiddleware_ValidKey(t *testing.T) {
	rawKey := "uvg-prod-testkey12345678901234567890ab"
	rpm := 30

	store := &mockKeyStore{
		keys: map[string]*KeyMetadata{
			HashKey(rawKey): {
				ID:               "key-uuid-123",
				OrganizationID:   "org-1",
				TeamID:           "team-1",
				UserID:           "user-1",
				AllowedProviders: []string{"finance.*"},
				RPMLimit:         &rpm,
				ExpiresAt:        time.Now().Add(24 * time.Hour),
			},
		},
	}

	var gotAuth *AuthInfo
	handler := Middleware(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := AuthFromContext(r.Context())
		if !ok {
			t.Error("expected auth info in context")
			return
		}
		gotAuth = info
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/v1/call", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if gotAuth == nil {
		t.Fatal("auth info should be set")
	}
	if gotAuth.OrganizationID != "org-1" {
		t.Errorf("expected org-1, got %s", gotAuth.OrganizationID)
	}
	if gotAuth.KeyPrefix != "uvg-prod-testkey1" {
		t.Errorf("KeyPrefix = %q, want uvg-prod-testkey1", gotAuth.KeyPrefix)
	}
	if !gotAuth.AllowsProvider("finance.stripe") || gotAuth.AllowsProvider("versand.dhl") {
		t.Errorf("AllowedProviders not carried: %v", gotAuth.AllowedProviders)
	}
	if gotAuth.RPMLimit == nil || *gotAuth.RPMLimit != 30 {
		t.Errorf("RPMLimit = %v, want 30", gotAuth.RPMLimit)
	}
}
