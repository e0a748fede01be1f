package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatledger/pkg/config"
)

func testSecConfig() SecConfig {
	return SecConfig{
		AllowedOrigins: []string{"*"},
		RPS:            1000,
		Burst:          1000,
		BackendKeys:    map[string]struct{}{"backend-key": {}},
		FrontendKeys:   map[string]struct{}{"frontend-key": {}},
		AdminKeys:      map[string]struct{}{"admin-key": {}},
	}
}

func signAccount(key, account string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(account))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestAuthenticateResolvesRoles(t *testing.T) {
	cfg := testSecConfig()
	cases := []struct {
		header, value string
		want          Role
	}{
		{"Authorization", "Bearer backend-key", RoleBackend},
		{"Authorization", "bearer admin-key", RoleAdmin},
		{"X-API-Key", "frontend-key", RoleFrontend},
		{"X-API-Key", "unknown-key", RoleUnauth},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
		r.Header.Set(c.header, c.value)
		role, _, hasKey := authenticate(r, cfg)
		if role != c.want || !hasKey {
			t.Fatalf("%s=%s: role=%v hasKey=%v", c.header, c.value, role, hasKey)
		}
	}

	r := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	role, _, hasKey := authenticate(r, cfg)
	if role != RoleUnauth || hasKey {
		t.Fatalf("no key: role=%v hasKey=%v", role, hasKey)
	}
}

func TestGatewayBlocksUnauthenticated(t *testing.T) {
	mw := AuthenticateRequestMiddleware(testSecConfig())
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/messages", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key: status %d", rec.Code)
	}
}

func TestGatewaySetsRoleHeader(t *testing.T) {
	mw := AuthenticateRequestMiddleware(testSecConfig())
	var seenRole string
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenRole = r.Header.Get("X-Role-Name")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	req.Header.Set("X-API-Key", "frontend-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seenRole != "frontend" {
		t.Fatalf("status=%d role=%q", rec.Code, seenRole)
	}
}

func TestGatewayFrontendScope(t *testing.T) {
	mw := AuthenticateRequestMiddleware(testSecConfig())
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	allowed := []struct{ method, path string }{
		{http.MethodGet, "/v1/messages"},
		{http.MethodPost, "/v1/messages"},
		{http.MethodPost, "/v1/storage/deposit"},
		{http.MethodGet, "/v1/storage/cost"},
		{http.MethodGet, "/v1/accounts/alice/balance"},
		{http.MethodGet, "/v1/stats"},
	}
	for _, c := range allowed {
		req := httptest.NewRequest(c.method, c.path, nil)
		req.Header.Set("X-API-Key", "frontend-key")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s %s: status %d", c.method, c.path, rec.Code)
		}
	}

	denied := []struct{ method, path string }{
		{http.MethodGet, "/v1/admin/health"},
		{http.MethodGet, "/v1/admin/keys"},
		{http.MethodDelete, "/v1/messages"},
	}
	for _, c := range denied {
		req := httptest.NewRequest(c.method, c.path, nil)
		req.Header.Set("X-API-Key", "frontend-key")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s %s: status %d, want 403", c.method, c.path, rec.Code)
		}
	}

	// backend keys are not scoped
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/health", nil)
	req.Header.Set("X-API-Key", "backend-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("backend admin access: status %d", rec.Code)
	}
}

func TestGatewayHealthBypass(t *testing.T) {
	mw := AuthenticateRequestMiddleware(testSecConfig())
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s without key: status %d", path, rec.Code)
		}
	}
}

func TestGatewayCORSPreflight(t *testing.T) {
	mw := AuthenticateRequestMiddleware(testSecConfig())
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/messages", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://example.com" {
		t.Fatalf("missing CORS headers: %v", rec.Header())
	}
}

func TestGatewayIPWhitelist(t *testing.T) {
	cfg := testSecConfig()
	cfg.IPWhitelist = []string{"10.1.2.3"}
	mw := AuthenticateRequestMiddleware(cfg)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// httptest requests arrive from 192.0.2.1
	req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	req.Header.Set("X-API-Key", "backend-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-whitelisted ip: status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	req.Header.Set("X-API-Key", "backend-key")
	req.RemoteAddr = "10.1.2.3:5555"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("whitelisted ip: status %d", rec.Code)
	}
}

func TestGatewayRateLimits(t *testing.T) {
	cfg := testSecConfig()
	cfg.RPS = 1
	cfg.Burst = 2
	mw := AuthenticateRequestMiddleware(cfg)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
		req.Header.Set("X-API-Key", "backend-key")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third burst request: status %d, want 429", last)
	}
}

func TestRequireSignedAccount(t *testing.T) {
	config.SetRuntime(&config.RuntimeConfig{
		SigningKeys: map[string]struct{}{"signing-secret": {}},
	})
	defer config.SetRuntime(nil)

	var gotAccount string
	h := RequireSignedAccount(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccount = AccountIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// valid signature injects the account into context
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	req.Header.Set("X-Role-Name", "frontend")
	req.Header.Set("X-Account-ID", "alice")
	req.Header.Set("X-Account-Signature", signAccount("signing-secret", "alice"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || gotAccount != "alice" {
		t.Fatalf("valid signature: status=%d account=%q", rec.Code, gotAccount)
	}

	// bad signature is rejected
	req = httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	req.Header.Set("X-Role-Name", "frontend")
	req.Header.Set("X-Account-ID", "alice")
	req.Header.Set("X-Account-Signature", signAccount("wrong-secret", "alice"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: status %d", rec.Code)
	}

	// signature without an account id is rejected
	req = httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	req.Header.Set("X-Account-Signature", signAccount("signing-secret", "alice"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("signature without account: status %d", rec.Code)
	}

	// unsigned requests pass through with no verified identity; the
	// resolver decides later whether the operation needs one
	gotAccount = "stale"
	req = httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || gotAccount != "" {
		t.Fatalf("unsigned request: status=%d account=%q", rec.Code, gotAccount)
	}
}

func TestResolveAccountBackendSources(t *testing.T) {
	// body account wins for backend callers
	req := httptest.NewRequest(http.MethodPost, "/v1/storage/deposit", nil)
	req.Header.Set("X-Role-Name", "backend")
	account, status, _ := ResolveAccountFromRequest(req, "alice")
	if status != 0 || account != "alice" {
		t.Fatalf("body source: account=%q status=%d", account, status)
	}

	// header fallback
	req = httptest.NewRequest(http.MethodPost, "/v1/storage/deposit", nil)
	req.Header.Set("X-Role-Name", "backend")
	req.Header.Set("X-Account-ID", "bob")
	account, status, _ = ResolveAccountFromRequest(req, "")
	if status != 0 || account != "bob" {
		t.Fatalf("header source: account=%q status=%d", account, status)
	}

	// no account anywhere
	req = httptest.NewRequest(http.MethodPost, "/v1/storage/deposit", nil)
	req.Header.Set("X-Role-Name", "backend")
	_, status, _ = ResolveAccountFromRequest(req, "")
	if status != http.StatusBadRequest {
		t.Fatalf("missing account: status %d", status)
	}

	// frontend without a verified signature gets 401
	req = httptest.NewRequest(http.MethodPost, "/v1/storage/deposit", nil)
	req.Header.Set("X-Role-Name", "frontend")
	_, status, _ = ResolveAccountFromRequest(req, "alice")
	if status != http.StatusUnauthorized {
		t.Fatalf("unsigned frontend: status %d", status)
	}
}

func TestResolveAccountSignatureAuthoritative(t *testing.T) {
	base := httptest.NewRequest(http.MethodPost, "/v1/storage/deposit", nil)
	signed := base.WithContext(context.WithValue(base.Context(), ctxAccountKey{}, "alice"))

	account, status, _ := ResolveAccountFromRequest(signed, "")
	if status != 0 || account != "alice" {
		t.Fatalf("signature account: %q status=%d", account, status)
	}

	// body conflicting with the signature is rejected
	_, status, _ = ResolveAccountFromRequest(signed, "mallory")
	if status != http.StatusForbidden {
		t.Fatalf("body conflict: status %d", status)
	}

	// conflicting header is rejected
	withHeader := signed.Clone(signed.Context())
	withHeader.Header.Set("X-Account-ID", "mallory")
	_, status, _ = ResolveAccountFromRequest(withHeader, "")
	if status != http.StatusForbidden {
		t.Fatalf("header conflict: status %d", status)
	}

	// matching body is fine
	account, status, _ = ResolveAccountFromRequest(signed, "alice")
	if status != 0 || account != "alice" {
		t.Fatalf("matching body: %q status=%d", account, status)
	}
}
