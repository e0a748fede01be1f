package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"chatledger/pkg/config"
	"chatledger/pkg/logger"
	"chatledger/pkg/utils"
)

// Role represents the resolved caller role for a request.
type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
	RoleAdmin
)

// SecConfig mirrors the security-related configuration used to drive
// authentication, CORS and rate limiting behavior. Put here so limiter.go
// and gateway.go can reference the shared type.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
}

type ctxAccountKey struct{}

// RequireSignedAccount verifies HMAC signature headers and injects the
// verified account id into the request context. Requests without a
// signature pass through unverified: ResolveAccountFromRequest rejects
// untrusted callers on the operations that need an account, so public
// reads and health probes stay signature-free.
func RequireSignedAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := strings.TrimSpace(r.Header.Get("X-Account-ID"))
		sig := strings.TrimSpace(r.Header.Get("X-Account-Signature"))

		if sig == "" {
			next.ServeHTTP(w, r)
			return
		}
		// signature is present; require accountID as well
		if accountID == "" {
			logger.Warn("missing_signature_headers", "path", r.URL.Path, "remote", r.RemoteAddr)
			utils.JSONError(w, http.StatusUnauthorized, "missing signature headers")
			return
		}

		// Retrieve signing keys from the canonical config package.
		keys := config.GetSigningKeys()
		if len(keys) == 0 {
			logger.Error("no_signing_keys_configured")
			utils.JSONError(w, http.StatusInternalServerError, "server misconfigured: no signing secrets available")
			return
		}

		// Try all configured signing keys.
		ok := false
		for k := range keys {
			mac := hmac.New(sha256.New, []byte(k))
			mac.Write([]byte(accountID))
			expected := hex.EncodeToString(mac.Sum(nil))
			if hmac.Equal([]byte(expected), []byte(sig)) {
				ok = true
				break
			}
		}
		if !ok {
			logger.Warn("invalid_signature", "account", accountID)
			utils.JSONError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		logger.Info("signature_verified", "account", accountID)
		ctx := context.WithValue(r.Context(), ctxAccountKey{}, accountID)
		r = r.WithContext(ctx)
		// do not set headers; handlers should use context via AccountIDFromContext
		next.ServeHTTP(w, r)
	})
}

// AccountIDFromContext returns the verified account id or empty string.
func AccountIDFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxAccountKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
