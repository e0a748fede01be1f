package auth

import (
	"net/http"
	"strings"

	"chatledger/pkg/logger"
	"chatledger/pkg/validation"
)

// ResolveAccountFromRequest is the single canonical resolver handlers should
// call. It prefers a signature-verified account (in context). If a signature
// is present it is authoritative; any conflicting account provided via
// header/body/query will cause a 403. When no signature is present,
// backend/admin roles may supply an account via body, header (X-Account-ID)
// or query (fallback). Frontend callers require a signature and will receive
// 401 when missing.
func ResolveAccountFromRequest(r *http.Request, bodyAccount string) (string, int, string) {
	// Prefer signature-verified account from context
	if id := AccountIDFromContext(r.Context()); id != "" {
		// If other provided accounts conflict with the signature, reject.
		if q := strings.TrimSpace(r.URL.Query().Get("account")); q != "" && q != id {
			logger.Warn("account_mismatch_signature_query", "signature", id, "query", q, "remote", r.RemoteAddr, "path", r.URL.Path)
			return "", http.StatusForbidden, "account mismatch between signature and query param"
		}
		if h := strings.TrimSpace(r.Header.Get("X-Account-ID")); h != "" && h != id {
			logger.Warn("account_mismatch_signature_header", "signature", id, "header", h, "remote", r.RemoteAddr, "path", r.URL.Path)
			return "", http.StatusForbidden, "account mismatch between signature and header"
		}
		if bodyAccount != "" && bodyAccount != id {
			logger.Warn("account_mismatch_signature_body", "signature", id, "body", bodyAccount, "remote", r.RemoteAddr, "path", r.URL.Path)
			return "", http.StatusForbidden, "account mismatch between signature and body account"
		}
		logger.Info("account_resolved_signature", "account", id, "remote", r.RemoteAddr, "path", r.URL.Path)
		return id, 0, ""
	}

	// No signature; allow backend/admins to supply an account via body/header/query.
	role := r.Header.Get("X-Role-Name")
	if role == "backend" || role == "admin" {
		for _, candidate := range []struct {
			val, src string
		}{
			{bodyAccount, "body"},
			{strings.TrimSpace(r.Header.Get("X-Account-ID")), "header"},
			{strings.TrimSpace(r.URL.Query().Get("account")), "query"},
		} {
			if candidate.val == "" {
				continue
			}
			if err := validation.ValidateAccount(candidate.val); err != nil {
				logger.Warn("invalid_backend_account", "account", candidate.val, "remote", r.RemoteAddr, "path", r.URL.Path)
				return "", http.StatusBadRequest, err.Error()
			}
			logger.Info("account_from_"+candidate.src+"_backend", "account", candidate.val, "remote", r.RemoteAddr, "path", r.URL.Path)
			return candidate.val, 0, ""
		}
		logger.Warn("backend_missing_account", "remote", r.RemoteAddr, "path", r.URL.Path)
		return "", http.StatusBadRequest, "account required for backend requests"
	}

	// Otherwise require signature
	logger.Warn("missing_account_signature", "role", role, "remote", r.RemoteAddr, "path", r.URL.Path)
	return "", http.StatusUnauthorized, "missing or invalid account signature"
}
