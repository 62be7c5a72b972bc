package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/delivery-admin/internal/domain/auth"
)

// HeaderAPIKey is the request header carrying the API key.
const HeaderAPIKey = "api_key"

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper, the form keys
// are stored in.
func HashAPIKey(key string, pepper []byte) string {
	return hex.EncodeToString(keyMAC(key, pepper))
}

func keyMAC(key string, pepper []byte) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// authenticate resolves the api_key header to a key and its tenant.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderAPIKey)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing api key")
			return
		}

		hash := keyMAC(key, h.pepper)
		info, err := h.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
		if err != nil {
			zctx.From(r.Context()).Debug("API key rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		// The stored hash must match what we computed, whatever row the
		// repository returned.
		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := auth.WithKey(r.Context(), info)
		ctx = zctx.With(ctx, zap.String("tenant_id", info.TenantID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := auth.KeyFrom(r.Context())
			if info == nil || !info.HasScope(scope) {
				writeError(w, http.StatusForbidden, "api key lacks scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitKey buckets authenticated requests per API key. It returns "" for
// anonymous requests.
func RateLimitKey(r *http.Request) string {
	if info := auth.KeyFrom(r.Context()); info != nil {
		return "key:" + info.TenantID + ":" + info.ID
	}
	return ""
}

func tenantOf(r *http.Request) string {
	if info := auth.KeyFrom(r.Context()); info != nil {
		return info.TenantID
	}
	return ""
}
