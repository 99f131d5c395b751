package app

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-mfg/meridian-portal/internal/platform/httpx"
)

// AdminKeyHeader carries the admin API key on mutating requests.
const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey guards mutating endpoints with a bcrypt-hashed API key.
// An empty hash disables the guard for development; that is logged once at
// construction so it cannot pass unnoticed.
func RequireAdminKey(logger *slog.Logger, keyHash string) func(http.Handler) http.Handler {
	if keyHash == "" {
		if logger != nil {
			logger.Warn("admin API key guard disabled, mutating endpoints are open")
		}
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	hash := []byte(keyHash)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(AdminKeyHeader)
			if key == "" || bcrypt.CompareHashAndPassword(hash, []byte(key)) != nil {
				httpx.JSON(w, http.StatusForbidden, httpx.Envelope{Success: false, Error: "admin key required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
