package middleware

import (
	"crypto/subtle"
	"net/http"

	"keyshop-bot/internal/pkg/logging"
	"keyshop-bot/pkg/apierror"
	"keyshop-bot/pkg/response"

	"go.uber.org/zap"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Secret"

// SecretConfig holds configuration for the shared-secret middleware.
type SecretConfig struct {
	Secret string

	// OnReject is called for every rejected request. Optional.
	OnReject func()
}

// NewSecretMiddleware rejects requests whose X-Secret header does not match
// the configured secret. An empty secret rejects everything.
func NewSecretMiddleware(cfg SecretConfig) func(http.Handler) http.Handler {
	secret := []byte(cfg.Secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(SecretHeader))
			if len(secret) == 0 || subtle.ConstantTimeCompare(got, secret) != 1 {
				logging.FromContext(r.Context()).Warn("webhook_forbidden", zap.String("remote_addr", r.RemoteAddr))
				if cfg.OnReject != nil {
					cfg.OnReject()
				}
				response.Error(w, apierror.Forbidden("invalid secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
