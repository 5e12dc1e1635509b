package auth

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ledgergate/ledgergate/internal/authz"
	"github.com/ledgergate/ledgergate/internal/observability"
	"github.com/ledgergate/ledgergate/internal/platform/httpx"
	"github.com/ledgergate/ledgergate/internal/shared"
)

// PrincipalMiddleware resolves the session's user into an authz.Principal
// on every request. Requests without a valid logged-in user pass through
// unauthenticated; enforcement happens in RequireAuth and the gates below.
func PrincipalMiddleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" {
				next.ServeHTTP(w, r)
				return
			}
			userID, err := strconv.ParseInt(sess.User(), 10, 64)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			user, err := service.Lookup(r.Context(), userID)
			if err != nil || !user.IsActive {
				if err != nil && httpx.IsInternal(err) {
					logger.Error("resolve session user", slog.Int64("user_id", userID), slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := shared.ContextWithPrincipal(r.Context(), user.Principal())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests without an authenticated principal.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.PrincipalFromContext(r.Context()); !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCapability guards a route subtree behind a single capability
// check. Handlers still call the gate themselves for per-operation rules;
// this keeps whole surfaces dark for roles that can never use them.
// metrics may be nil.
func RequireCapability(gate *authz.Gate, capability authz.Capability, metrics *observability.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if decision := gate.Check(p, capability); !decision.Allowed {
				metrics.ObserveDenial(string(capability), string(decision.Reason))
				logger.Warn("capability denied",
					slog.String("capability", string(capability)),
					slog.String("reason", string(decision.Reason)),
					slog.Int64("user_id", p.UserID))
				httpx.RespondError(w, gate.Require(p, capability))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
