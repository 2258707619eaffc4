package middleware

import (
	"net/http"
	"slices"
	"strings"

	"smarter-store/pkg/utils"

	"go.uber.org/zap"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	RoleCustomer = "customer"
	RoleAdmin    = "admin"
	RolePayment  = "payment"
)

// Identity membaca identitas user yang sudah diverifikasi oleh gateway.
// Request tanpa X-User-ID ditolak dengan 401.
func Identity(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if raw == "" {
				utils.ResponseUnauthorized(w, "Missing "+HeaderUserID+" header")
				return
			}

			userID, err := utils.ParseUUID(raw)
			if err != nil {
				logger.Warn("Invalid user identity", zap.String("user_id", raw))
				utils.ResponseUnauthorized(w, "Invalid "+HeaderUserID+" header")
				return
			}

			role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole)))
			if role == "" {
				role = RoleCustomer
			}

			ctx := utils.SetUserContext(r.Context(), userID, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Admin - middleware cek role admin, dipasang setelah Identity
func Admin(logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRole(logger, RoleAdmin)
}

// RequireRole menolak request yang role-nya tidak ada di roles
func RequireRole(logger *zap.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := utils.GetUserIDFromContext(r.Context())
			if !ok {
				utils.ResponseUnauthorized(w, "Authentication required")
				return
			}

			role, _ := utils.GetRoleFromContext(r.Context())
			if !slices.Contains(roles, role) {
				logger.Warn("Role check: access denied",
					zap.String("user_id", userID.String()),
					zap.String("role", role),
					zap.String("path", r.URL.Path))
				utils.ResponseForbidden(w, "Insufficient role")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
