package middleware

import (
	"net/http"
	"strings"

	"github.com/estatechat/platform/internal/tenancy"
)

// RequireTenant extracts the tenant id from the X-Tenant-Id header and puts
// it in the request context. Requests without one are rejected before any
// handler runs.
func RequireTenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
			if tenantID == "" {
				http.Error(w, "missing X-Tenant-Id header", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r.WithContext(tenancy.WithTenantID(r.Context(), tenantID)))
		})
	}
}
