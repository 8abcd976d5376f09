package middleware

import (
	"net/http"

	"github.com/cinevault/cinevault-backend/api/responses"
	"github.com/cinevault/cinevault-backend/pkg/enums"
	pkgerrors "github.com/cinevault/cinevault-backend/pkg/errors"
	"github.com/cinevault/cinevault-backend/pkg/logger"
)

// Capability names a guarded action. Routes declare the capability they need
// and roles map to capability sets, so a new role never inherits by accident.
type Capability string

const (
	CapManageOwnLibrary Capability = "library:manage"
	CapViewAllOrders    Capability = "orders:view_all"
	CapViewAllPayments  Capability = "payments:view_all"
	CapRefundPayments   Capability = "payments:refund"
)

var roleCapabilities = map[enums.UserRole]map[Capability]bool{
	enums.UserRoleUser: {
		CapManageOwnLibrary: true,
	},
	enums.UserRoleModerator: {
		CapManageOwnLibrary: true,
		CapViewAllOrders:    true,
		CapViewAllPayments:  true,
	},
	enums.UserRoleAdmin: {
		CapManageOwnLibrary: true,
		CapViewAllOrders:    true,
		CapViewAllPayments:  true,
		CapRefundPayments:   true,
	},
}

// HasCapability reports whether the role grants the capability.
func HasCapability(role enums.UserRole, cap Capability) bool {
	return roleCapabilities[role][cap]
}

// RequireCapability rejects callers whose role does not grant the capability.
func RequireCapability(cap Capability, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasCapability(RoleFromContext(r.Context()), cap) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
