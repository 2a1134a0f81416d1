// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// Roles known to the platform. Cashiers sell, managers additionally adjust
// stock and close stock takes, admins manage everything.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

// UserContext contains authenticated user information.
type UserContext struct {
	UserID    string
	TenantID  string
	Email     string
	Role      string
	OutletIDs []string // outlets the user may operate; empty means all
	SessionID string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// GetTenantID returns tenant ID from context or empty string.
func GetTenantID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.TenantID
	}
	return ""
}

// IsAdmin reports whether the context user has the admin role.
func IsAdmin(ctx context.Context) bool {
	u := GetUser(ctx)
	return u != nil && u.Role == RoleAdmin
}

// HasRole checks if user has at least the given role.
// Roles are ordered cashier < manager < admin.
func HasRole(ctx context.Context, role string) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	rank := map[string]int{RoleCashier: 1, RoleManager: 2, RoleAdmin: 3}
	return rank[u.Role] >= rank[role] && rank[role] > 0
}

// HasOutletAccess checks if user may operate the given outlet.
func HasOutletAccess(ctx context.Context, outletID string) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	if u.Role == RoleAdmin || len(u.OutletIDs) == 0 {
		return true
	}
	for _, oid := range u.OutletIDs {
		if oid == outletID {
			return true
		}
	}
	return false
}
