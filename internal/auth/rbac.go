package auth

import (
	"net/http"
	"slices"
)

type Permission string

const (
	PermSourcesRead  Permission = "sources:read"
	PermSourcesWrite Permission = "sources:write"
	PermSearch       Permission = "search"
	PermWildcard     Permission = "*"
)

var rolePermissions = map[string][]Permission{
	"owner":  {PermWildcard},
	"admin":  {PermWildcard},
	"editor": {PermSourcesRead, PermSourcesWrite, PermSearch},
	"viewer": {PermSourcesRead, PermSearch},
}

// HasPermission reports whether role grants perm. Unknown roles grant
// nothing.
func HasPermission(role string, perm Permission) bool {
	perms := rolePermissions[role]
	return slices.Contains(perms, PermWildcard) || slices.Contains(perms, perm)
}

// RequirePermission must run after Authenticate.
func RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if !HasPermission(claims.Role, perm) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
