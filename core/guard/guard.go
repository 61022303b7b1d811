// Package guard decides whether a resolved identity may enter a role-gated route.
package guard

import (
	"strings"

	"github.com/trezcool/sapp/core/session"
	"github.com/trezcool/sapp/core/user"
)

// HomePath is where denied navigations are sent.
const HomePath = "/"

type Outcome string

const (
	Allow          Outcome = "ALLOW"
	Redirect       Outcome = "REDIRECT"
	Pending        Outcome = "PENDING"
	ProfileMissing Outcome = "PROFILE_MISSING"
)

type Decision struct {
	Outcome Outcome `json:"outcome"`
	Target  string  `json:"target,omitempty"` // set for Redirect
}

// Decide is a pure function of the resolved identity and the route's required roles.
// An empty requiredRoles admits any signed-in user.
func Decide(ri session.ResolvedIdentity, requiredRoles ...user.Role) Decision {
	switch {
	case ri.Loading:
		return Decision{Outcome: Pending}
	case ri.Session == nil:
		return Decision{Outcome: Redirect, Target: HomePath}
	case len(requiredRoles) == 0:
		return Decision{Outcome: Allow}
	case ri.Profile == nil:
		// a signed-in account without a role is a terminal condition, never a silent bounce home
		return Decision{Outcome: ProfileMissing}
	case !user.RoleSet(requiredRoles).Contains(ri.Profile.Role):
		return Decision{Outcome: Redirect, Target: HomePath}
	}
	return Decision{Outcome: Allow}
}

// Dashboard routes
var routes = map[string]user.RoleSet{
	"/dashboard/admin":      {user.RoleAdmin},
	"/dashboard/management": {user.RoleManagement},
	"/dashboard/teacher":    {user.RoleTeacher},
	"/dashboard/student":    {user.RoleStudent},
	"/dashboard":            {}, // any signed-in user
}

// RouteRoles returns the roles required by path (or its closest guarded parent).
// ok is false for public routes.
func RouteRoles(path string) (roles user.RoleSet, ok bool) {
	path = "/" + strings.Trim(path, "/")
	for p := path; p != "/" && p != "."; p = parent(p) {
		if roles, ok := routes[p]; ok {
			return roles, true
		}
	}
	return nil, false
}

// DecideRoute applies Decide with the roles guarding path. Public routes are always allowed.
func DecideRoute(ri session.ResolvedIdentity, path string) Decision {
	roles, ok := RouteRoles(path)
	if !ok {
		return Decision{Outcome: Allow}
	}
	return Decide(ri, roles...)
}

// DashboardPath is the landing route of role after a successful login.
func DashboardPath(role user.Role) string {
	if !role.Valid() {
		return HomePath
	}
	return "/dashboard/" + string(role)
}

func parent(p string) string {
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/"
	}
	return p[:i]
}
