package firmauth

import "strings"

// Role is an account's role within its firm. Roles are a strict
// hierarchy: each level can do everything the levels below it can,
// except that tenant and client scoping always applies regardless of
// role.
type Role string

const (
	// RoleSuperAdmin is the platform operator role, spanning firm onboarding.
	RoleSuperAdmin Role = "SUPER_ADMIN"
	// RoleAdmin administers a single firm.
	RoleAdmin Role = "ADMIN"
	// RoleProjectManager runs service engagements for a firm.
	RoleProjectManager Role = "PROJECT_MANAGER"
	// RoleTeamMember executes assigned work items.
	RoleTeamMember Role = "TEAM_MEMBER"
	// RoleClient is a client partner of the firm.
	RoleClient Role = "CLIENT"
	// RoleCustomer is a client-linked end customer, scoped by client id.
	RoleCustomer Role = "CUSTOMER"
)

var roleHierarchy = map[Role]int{
	RoleCustomer:       0,
	RoleClient:         1,
	RoleTeamMember:     2,
	RoleProjectManager: 3,
	RoleAdmin:          4,
	RoleSuperAdmin:     5,
}

var routePrefixes = map[Role]string{
	RoleSuperAdmin:     "/super-admin",
	RoleAdmin:          "/admin",
	RoleProjectManager: "/project-manager",
	RoleTeamMember:     "/team-member",
	RoleClient:         "/client",
	RoleCustomer:       "/customer",
}

// IsValid checks if the role is one of the predefined roles.
func (r Role) IsValid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// IsAtLeast checks if this role meets the minimum required level.
// Unknown roles never satisfy any minimum.
func (r Role) IsAtLeast(minRole Role) bool {
	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// RoutePrefix is the frontend route namespace for the role, consumed by
// the edge guard to build post-login redirects.
func (r Role) RoutePrefix() string {
	if prefix, ok := routePrefixes[r]; ok {
		return prefix
	}
	return "/"
}

// IsClientScoped reports whether the role is additionally restricted to
// a single client within its firm.
func (r Role) IsClientScoped() bool {
	return r == RoleCustomer
}

// GetAllRoles returns all predefined roles in descending privilege order.
func GetAllRoles() []Role {
	return []Role{
		RoleSuperAdmin,
		RoleAdmin,
		RoleProjectManager,
		RoleTeamMember,
		RoleClient,
		RoleCustomer,
	}
}

// ParseRole converts a raw string into a Role. Check IsValid on the
// result before trusting it.
func ParseRole(roleStr string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(roleStr)))
}
