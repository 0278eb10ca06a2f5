package auth

import "strings"

// Role is the caller's access level. Roles are ordered: each one includes the
// rights of the roles ranked below it.
type Role string

const (
	// RoleViewer reads and creates pledges for its own donor id only.
	RoleViewer Role = "viewer"
	// RoleOperator records executions and issues receipts for any donor.
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// NormalizeRole accepts a role claim case-insensitively.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role ranks at or above required. Unknown roles
// rank below every known one.
func RoleAtLeast(role Role, required Role) bool {
	return roleRanks[role] >= roleRanks[required]
}

// ActsForAnyDonor reports whether role bypasses per-donor ownership checks.
func ActsForAnyDonor(role Role) bool {
	return RoleAtLeast(role, RoleOperator)
}
