// Package auth provides operator roles and the authorization policy.
package auth

import (
	"fmt"
	"slices"

	"github.com/sentinel-ops/casedesk/internal/shared/errors"
)

// Role represents an operator role.
type Role string

const (
	RoleAdmin   Role = "admin"   // Governs roles, assignment and deletion
	RoleAnalyst Role = "analyst" // Files incidents, works cases
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleAnalyst}

// ParseRole converts a wire value into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", errors.InvalidArgument("role", fmt.Sprintf("unknown role %q", s))
	}
	return r, nil
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return slices.Contains(Roles, r)
}

// AccessRole is the coarse caller classification exposed to clients.
type AccessRole string

const (
	AccessAdmin AccessRole = "admin"
	AccessUser  AccessRole = "user"
	AccessGuest AccessRole = "guest" // No operator profile
)

// Permission represents a specific action on a resource.
type Permission string

// Case permissions
const (
	PermCaseCreate Permission = "case.create"
	PermCaseRead   Permission = "case.read"
	PermCaseUpdate Permission = "case.update"
	PermCaseAssign Permission = "case.assign"
	PermCaseNote   Permission = "case.note"
	PermCaseDelete Permission = "case.delete"
)

// Incident permissions
const (
	PermIncidentCreate Permission = "incident.create"
	PermIncidentRead   Permission = "incident.read"
)

// Operator permissions
const (
	PermOperatorRead   Permission = "operator.read"
	PermOperatorList   Permission = "operator.list"
	PermOperatorManage Permission = "operator.manage"
)

// PermAuditRead grants access to the audit trail.
const PermAuditRead Permission = "audit.read"

// RolePermissions maps roles to their permissions. Tightening the policy is
// an edit to this table.
var RolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermCaseCreate, PermCaseRead, PermCaseUpdate, PermCaseAssign, PermCaseNote, PermCaseDelete,
		PermIncidentCreate, PermIncidentRead,
		PermOperatorRead, PermOperatorList, PermOperatorManage,
		PermAuditRead,
	},
	RoleAnalyst: {
		PermCaseCreate, PermCaseRead, PermCaseUpdate, PermCaseNote,
		PermIncidentCreate, PermIncidentRead,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	return slices.Contains(perms, perm)
}
