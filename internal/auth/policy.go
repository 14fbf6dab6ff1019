package auth

import (
	"fmt"
	"strings"

	"github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/metrics"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// Operation names an engine operation subject to authorization.
type Operation string

const (
	OpRegisterSelf   Operation = "operator.register"
	OpProfileRead    Operation = "operator.read"
	OpProfileList    Operation = "operator.list"
	OpRoleSet        Operation = "operator.set_role"
	OpCaseCreate     Operation = "case.create"
	OpCaseRead       Operation = "case.read"
	OpCaseStatus     Operation = "case.update_status"
	OpCaseAssign     Operation = "case.assign"
	OpCaseNote       Operation = "case.add_note"
	OpCaseDelete     Operation = "case.delete"
	OpIncidentSubmit Operation = "incident.submit"
	OpIncidentRead   Operation = "incident.read"
	OpAuditRead      Operation = "audit.read"
)

// Resource returns the resource part of the operation name.
func (op Operation) Resource() string {
	resource, _, _ := strings.Cut(string(op), ".")
	return resource
}

var operationPermissions = map[Operation]Permission{
	OpProfileRead:    PermOperatorRead,
	OpProfileList:    PermOperatorList,
	OpRoleSet:        PermOperatorManage,
	OpCaseCreate:     PermCaseCreate,
	OpCaseRead:       PermCaseRead,
	OpCaseStatus:     PermCaseUpdate,
	OpCaseAssign:     PermCaseAssign,
	OpCaseNote:       PermCaseNote,
	OpCaseDelete:     PermCaseDelete,
	OpIncidentSubmit: PermIncidentCreate,
	OpIncidentRead:   PermIncidentRead,
	OpAuditRead:      PermAuditRead,
}

// Caller is the resolved identity behind a request.
type Caller struct {
	Principal  types.Principal
	Name       string
	Role       Role
	Registered bool
}

// IsAdmin reports whether the caller is a registered admin.
func (c Caller) IsAdmin() bool {
	return c.Registered && c.Role == RoleAdmin
}

// AccessRole classifies the caller as admin, user or guest.
func (c Caller) AccessRole() AccessRole {
	switch {
	case !c.Registered:
		return AccessGuest
	case c.Role == RoleAdmin:
		return AccessAdmin
	default:
		return AccessUser
	}
}

// Target describes the entity an operation acts on. Only operations with
// ownership rules read it.
type Target struct {
	Owner types.Principal
}

// DenyCode classifies a denial.
type DenyCode string

const (
	DenyUnauthenticated DenyCode = "unauthenticated"
	DenyForbidden       DenyCode = "forbidden"
)

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Code    DenyCode
	Reason  string
}

// Err converts a denial into the matching application error, nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Code == DenyUnauthenticated {
		return errors.Unauthenticated(d.Reason)
	}
	return errors.Forbidden(d.Reason)
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(code DenyCode, reason string) Decision {
	return Decision{Code: code, Reason: reason}
}

// Authorize decides whether caller may perform op on target. It has no side
// effects.
func Authorize(caller Caller, op Operation, target Target) Decision {
	if caller.Principal.IsZero() {
		return deny(DenyUnauthenticated, "anonymous caller")
	}

	switch op {
	case OpRegisterSelf:
		return allow()
	case OpProfileRead:
		if target.Owner == caller.Principal {
			return allow()
		}
	}

	if !caller.Registered {
		return deny(DenyUnauthenticated, "caller is not a registered operator")
	}

	perm, ok := operationPermissions[op]
	if !ok {
		return deny(DenyForbidden, fmt.Sprintf("unknown operation %q", op))
	}
	if !HasPermission(caller.Role, perm) {
		return deny(DenyForbidden, fmt.Sprintf("role %s is not permitted to %s", caller.Role, op))
	}
	return allow()
}

// Enforce runs Authorize, records the decision and returns the denial error.
func Enforce(caller Caller, op Operation, target Target) error {
	d := Authorize(caller, op, target)
	metrics.RecordAuthorizationDecision(op.Resource(), string(op), d.Allowed)
	return d.Err()
}
