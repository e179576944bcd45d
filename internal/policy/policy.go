package policy

import (
	"errors"
	"fmt"
)

// ErrDenied indicates the caller's role does not grant the requested
// operation. Callers must perform this check before any side effect.
var ErrDenied = errors.New("policy: operation denied")

// ErrUnknownRole indicates a role outside the fixed set.
var ErrUnknownRole = errors.New("policy: unknown role")

// Role is the single role held by an authenticated principal.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAuditor Role = "auditor"
)

// ParseRole validates raw input against the fixed role set.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleAuditor:
		return RoleAuditor, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}

// Operation identifies an action gated by the access policy.
type Operation string

const (
	OpCreatePrincipal Operation = "create_principal"
	OpDeletePrincipal Operation = "delete_principal"
	OpListPrincipals  Operation = "list_principals"
	OpSubmitDocument  Operation = "submit_document"
	OpListDocuments   Operation = "list_documents"
	OpApproveDocument Operation = "approve_document"
)

// capabilities lists the operations each role may invoke. Roles are
// exclusive: administration and audit work never overlap.
var capabilities = map[Role]map[Operation]struct{}{
	RoleAdmin: {
		OpCreatePrincipal: {},
		OpDeletePrincipal: {},
		OpListPrincipals:  {},
	},
	RoleAuditor: {
		OpSubmitDocument:  {},
		OpListDocuments:   {},
		OpApproveDocument: {},
	},
}

// Authorize returns nil when the role grants the operation and an
// ErrDenied-wrapping error otherwise.
func Authorize(role Role, operation Operation) error {
	granted, ok := capabilities[role]
	if !ok {
		return fmt.Errorf("%w: role %q", ErrDenied, role)
	}
	if _, ok := granted[operation]; !ok {
		return fmt.Errorf("%w: role %q may not %s", ErrDenied, role, operation)
	}
	return nil
}
