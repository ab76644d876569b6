package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role strings carried by a Principal.
const (
	RoleAdmin        = "admin"
	RoleBiologist    = "biologist"
	RoleProfessional = "professional"
)

// Principal is the authenticated caller, resolved once at the HTTP boundary
// and passed explicitly into every core operation. Domain code never reads
// ambient session state.
type Principal struct {
	ID   uuid.UUID
	Role string
	Name string
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a context carrying the given principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the principal from context. The zero value
// is returned when no principal is present (public endpoints).
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey).(Principal)
	return p
}

// IsClinical reports whether the principal may operate on tests and reports.
func (p Principal) IsClinical() bool {
	return p.Role == RoleAdmin || p.Role == RoleBiologist
}
