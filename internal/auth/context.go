package auth

import "context"

type contextKey string

const (
	contextKeyDonor   contextKey = "auth.donor_id"
	contextKeyRole    contextKey = "auth.role"
	contextKeySubject contextKey = "auth.subject"
)

// WithIdentity stores auth identity details in context.
func WithIdentity(ctx context.Context, donorID string, role Role, subject string) context.Context {
	ctx = context.WithValue(ctx, contextKeyDonor, donorID)
	ctx = context.WithValue(ctx, contextKeyRole, role)
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	return ctx
}

// DonorIDFromContext extracts the caller's donor id from context.
func DonorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if donorID, ok := ctx.Value(contextKeyDonor).(string); ok {
		return donorID
	}
	return ""
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyRole)
	if role, ok := value.(Role); ok {
		return role
	}
	if role, ok := value.(string); ok {
		if normalized, valid := NormalizeRole(role); valid {
			return normalized
		}
	}
	return ""
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if subject, ok := ctx.Value(contextKeySubject).(string); ok {
		return subject
	}
	return ""
}

// EnsureDonorAccess checks that the caller may act on resources of donorID.
// Operators and admins act on any donor; viewers only on their own. A context
// without identity (auth disabled) is allowed.
func EnsureDonorAccess(ctx context.Context, donorID string) error {
	role := RoleFromContext(ctx)
	if role == "" {
		return nil
	}
	if ActsForAnyDonor(role) {
		return nil
	}
	if own := DonorIDFromContext(ctx); own == "" || own != donorID {
		return ErrOwnerMismatch
	}
	return nil
}
