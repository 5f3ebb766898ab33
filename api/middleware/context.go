package middleware

import (
	"context"

	"github.com/angelmondragon/learnhub-backend/internal/identity"
	"github.com/angelmondragon/learnhub-backend/internal/users"
	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	"github.com/google/uuid"
)

type contextKey string

const (
	ctxPrincipal contextKey = "principal"
	ctxProfile   contextKey = "profile"
)

// WithPrincipal stores the verified caller and its (possibly nil) profile.
func WithPrincipal(ctx context.Context, principal identity.Principal, profile *models.User) context.Context {
	ctx = context.WithValue(ctx, ctxPrincipal, principal)
	return context.WithValue(ctx, ctxProfile, profile)
}

func PrincipalFromContext(ctx context.Context) (identity.Principal, bool) {
	if ctx == nil {
		return identity.Principal{}, false
	}
	p, ok := ctx.Value(ctxPrincipal).(identity.Principal)
	return p, ok
}

// ProfileFromContext returns nil when the principal has no profile row.
func ProfileFromContext(ctx context.Context) *models.User {
	if ctx == nil {
		return nil
	}
	p, _ := ctx.Value(ctxProfile).(*models.User)
	return p
}

func UserIDFromContext(ctx context.Context) uuid.UUID {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return uuid.Nil
	}
	return p.ID
}

// RoleFromContext is the effective role: profile, then credential, then student.
// It is empty for unauthenticated requests.
// IsProfileAdmin reports whether the caller's profile row grants admin. A
// credential role claim alone never does.
func IsProfileAdmin(ctx context.Context) bool {
	profile := ProfileFromContext(ctx)
	return profile != nil && profile.Role == enums.UserRoleAdmin
}

func RoleFromContext(ctx context.Context) enums.UserRole {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return ""
	}
	return users.EffectiveRole(ProfileFromContext(ctx), p.Role)
}
