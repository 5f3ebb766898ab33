package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/learnhub-backend/api/responses"
	"github.com/angelmondragon/learnhub-backend/internal/identity"
	"github.com/angelmondragon/learnhub-backend/internal/users"
	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/learnhub-backend/pkg/errors"
	"github.com/angelmondragon/learnhub-backend/pkg/logger"
	"github.com/google/uuid"
)

type principalVerifier interface {
	Verify(ctx context.Context, header string) (identity.Principal, error)
}

type profileResolver interface {
	Resolve(ctx context.Context, principalID uuid.UUID) (*models.User, error)
}

// RequireAuthenticated verifies the bearer credential and loads the caller's
// profile. A profile store outage is reported as a dependency failure, not as
// a bad credential.
func RequireAuthenticated(verifier principalVerifier, resolver profileResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := authenticate(r, verifier, resolver, logg)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthenticated lets anonymous requests through but still rejects a
// credential that is present and invalid. Used on public reads whose result
// depends on the caller's role.
func OptionalAuthenticated(verifier principalVerifier, resolver profileResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx, err := authenticate(r, verifier, resolver, logg)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, verifier principalVerifier, resolver profileResolver, logg *logger.Logger) (context.Context, error) {
	ctx := r.Context()
	principal, err := verifier.Verify(ctx, r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}

	var profile *models.User
	if resolver != nil {
		profile, err = resolver.Resolve(ctx, principal.ID)
		if err != nil {
			return nil, pkgerrors.Upstream(err, "resolve profile")
		}
	}

	ctx = WithPrincipal(ctx, principal, profile)
	if logg != nil {
		ctx = logg.WithPrincipal(ctx, principal.ID.String(), string(users.EffectiveRole(profile, principal.Role)))
	}
	return ctx, nil
}
