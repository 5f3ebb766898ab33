package users

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type profileLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Resolver loads the profile backing an authenticated principal.
type Resolver struct {
	repo    profileLookup
	timeout time.Duration
}

func NewResolver(repo profileLookup, timeout time.Duration) *Resolver {
	return &Resolver{repo: repo, timeout: timeout}
}

// Resolve returns (nil, nil) when no profile row exists. It never creates one.
func (r *Resolver) Resolve(ctx context.Context, principalID uuid.UUID) (*models.User, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	user, err := r.repo.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// EffectiveRole applies the role precedence: profile row, then the role
// asserted by the credential, then student.
func EffectiveRole(profile *models.User, credentialRole enums.UserRole) enums.UserRole {
	if profile != nil && profile.Role.IsValid() {
		return profile.Role
	}
	if credentialRole.IsValid() {
		return credentialRole
	}
	return enums.UserRoleStudent
}
