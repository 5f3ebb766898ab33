package auth

import (
	"github.com/angelmondragon/learnhub-backend/internal/users"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
)

// SignupRequest captures the fields required to create an account.
type SignupRequest struct {
	FullName string         `json:"full_name" validate:"required"`
	Email    string         `json:"email" validate:"required,email"`
	Password string         `json:"password" validate:"required,min=8"`
	Role     enums.UserRole `json:"role,omitempty"`
}

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email       string         `json:"email" validate:"required,email"`
	Password    string         `json:"password" validate:"required"`
	DesiredRole enums.UserRole `json:"desired_role,omitempty"`
}

// UpdateRoleRequest is the admin payload for changing a user's role.
type UpdateRoleRequest struct {
	Role enums.UserRole `json:"role" validate:"required"`
}

// AuthResponse is returned by signup and login. AccessToken is nil when a
// freshly created account could not be signed in automatically.
type AuthResponse struct {
	User        *users.UserDTO `json:"user"`
	AccessToken *string        `json:"access_token"`
}
