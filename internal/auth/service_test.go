package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/learnhub-backend/internal/users"
	pkgAuth "github.com/angelmondragon/learnhub-backend/pkg/auth"
	"github.com/angelmondragon/learnhub-backend/pkg/config"
	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnhub-backend/pkg/errors"
	"github.com/angelmondragon/learnhub-backend/pkg/logger"
	"github.com/angelmondragon/learnhub-backend/pkg/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var testJWTConfig = config.JWTConfig{
	Secret:            "secret",
	Issuer:            "learnhub",
	ExpirationMinutes: 30,
}

func TestServiceLoginMintsTokenWithProfileRole(t *testing.T) {
	password := "instructor-secret"
	user := &models.User{
		ID:           uuid.New(),
		Email:        "teach@example.com",
		PasswordHash: mustHashPassword(t, password),
		FullName:     "Tea Cher",
		Role:         enums.UserRoleInstructor,
	}
	svc, sessions := buildTestService(t, &stubUserRepo{user: user})

	resp, err := svc.Login(context.Background(), LoginRequest{Email: "  TEACH@example.com ", Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.AccessToken == nil {
		t.Fatalf("expected access token")
	}

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig, *resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Role != enums.UserRoleInstructor {
		t.Fatalf("expected instructor role claim, got %s", claims.Role)
	}
	if claims.ID == "" || sessions.generated[claims.ID] != user.ID {
		t.Fatalf("expected session stored for jti %q", claims.ID)
	}
	if resp.User.LastLoginAt == nil {
		t.Fatalf("expected last login to be recorded")
	}
}

func TestServiceLoginWrongPassword(t *testing.T) {
	user := &models.User{
		ID:           uuid.New(),
		Email:        "s@example.com",
		PasswordHash: mustHashPassword(t, "right-password"),
		Role:         enums.UserRoleStudent,
	}
	svc, _ := buildTestService(t, &stubUserRepo{user: user})

	_, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: "wrong-password"})
	assertCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestServiceLoginUnknownEmail(t *testing.T) {
	svc, _ := buildTestService(t, &stubUserRepo{})

	_, err := svc.Login(context.Background(), LoginRequest{Email: "ghost@example.com", Password: "whatever1"})
	assertCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestServiceLoginDesiredRoleMismatch(t *testing.T) {
	password := "student-secret"
	user := &models.User{
		ID:           uuid.New(),
		Email:        "s@example.com",
		PasswordHash: mustHashPassword(t, password),
		Role:         enums.UserRoleStudent,
	}
	svc, sessions := buildTestService(t, &stubUserRepo{user: user})

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:       user.Email,
		Password:    password,
		DesiredRole: enums.UserRoleInstructor,
	})
	assertCode(t, err, pkgerrors.CodeForbidden)
	if len(sessions.generated) != 0 {
		t.Fatalf("expected no session on role mismatch")
	}
}

func TestServiceSignupCreatesStudentByDefault(t *testing.T) {
	repo := &stubUserRepo{}
	svc, _ := buildTestService(t, repo)

	resp, err := svc.Signup(context.Background(), SignupRequest{
		FullName: " New Student ",
		Email:    "New@Example.com",
		Password: "long-enough",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if repo.user == nil || repo.user.Email != "new@example.com" {
		t.Fatalf("expected normalized user to be created, got %+v", repo.user)
	}
	if resp.User.Role != enums.UserRoleStudent {
		t.Fatalf("expected student role, got %s", resp.User.Role)
	}
	if resp.AccessToken == nil {
		t.Fatalf("expected auto sign-in token")
	}
}

func TestServiceSignupRejectsAdminRole(t *testing.T) {
	svc, _ := buildTestService(t, &stubUserRepo{})

	_, err := svc.Signup(context.Background(), SignupRequest{
		FullName: "Sneaky",
		Email:    "sneaky@example.com",
		Password: "long-enough",
		Role:     enums.UserRoleAdmin,
	})
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestServiceSignupEmailTaken(t *testing.T) {
	existing := &models.User{ID: uuid.New(), Email: "taken@example.com", Role: enums.UserRoleStudent}
	svc, _ := buildTestService(t, &stubUserRepo{user: existing})

	_, err := svc.Signup(context.Background(), SignupRequest{
		FullName: "Dup",
		Email:    "taken@example.com",
		Password: "long-enough",
	})
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestServiceSignupConcurrentInsertIsConflict(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "ux_users_email"}
	svc, _ := buildTestService(t, &stubUserRepo{createErr: fmt.Errorf("insert user: %w", dup)})

	_, err := svc.Signup(context.Background(), SignupRequest{
		FullName: "Racer",
		Email:    "race@example.com",
		Password: "long-enough",
	})
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestServiceSignupInsertFailureIsInternal(t *testing.T) {
	svc, _ := buildTestService(t, &stubUserRepo{createErr: errors.New("connection reset")})

	_, err := svc.Signup(context.Background(), SignupRequest{
		FullName: "Unlucky",
		Email:    "unlucky@example.com",
		Password: "long-enough",
	})
	assertCode(t, err, pkgerrors.CodeInternal)
}

func TestServiceSignupReturnsNullTokenWhenSessionFails(t *testing.T) {
	repo := &stubUserRepo{}
	sessions := &stubSessionManager{generateErr: errors.New("redis down")}
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		SessionManager: sessions,
		JWTConfig:      testJWTConfig,
		Logger:         logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	resp, err := svc.Signup(context.Background(), SignupRequest{
		FullName: "Still Created",
		Email:    "created@example.com",
		Password: "long-enough",
	})
	if err != nil {
		t.Fatalf("signup should succeed without token: %v", err)
	}
	if resp.AccessToken != nil {
		t.Fatalf("expected nil access token")
	}
	if resp.User == nil || resp.User.Email != "created@example.com" {
		t.Fatalf("expected created user in response")
	}
}

func TestServiceUpdateRole(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "u@example.com", Role: enums.UserRoleStudent}
	svc, _ := buildTestService(t, &stubUserRepo{user: user})

	dto, err := svc.UpdateRole(context.Background(), user.ID, UpdateRoleRequest{Role: enums.UserRoleInstructor})
	if err != nil {
		t.Fatalf("update role: %v", err)
	}
	if dto.Role != enums.UserRoleInstructor {
		t.Fatalf("expected instructor, got %s", dto.Role)
	}

	_, err = svc.UpdateRole(context.Background(), user.ID, UpdateRoleRequest{Role: "owner"})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.UpdateRole(context.Background(), uuid.New(), UpdateRoleRequest{Role: enums.UserRoleAdmin})
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestServiceLogoutRevokesSession(t *testing.T) {
	svc, sessions := buildTestService(t, &stubUserRepo{})

	if err := svc.Logout(context.Background(), "jti-1"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(sessions.revoked) != 1 || sessions.revoked[0] != "jti-1" {
		t.Fatalf("expected jti-1 revoked, got %v", sessions.revoked)
	}

	err := svc.Logout(context.Background(), " ")
	assertCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestServiceProfileNotFound(t *testing.T) {
	svc, _ := buildTestService(t, &stubUserRepo{})

	_, err := svc.Profile(context.Background(), uuid.New())
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func buildTestService(t *testing.T, repo *stubUserRepo) (Service, *stubSessionManager) {
	t.Helper()
	sessions := &stubSessionManager{}
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		SessionManager: sessions,
		JWTConfig:      testJWTConfig,
		Logger:         logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, sessions
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != code {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}

type stubUserRepo struct {
	user      *models.User
	createErr error
}

func (s *stubUserRepo) Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.user = dto.ToModel()
	s.user.CreatedAt = time.Now().UTC()
	return s.user, nil
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s *stubUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s *stubUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s.user != nil && s.user.ID == id {
		s.user.LastLoginAt = &at
	}
	return nil
}

func (s *stubUserRepo) UpdateRole(ctx context.Context, id uuid.UUID, role enums.UserRole) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	s.user.Role = role
	return s.user, nil
}

type stubSessionManager struct {
	generated   map[string]uuid.UUID
	revoked     []string
	generateErr error
}

func (s *stubSessionManager) Generate(ctx context.Context, accessID string, userID uuid.UUID) error {
	if s.generateErr != nil {
		return s.generateErr
	}
	if s.generated == nil {
		s.generated = map[string]uuid.UUID{}
	}
	s.generated[accessID] = userID
	return nil
}

func (s *stubSessionManager) Revoke(ctx context.Context, accessID string) error {
	s.revoked = append(s.revoked, accessID)
	return nil
}
