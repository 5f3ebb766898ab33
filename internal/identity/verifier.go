package identity

import (
	"context"
	"strings"
	"time"

	pkgAuth "github.com/angelmondragon/learnhub-backend/pkg/auth"
	"github.com/angelmondragon/learnhub-backend/pkg/auth/session"
	"github.com/angelmondragon/learnhub-backend/pkg/config"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnhub-backend/pkg/errors"
	"github.com/google/uuid"
)

// Principal is the authenticated caller as asserted by the access token.
type Principal struct {
	ID        uuid.UUID
	Email     string
	Role      enums.UserRole
	SessionID string
}

// Verifier turns an Authorization header into a Principal.
type Verifier struct {
	jwtCfg   config.JWTConfig
	sessions session.AccessSessionChecker
	timeout  time.Duration
}

func NewVerifier(jwtCfg config.JWTConfig, sessions session.AccessSessionChecker, timeout time.Duration) *Verifier {
	return &Verifier{jwtCfg: jwtCfg, sessions: sessions, timeout: timeout}
}

// Verify validates the bearer token and confirms its session is still live.
func (v *Verifier) Verify(ctx context.Context, header string) (Principal, error) {
	token, err := ParseBearer(header)
	if err != nil {
		return Principal{}, err
	}

	claims, err := pkgAuth.ParseAccessToken(v.jwtCfg, token)
	if err != nil {
		return Principal{}, pkgerrors.Wrap(pkgerrors.CodeInvalidCredential, err, "invalid token")
	}
	if claims.ID == "" {
		return Principal{}, pkgerrors.New(pkgerrors.CodeInvalidCredential, "missing session id")
	}

	if v.sessions != nil {
		lookupCtx := ctx
		if v.timeout > 0 {
			var cancel context.CancelFunc
			lookupCtx, cancel = context.WithTimeout(ctx, v.timeout)
			defer cancel()
		}
		ok, err := v.sessions.HasSession(lookupCtx, claims.ID)
		if err != nil {
			return Principal{}, pkgerrors.Upstream(err, "validate session")
		}
		if !ok {
			return Principal{}, pkgerrors.New(pkgerrors.CodeInvalidCredential, "session unavailable")
		}
	}

	return Principal{
		ID:        claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.ID,
	}, nil
}

// ParseBearer extracts the token from "Bearer <token>". The header must split
// on single spaces into exactly two parts.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "malformed authorization header")
	}
	return parts[1], nil
}
