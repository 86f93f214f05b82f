package processor

import (
	"context"
	"errors"

	"charity-server/internal/observability"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidJWTToken = errors.New("invalid jwt token")
	ErrParseJWTToken   = errors.New("failed to parse jwt token")
	ErrExpiredToken    = errors.New("token expired")
	ErrInvalidSubject  = errors.New("token subject is not a user id")
)

// Roles carried in the role claim
const (
	RoleDonor = "donor"
	RoleAdmin = "admin"
)

// AuthConfig holds the shared secret of the identity service that issues tokens. Issuer and
// Audience are checked when set.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

// AuthProcessor verifies bearer tokens. Tokens are issued elsewhere.
type AuthProcessor struct {
	authConfig AuthConfig
	logger     *observability.Logger
}

func New(authConfig AuthConfig, logger *observability.Logger) AuthProcessor {
	return AuthProcessor{authConfig: authConfig, logger: logger}
}

type BaseClaims struct {
	ExpirationTime *jwt.NumericDate `json:"exp"`
	IssuedAt       *jwt.NumericDate `json:"iat"`
	NotBefore      *jwt.NumericDate `json:"nbf"`
	Issuer         string           `json:"iss"`
	Subject        string           `json:"sub"`
	Audience       jwt.ClaimStrings `json:"aud"`
	Role           string           `json:"role"`
	Email          string           `json:"email,omitempty"`
}

// Identity is the authenticated caller.
type Identity struct {
	UserID uuid.UUID
	Role   string
	Email  string
}

// IsAdmin reports whether the caller may use administrative endpoints.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Authenticate validates token and returns who it was issued to. A missing role means donor.
func (p *AuthProcessor) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := p.ValidateJWTToken(ctx, token)
	if err != nil {
		return Identity{}, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		p.logger.Error(ctx, "failed to parse token subject", err)
		return Identity{}, ErrInvalidSubject
	}

	role := claims.Role
	if role == "" {
		role = RoleDonor
	}
	return Identity{UserID: userID, Role: role, Email: claims.Email}, nil
}
