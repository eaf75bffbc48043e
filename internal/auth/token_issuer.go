package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingIssuer        = errors.New("issuer must be provided")
	errMissingAudience      = errors.New("audience must be provided")
	errNonPositiveTTL       = errors.New("token ttl must be positive")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")
)

// TokenIssuerConfig configures the session JWT issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// Subject identifies the account a session token is minted for.
type Subject struct {
	UserID string
	Email  string
}

// IssuedToken is a freshly signed session token.
type IssuedToken struct {
	AccessToken string
	TokenID     string
	ExpiresAt   time.Time
	ExpiresIn   int64
}

// SessionClaims are the validated contents of a session token.
type SessionClaims struct {
	UserID    string
	Email     string
	TokenID   string
	ExpiresAt time.Time
}

type sessionTokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer issues and validates HS256 session tokens.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	audience      string
	ttl           time.Duration
	clock         func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer after validating configuration.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errMissingIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, errMissingAudience
	}
	if cfg.TokenTTL <= 0 {
		return nil, errNonPositiveTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		audience:      audience,
		ttl:           cfg.TokenTTL,
		clock:         clock,
	}, nil
}

// IssueSessionToken produces a signed JWT carrying a unique token id for revocation.
func (i *TokenIssuer) IssueSessionToken(_ context.Context, subject Subject) (IssuedToken, error) {
	if strings.TrimSpace(subject.UserID) == "" {
		return IssuedToken{}, errMissingSubjectClaim
	}

	tokenID, err := uuid.NewV7()
	if err != nil {
		return IssuedToken{}, err
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl).UTC()

	claims := sessionTokenClaims{
		Email: subject.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID.String(),
			Subject:   subject.UserID,
			Issuer:    i.issuer,
			Audience:  []string{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return IssuedToken{}, err
	}

	return IssuedToken{
		AccessToken: signed,
		TokenID:     tokenID.String(),
		ExpiresAt:   expiresAt,
		ExpiresIn:   int64(expiresAt.Sub(now).Seconds()),
	}, nil
}

// ValidateToken ensures the session JWT is well formed and returns its claims.
func (i *TokenIssuer) ValidateToken(tokenString string) (SessionClaims, error) {
	claims := &sessionTokenClaims{}
	_, err := jwt.ParseWithClaims(
		strings.TrimSpace(tokenString),
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithAudience(i.audience),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return SessionClaims{}, err
	}
	if claims.Subject == "" {
		return SessionClaims{}, errMissingSubjectClaim
	}

	expiresAt := time.Time{}
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return SessionClaims{
		UserID:    claims.Subject,
		Email:     claims.Email,
		TokenID:   claims.ID,
		ExpiresAt: expiresAt,
	}, nil
}
