package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	bearerPrefix          = "Bearer "
	accessTokenQueryParam = "access_token"
)

var (
	ErrMissingTokenValidator = errors.New("session validator: token validator required")
	ErrMissingSessionToken   = errors.New("session validator: token required")
	ErrInvalidSessionToken   = errors.New("session validator: invalid token")
	ErrExpiredSessionToken   = errors.New("session validator: token expired")
	ErrRevokedSessionToken   = errors.New("session validator: token revoked")
)

// TokenValidator parses and verifies a raw session token.
type TokenValidator interface {
	ValidateToken(token string) (SessionClaims, error)
}

// RevocationChecker reports whether a token id was revoked by sign-out.
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// SessionValidatorConfig describes how requests carry session tokens.
type SessionValidatorConfig struct {
	Tokens     TokenValidator
	Revocation RevocationChecker
	CookieName string
}

// SessionValidator resolves the session behind an HTTP request.
type SessionValidator struct {
	tokens     TokenValidator
	revocation RevocationChecker
	cookieName string
}

// NewSessionValidator constructs a validator with the provided configuration.
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if cfg.Tokens == nil {
		return nil, ErrMissingTokenValidator
	}
	return &SessionValidator{
		tokens:     cfg.Tokens,
		revocation: cfg.Revocation,
		cookieName: strings.TrimSpace(cfg.CookieName),
	}, nil
}

// ValidateToken validates a raw token string and applies the revocation check.
func (v *SessionValidator) ValidateToken(ctx context.Context, tokenString string) (SessionClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}
	claims, err := v.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, fmt.Errorf("%w: %w", ErrExpiredSessionToken, err)
		}
		return SessionClaims{}, fmt.Errorf("%w: %w", ErrInvalidSessionToken, err)
	}
	if v.revocation != nil && claims.TokenID != "" {
		revoked, err := v.revocation.IsTokenRevoked(ctx, claims.TokenID)
		if err != nil {
			return SessionClaims{}, err
		}
		if revoked {
			return SessionClaims{}, ErrRevokedSessionToken
		}
	}
	return claims, nil
}

// ValidateRequest extracts a token from the Authorization header, the access_token
// query parameter (used by event streams) or the configured cookie.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	if r == nil {
		return SessionClaims{}, ErrMissingSessionToken
	}
	return v.ValidateToken(r.Context(), v.extractToken(r))
}

func (v *SessionValidator) extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if len(header) >= len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			return strings.TrimSpace(header[len(bearerPrefix):])
		}
		return ""
	}
	if token := r.URL.Query().Get(accessTokenQueryParam); token != "" {
		return token
	}
	if v.cookieName != "" {
		if cookie, err := r.Cookie(v.cookieName); err == nil && cookie != nil {
			return cookie.Value
		}
	}
	return ""
}
