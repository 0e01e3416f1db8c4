package auth

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"artspire/internal/config"
	"artspire/internal/constants"
	pkgerrors "artspire/pkg/errors"
)

// Tokens signs and verifies RS256 tokens carrying the user's profile.
type Tokens struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type TokensOption func(*Tokens)

func WithClock(now func() time.Time) TokensOption {
	return func(t *Tokens) {
		t.now = now
	}
}

func NewTokens(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, accessTTL, refreshTTL time.Duration, opts ...TokensOption) *Tokens {
	if publicKey == nil && privateKey != nil {
		publicKey = &privateKey.PublicKey
	}
	if accessTTL <= 0 {
		accessTTL = constants.DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = constants.DefaultRefreshTTL
	}

	t := &Tokens{
		privateKey: privateKey,
		publicKey:  publicKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LoadTokens reads PEM keys from the configured paths. A missing private key
// path yields a verify-only instance.
func LoadTokens(cfg config.JWTConfig) (*Tokens, error) {
	var (
		privateKey *rsa.PrivateKey
		publicKey  *rsa.PublicKey
	)

	if cfg.PrivateKeyPath != "" {
		data, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		privateKey, err = jwt.ParseRSAPrivateKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
	}

	if cfg.PublicKeyPath != "" {
		data, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}
		publicKey, err = jwt.ParseRSAPublicKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
	}

	if privateKey == nil && publicKey == nil {
		return nil, fmt.Errorf("jwt: no key configured")
	}

	return NewTokens(privateKey, publicKey, cfg.AccessTTL, cfg.RefreshTTL), nil
}

// Issue signs a token of the given type for user.
func (t *Tokens) Issue(tokenType string, user *User) (string, error) {
	if t.privateKey == nil {
		return "", fmt.Errorf("jwt: signing key not configured")
	}

	ttl := t.accessTTL
	if tokenType == constants.RefreshTokenType {
		ttl = t.refreshTTL
	}

	now := t.now()
	claims := jwt.MapClaims{
		"type":          tokenType,
		"sub":           user.ID,
		"username":      user.Username,
		"email":         user.Email,
		"profile_image": user.ProfileImage,
		"iat":           now.Unix(),
		"exp":           now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(t.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the decoded claims.
func (t *Tokens) Verify(raw string) (map[string]interface{}, error) {
	if t.publicKey == nil {
		return nil, fmt.Errorf("jwt: verification key not configured")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return t.publicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, pkgerrors.ErrUnauthorized.WithCause(err)
	}
	return claims, nil
}

// Subject extracts the numeric user id from decoded claims.
func Subject(claims map[string]interface{}) (int, bool) {
	switch v := claims["sub"].(type) {
	case float64:
		return int(v), v == float64(int(v))
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}
