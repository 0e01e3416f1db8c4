package auth

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artspire/internal/config"
	"artspire/internal/constants"
	pkgerrors "artspire/pkg/errors"
)

func TestTokens_IssueAndVerify(t *testing.T) {
	now := time.Now()
	tokens := testTokens(t, now)
	img := "profiles/7/a.jpg"
	user := &User{ID: 7, Username: "sugar", Email: "sugar@example.com", ProfileImage: &img}

	raw, err := tokens.Issue(constants.AccessTokenType, user)
	require.NoError(t, err)

	claims, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "access", claims["type"])
	assert.Equal(t, float64(7), claims["sub"])
	assert.Equal(t, "sugar", claims["username"])
	assert.Equal(t, img, claims["profile_image"])
	assert.Equal(t, float64(now.Add(5*time.Minute).Unix()), claims["exp"])

	id, ok := Subject(claims)
	assert.True(t, ok)
	assert.Equal(t, 7, id)
}

func TestTokens_RefreshUsesLongTTL(t *testing.T) {
	now := time.Now()
	tokens := testTokens(t, now)

	raw, err := tokens.Issue(constants.RefreshTokenType, &User{ID: 1, Username: "a"})
	require.NoError(t, err)

	claims, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, float64(now.Add(30*24*time.Hour).Unix()), claims["exp"])
}

func TestTokens_VerifyRejects(t *testing.T) {
	issuedAt := time.Now().Add(-time.Hour)
	expired, err := testTokens(t, issuedAt).Issue(constants.AccessTokenType, &User{ID: 1})
	require.NoError(t, err)

	verifier := testTokens(t, time.Now())

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"garbage", "not-a-token"},
		{"empty", ""},
		{"unsigned", "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOjF9."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			assert.True(t, pkgerrors.IsUnauthorized(err))
		})
	}
}

func TestLoadTokens(t *testing.T) {
	key := rsaKey(t)
	dir := t.TempDir()

	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	privDER := x509.MarshalPKCS1PrivateKey(key)
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: privDER}), 0o600))
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o600))

	signer, err := LoadTokens(config.JWTConfig{PrivateKeyPath: privPath, PublicKeyPath: pubPath})
	require.NoError(t, err)
	raw, err := signer.Issue(constants.AccessTokenType, &User{ID: 3})
	require.NoError(t, err)

	verifyOnly, err := LoadTokens(config.JWTConfig{PublicKeyPath: pubPath})
	require.NoError(t, err)
	_, err = verifyOnly.Verify(raw)
	require.NoError(t, err)

	_, err = verifyOnly.Issue(constants.AccessTokenType, &User{ID: 3})
	assert.Error(t, err)

	_, err = LoadTokens(config.JWTConfig{})
	assert.Error(t, err)
}
