package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kenkyu/internal/auth"
)

func TestHashAndVerifyAPIKey(t *testing.T) {
	hash, err := auth.HashAPIKey("test-key-123")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	valid, err := auth.VerifyAPIKey("test-key-123", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = auth.VerifyAPIKey("wrong-key", hash)
	require.NoError(t, err)
	assert.False(t, valid)

	_, err = auth.VerifyAPIKey("x", "no-separator")
	assert.Error(t, err)
}

func TestVerifyAPIKey_StoredCostIsHonoured(t *testing.T) {
	hash, err := auth.HashAPIKey("k")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "argon2id$1$65536$4$"))
	assert.NotContains(t, hash, ":")
	assert.NotContains(t, hash, ",")

	// Changing the recorded cost derives a different key.
	tampered := strings.Replace(hash, "argon2id$1$", "argon2id$2$", 1)
	valid, err := auth.VerifyAPIKey("k", tampered)
	require.NoError(t, err)
	assert.False(t, valid)

	for _, bad := range []string{
		"bcrypt$1$65536$4$c2FsdA$a2V5",
		"argon2id$0$65536$4$c2FsdA$a2V5",
		"argon2id$1$65536$0$c2FsdA$a2V5",
		"argon2id$1$65536$4$!!$a2V5",
		"argon2id$1$65536$4$c2FsdA$",
	} {
		_, err := auth.VerifyAPIKey("k", bad)
		assert.Error(t, err, bad)
	}
}

func TestClients(t *testing.T) {
	hash, err := auth.HashAPIKey("s3cret")
	require.NoError(t, err)

	clients, err := auth.ParseClients(" lab-a:" + hash + " ,")
	require.NoError(t, err)
	assert.True(t, clients.Authenticate("lab-a", "s3cret"))
	assert.False(t, clients.Authenticate("lab-a", "wrong"))
	assert.False(t, clients.Authenticate("lab-b", "s3cret"))

	_, err = auth.ParseClients("no-hash")
	assert.Error(t, err)
	_, err = auth.ParseClients("lab-a:plaintext-key")
	assert.Error(t, err)
	_, err = auth.ParseClients("a:" + hash + ",a:" + hash)
	assert.Error(t, err)

	empty, err := auth.ParseClients("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestJWTIssueAndValidate(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := mgr.IssueToken("lab-a")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "lab-a", claims.ClientID())

	_, _, err = mgr.IssueToken("")
	assert.Error(t, err)
}

func TestValidateToken_OtherKeyRejected(t *testing.T) {
	a, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	b, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := a.IssueToken("lab-a")
	require.NoError(t, err)
	_, err = b.ValidateToken(token)
	assert.Error(t, err)
}

// newTestJWTManagerWithKey creates a JWTManager backed by a real Ed25519 key pair
// written to temp PEM files, and returns the raw private key for forging tokens.
func newTestJWTManagerWithKey(t *testing.T) (*auth.JWTManager, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	dir := t.TempDir()

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	privPath := filepath.Join(dir, "priv.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}), 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pubPath := filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}), 0600))

	mgr, err := auth.NewJWTManager(privPath, pubPath, time.Hour)
	require.NoError(t, err)
	return mgr, priv
}

func forgeToken(t *testing.T, privKey ed25519.PrivateKey, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, &auth.Claims{RegisteredClaims: claims}).SignedString(privKey)
	require.NoError(t, err)
	return signed
}

func TestValidateToken_ForgedClaims(t *testing.T) {
	mgr, priv := newTestJWTManagerWithKey(t)
	now := time.Now().UTC()
	valid := jwt.RegisteredClaims{
		Subject:   "lab-a",
		Issuer:    "kenkyu",
		Audience:  jwt.ClaimStrings{"kenkyu"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	claims, err := mgr.ValidateToken(forgeToken(t, priv, valid))
	require.NoError(t, err)
	assert.Equal(t, "lab-a", claims.ClientID())

	tests := []struct {
		name   string
		mutate func(c *jwt.RegisteredClaims)
	}{
		{"wrong issuer", func(c *jwt.RegisteredClaims) { c.Issuer = "someone-else" }},
		{"wrong audience", func(c *jwt.RegisteredClaims) { c.Audience = jwt.ClaimStrings{"other"} }},
		{"expired", func(c *jwt.RegisteredClaims) { c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute)) }},
		{"no expiry", func(c *jwt.RegisteredClaims) { c.ExpiresAt = nil }},
		{"empty subject", func(c *jwt.RegisteredClaims) { c.Subject = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			_, err := mgr.ValidateToken(forgeToken(t, priv, c))
			assert.Error(t, err)
		})
	}
}

func TestNewJWTManager_MismatchedKeys(t *testing.T) {
	dir := t.TempDir()
	_, privA, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pubB, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	privBytes, err := x509.MarshalPKCS8PrivateKey(privA)
	require.NoError(t, err)
	pubBytes, err := x509.MarshalPKIXPublicKey(pubB)
	require.NoError(t, err)
	privPath := filepath.Join(dir, "priv.pem")
	pubPath := filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}), 0600))
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}), 0600))

	_, err = auth.NewJWTManager(privPath, pubPath, time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}
