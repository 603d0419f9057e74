package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/arun-store/internal/config"
)

func newManager() *TokenManager {
	return NewTokenManager(config.AuthConfig{
		JWTSecret: "test-secret",
		Issuer:    "arun-store",
		TokenTTL:  time.Hour,
	})
}

func TestIssueAndParse(t *testing.T) {
	m := newManager()

	raw, err := m.Issue(42, true)
	require.NoError(t, err)

	claims, err := m.Parse(raw)
	require.NoError(t, err)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.True(t, claims.Staff)
}

func TestParseRejectsExpired(t *testing.T) {
	m := newManager()
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	raw, err := m.Issue(1, false)
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsWrongSecretAndIssuer(t *testing.T) {
	m := newManager()

	other := NewTokenManager(config.AuthConfig{JWTSecret: "other", Issuer: "arun-store", TokenTTL: time.Hour})
	raw, err := other.Issue(1, false)
	require.NoError(t, err)
	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign := NewTokenManager(config.AuthConfig{JWTSecret: "test-secret", Issuer: "someone-else", TokenTTL: time.Hour})
	raw, err = foreign.Issue(1, false)
	require.NoError(t, err)
	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsNoneAlgorithm(t *testing.T) {
	m := newManager()

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "1",
		Issuer:    "arun-store",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsBadSubject(t *testing.T) {
	m := newManager()

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "abc",
		Issuer:    "arun-store",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
