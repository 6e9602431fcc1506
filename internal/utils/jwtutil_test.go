package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens, err := NewTokens("test-secret", time.Hour)
	require.NoError(t, err)

	id := uuid.New()
	raw, exp, err := tokens.GenerateToken(id, "rep@tsmroofpro.com", "sales_rep")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := tokens.ParseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, "sales_rep", claims.Role)
	assert.Equal(t, id.String(), claims.Subject)
}

func TestParseTokenRejectsOtherSecretAndExpiry(t *testing.T) {
	issuer, _ := NewTokens("secret-a", time.Hour)
	verifier, _ := NewTokens("secret-b", time.Hour)

	raw, _, err := issuer.GenerateToken(uuid.New(), "a@b.c", "office")
	require.NoError(t, err)
	_, err = verifier.ParseToken(raw)
	assert.Error(t, err)

	expired := &Claims{
		UserID:           uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	}
	stale, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expired).SignedString([]byte("secret-a"))
	require.NoError(t, err)
	_, err = issuer.ParseToken(stale)
	assert.Error(t, err)
}

func TestNewTokensRequiresSecret(t *testing.T) {
	_, err := NewTokens("", time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)
}
