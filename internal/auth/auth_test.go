package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("secret")
	token, err := svc.GenerateToken("alice")
	require.NoError(t, err)

	userID, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewService("secret")

	other, err := NewService("other").GenerateToken("alice")
	require.NoError(t, err)
	_, err = svc.ValidateToken(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "alice",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noUser := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	signed, err = noUser.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthorize(t *testing.T) {
	svc := NewService("secret")
	token, err := svc.GenerateToken("alice")
	require.NoError(t, err)

	assert.NoError(t, svc.Authorize(token, "alice"))
	assert.ErrorIs(t, svc.Authorize(token, "bob"), ErrPlayerMismatch)
	assert.ErrorIs(t, svc.Authorize("garbage", "alice"), ErrInvalidToken)

	disabled := NewService("")
	assert.False(t, disabled.Enabled())
	assert.NoError(t, disabled.Authorize("", "anyone"))
}
