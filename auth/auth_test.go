package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginAndValidate(t *testing.T) {
	a := NewAuthModule("s3cret", "key-1", time.Hour)

	_, err := a.LoginWithAPIKey("ops", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, err := a.LoginWithAPIKey("ops", "key-1")
	require.NoError(t, err)

	sub, err := a.ValidateTokenJWT("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "ops", sub)

	sub, err = a.ValidateTokenJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", sub)
}

func TestValidateRejectsExpiredAndForeignTokens(t *testing.T) {
	a := NewAuthModule("s3cret", "key-1", time.Minute)
	token, err := a.LoginWithAPIKey("", "key-1")
	require.NoError(t, err)

	a.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = a.ValidateTokenJWT(token)
	assert.Error(t, err)

	other := NewAuthModule("different", "key-1", time.Hour)
	foreign, err := other.LoginWithAPIKey("ops", "key-1")
	require.NoError(t, err)
	_, err = NewAuthModule("s3cret", "", time.Hour).ValidateTokenJWT(foreign)
	assert.Error(t, err)
}

func TestValidateRequiresSubject(t *testing.T) {
	a := NewAuthModule("s3cret", "", time.Hour)
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	token, err := raw.SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = a.ValidateTokenJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginDisabledWithoutAPIKey(t *testing.T) {
	a := NewAuthModule("s3cret", "", 0)
	_, err := a.LoginWithAPIKey("ops", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.True(t, a.Enabled())
	assert.False(t, NewAuthModule("", "", 0).Enabled())
}
