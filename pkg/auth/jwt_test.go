package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	token, err := m.GenerateToken("manager-1", "manager")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "manager-1", claims.Subject)
	assert.Equal(t, "manager", claims.Role)
}

func TestValidateRejects(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	other := NewJWTManager("other", time.Hour)
	expired := NewJWTManager("secret", -time.Minute)

	foreign, err := other.GenerateToken("x", "manager")
	require.NoError(t, err)
	stale, err := expired.GenerateToken("x", "manager")
	require.NoError(t, err)

	for name, token := range map[string]string{"garbage": "not-a-jwt", "foreign": foreign, "expired": stale} {
		t.Run(name, func(t *testing.T) {
			_, err := m.ValidateToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
