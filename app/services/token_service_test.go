// Package services provides external service integrations and technical concerns like notifications and tokens
package services

import (
	"testing"
	"time"

	"github.com/amirphl/Hachiko/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestTokenService creates a token service for testing with symmetric key
func createTestTokenService(ttl time.Duration) (TokenService, error) {
	return NewTokenService(
		ttl,
		"hachiko",
		utils.UnsubscribeAudience,
		false, // useRSAKeys
		"",    // privateKeyPEM
		"",    // publicKeyPEM
		"test-secret-key-for-jwt-signing-32-chars", // secretKey
	)
}

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name        string
		useRSAKeys  bool
		secretKey   string
		expectError bool
	}{
		{
			name:      "valid symmetric key configuration",
			secretKey: "test-secret-key-for-jwt-signing-32-chars",
		},
		{
			name:        "missing secret key",
			secretKey:   "",
			expectError: true,
		},
		{
			name:        "rsa without key material",
			useRSAKeys:  true,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewTokenService(
				30*24*time.Hour,
				"hachiko",
				utils.UnsubscribeAudience,
				tt.useRSAKeys,
				"",
				"",
				tt.secretKey,
			)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, service)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, service)
			}
		})
	}
}

func TestUnsubscribeTokenRoundTrip(t *testing.T) {
	service, err := createTestTokenService(30 * 24 * time.Hour)
	require.NoError(t, err)

	token, err := service.GenerateUnsubscribeToken(42, "reader@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.ValidateUnsubscribeToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.SubscriptionID)
	assert.Equal(t, "reader@example.com", claims.Recipient)
	assert.NotEmpty(t, claims.TokenID)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))
}

func TestUnsubscribeTokenUniqueIDs(t *testing.T) {
	service, err := createTestTokenService(30 * 24 * time.Hour)
	require.NoError(t, err)

	first, err := service.GenerateUnsubscribeToken(1, "reader@example.com")
	require.NoError(t, err)
	second, err := service.GenerateUnsubscribeToken(1, "reader@example.com")
	require.NoError(t, err)

	// jti differs every issue, so identical pairs still yield distinct tokens
	assert.NotEqual(t, first, second)
}

func TestValidateUnsubscribeTokenExpired(t *testing.T) {
	service, err := createTestTokenService(-time.Hour)
	require.NoError(t, err)

	token, err := service.GenerateUnsubscribeToken(7, "reader@example.com")
	require.NoError(t, err)

	_, err = service.ValidateUnsubscribeToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateUnsubscribeTokenGarbage(t *testing.T) {
	service, err := createTestTokenService(time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "not a jwt", token: "not-a-token"},
		{name: "truncated jwt", token: "eyJhbGciOiJIUzI1NiJ9.eyJmb28iOiJiYXIifQ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ValidateUnsubscribeToken(tt.token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}
}

func TestValidateUnsubscribeTokenWrongKey(t *testing.T) {
	signer, err := createTestTokenService(time.Hour)
	require.NoError(t, err)

	verifier, err := NewTokenService(
		time.Hour,
		"hachiko",
		utils.UnsubscribeAudience,
		false,
		"",
		"",
		"a-completely-different-secret-key-32-chars",
	)
	require.NoError(t, err)

	token, err := signer.GenerateUnsubscribeToken(9, "reader@example.com")
	require.NoError(t, err)

	_, err = verifier.ValidateUnsubscribeToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateUnsubscribeTokenWrongAudience(t *testing.T) {
	signer, err := NewTokenService(
		time.Hour,
		"hachiko",
		"some/other/audience",
		false,
		"",
		"",
		"test-secret-key-for-jwt-signing-32-chars",
	)
	require.NoError(t, err)

	verifier, err := createTestTokenService(time.Hour)
	require.NoError(t, err)

	token, err := signer.GenerateUnsubscribeToken(9, "reader@example.com")
	require.NoError(t, err)

	_, err = verifier.ValidateUnsubscribeToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
