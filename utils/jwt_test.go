package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPITokenRoundTrip(t *testing.T) {
	token, err := GenerateAPIToken("s3cret", "n8n", time.Hour)
	require.NoError(t, err)

	claims, err := ParseAPIToken("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, "n8n", claims.Subject)
	assert.Equal(t, "leadpilot", claims.Issuer)
}

func TestParseAPITokenRejects(t *testing.T) {
	token, err := GenerateAPIToken("s3cret", "n8n", time.Hour)
	require.NoError(t, err)

	_, err = ParseAPIToken("other", token)
	assert.Error(t, err)

	expired, err := GenerateAPIToken("s3cret", "n8n", -time.Minute)
	require.NoError(t, err)
	_, err = ParseAPIToken("s3cret", expired)
	assert.Error(t, err)

	_, err = ParseAPIToken("s3cret", "not-a-token")
	assert.Error(t, err)
}

func TestAPITokenNeedsSecret(t *testing.T) {
	_, err := GenerateAPIToken("", "n8n", time.Hour)
	assert.ErrorIs(t, err, ErrAuthDisabled)
	_, err = ParseAPIToken("", "x")
	assert.ErrorIs(t, err, ErrAuthDisabled)
}

func TestRandomDurationBounds(t *testing.T) {
	assert.Equal(t, 2*time.Second, RandomDuration(2*time.Second, 2*time.Second))
	assert.Equal(t, 3*time.Second, RandomDuration(3*time.Second, time.Second))
	for i := 0; i < 50; i++ {
		d := RandomDuration(time.Second, 2*time.Second)
		assert.True(t, d >= time.Second && d <= 2*time.Second)
	}
}
