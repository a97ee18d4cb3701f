package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntegrationType(t *testing.T) {
	for _, it := range IntegrationTypes {
		got, err := ParseIntegrationType(string(it))
		require.NoError(t, err)
		assert.Equal(t, it, got)
	}

	_, err := ParseIntegrationType("fax_gateway")
	assert.Error(t, err)
}

func TestConfigurationStatusFinalized(t *testing.T) {
	assert.False(t, StatusNotStarted.Finalized())
	assert.False(t, StatusCollectingInfo.Finalized())
	assert.True(t, StatusInProgress.Finalized())
	assert.True(t, StatusCompleted.Finalized())
	assert.True(t, StatusFailed.Finalized())

	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestProviderResultPayload(t *testing.T) {
	ok := Succeeded(map[string]any{"bucket_name": "shop-production-storage"}, SecretOutput{Value: "hidden"})
	p := ok.Payload()
	assert.Equal(t, true, p["success"])
	assert.Equal(t, "shop-production-storage", p["bucket_name"])
	assert.NotContains(t, p, "hidden")

	failed := Failed("Access Denied", "AccessDenied").Payload()
	assert.Equal(t, map[string]any{
		"success":    false,
		"error":      "Access Denied",
		"error_code": "AccessDenied",
	}, failed)
}
