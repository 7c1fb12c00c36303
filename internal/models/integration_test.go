package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrationStatusMarshalJSON(t *testing.T) {
	lastSync := time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)
	status := IntegrationStatus{
		Connected:   true,
		Name:        "Slack",
		Type:        "chat",
		LastSync:    lastSync,
		ErrorCount:  2,
		SuccessRate: 0.8,
		Metadata:    map[string]interface{}{"defaultChannel": "#general"},
	}

	raw, err := json.Marshal(status)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, true, decoded["connected"])
	assert.Equal(t, "Slack", decoded["name"])
	assert.Equal(t, "2026-03-14T09:26:53Z", decoded["lastSync"])
	assert.Equal(t, float64(2), decoded["errorCount"])
	assert.Equal(t, 0.8, decoded["successRate"])
}

func TestIntegrationStatusMarshalZeroTimes(t *testing.T) {
	raw, err := json.Marshal(IntegrationStatus{Name: "Email", Type: "email"})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	// Zero timestamps still render as valid RFC3339 strings.
	_, parseErr := time.Parse(time.RFC3339, decoded["lastError"].(string))
	assert.NoError(t, parseErr)
}
