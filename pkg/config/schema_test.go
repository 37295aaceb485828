package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok, "schema has no properties")
	for _, key := range []string{"server", "logger", "generator", "rate_limiting", "databases", "observability"} {
		assert.Contains(t, props, key)
	}
}
