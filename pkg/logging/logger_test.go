package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j***@example.com", MaskEmail("jane.doe@example.com"))
	assert.Equal(t, "***", MaskEmail("short"))
	assert.Equal(t, "@no***cal", MaskEmail("@nolocal"))
}

func TestMaskSessionKey(t *testing.T) {
	assert.Equal(t, "abc***xyz", MaskSessionKey("abcdefghxyz"))
	assert.Equal(t, "***", MaskSessionKey("abc"))
}

func TestLoggerAddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LevelDebug)

	ctx := ContextWithCorrelationID(context.Background(), "corr-1")
	logger.LogIdentityEvent(ctx, "explicit", "jane@example.com", true)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "corr-1", record["correlation_id"])
	assert.Equal(t, "j***@example.com", record["email"])
	assert.Equal(t, "identity event", record["msg"])
}

func TestWithCorrelationIDKeepsExisting(t *testing.T) {
	ctx := WithCorrelationID(context.Background())
	id := GetCorrelationID(ctx)
	require.NotEmpty(t, id)
	assert.Equal(t, id, GetCorrelationID(WithCorrelationID(ctx)))
}
