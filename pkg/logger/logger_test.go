package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContext_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true})

	ctx := ContextWithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", RequestIDFromContext(ctx))
	log.WithContext(ctx).Info("job started")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-42", line["request_id"])
	assert.Equal(t, "job started", line["message"])
}

func TestWithContext_WithoutRequestID(t *testing.T) {
	log := Nop()
	assert.Same(t, log, log.WithContext(context.Background()))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, WarnLevel, ParseLevel("warn"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
	assert.Equal(t, InfoLevel, ParseLevel("loud"))
}
