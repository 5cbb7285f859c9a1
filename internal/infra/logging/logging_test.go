//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWith_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "tr-1")
	ctx = WithUserID(ctx, "42")
	ctx = WithInvoiceID(ctx, 1001)

	With(ctx, &base).Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tr-1", line["trace_id"])
	assert.Equal(t, "42", line["user_id"])
	assert.EqualValues(t, 1001, line["invoice_id"])
	assert.NotContains(t, line, "tg_id")
	assert.Equal(t, "tr-1", TraceID(ctx))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "***", Redact("secret", false))
	assert.Equal(t, "abcd...yz", Redact("abcdefghijklmnopqrstuvwxyz", false))
	assert.Equal(t, "secret", Redact("secret", true))
}
