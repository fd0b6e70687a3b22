package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDisabledProvider(t *testing.T) {
	p := Disabled()
	assert.False(t, p.Enabled())

	ctx, span := p.Start(context.Background(), "noop")
	span.End()
	assert.Nil(t, Fields(ctx))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	p, err := InitWith(&buf, "tradelab-test", "0.0.1")
	require.NoError(t, err)
	require.True(t, p.Enabled())

	ctx, span := p.Start(context.Background(), "prepare")
	span.SetAttributes(attribute.Int("rows", 10))
	fields := Fields(ctx)
	span.End()

	require.Len(t, fields, 4)
	assert.Equal(t, "trace_id", fields[0])

	require.NoError(t, p.Shutdown(context.Background()))
	out := buf.String()
	assert.True(t, strings.Contains(out, `"Name":"prepare"`), out)
	assert.Contains(t, out, "tradelab-test")
}
