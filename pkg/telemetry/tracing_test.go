package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestTracerProvider_ExportsSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var buf bytes.Buffer
	tp, err := NewTracerProvider("deckfeed-test", "v0", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "deck.fetch")
	span.End()

	require.NoError(t, tp.ForceFlush(context.Background()))
	require.NoError(t, tp.Shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "deck.fetch")
	assert.Contains(t, out, "deckfeed-test")
}
