package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetRequestID(ctx))

	trace := NewTraceContext()
	assert.NotEmpty(t, trace.TraceID)
	assert.Len(t, trace.SpanID, 16)
	assert.NotEqual(t, trace.TraceID, trace.RequestID)

	ctx = WithTrace(ctx, trace)
	assert.Equal(t, trace.TraceID, GetTraceID(ctx))
	assert.Equal(t, trace.RequestID, GetRequestID(ctx))
}
