package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithCycleID(ctx, "cycle-7")
	ctx = WithServiceName(ctx, "monitor-service")

	fields := GetLogFields(ctx)
	assert.Equal(t, []interface{}{
		"trace_id", "trace-1",
		"cycle_id", "cycle-7",
		"service_name", "monitor-service",
	}, fields)
	assert.Equal(t, "", GetClientID(ctx))
}

func TestContextKeysDoNotCollideWithPlainStrings(t *testing.T) {
	ctx := context.WithValue(context.Background(), TraceIDKey, "plain") //nolint:staticcheck
	assert.Equal(t, "", GetTraceID(ctx))
}
