package logging

import (
	"context"
)

type ctxKey string

const (
	TraceIDKey     = "trace_id"
	CycleIDKey     = "cycle_id"
	ClientIDKey    = "client_id"
	ServiceNameKey = "service_name"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey(TraceIDKey), traceID)
}

// WithCycleID tags a context with the id of the poll cycle it runs in.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, ctxKey(CycleIDKey), cycleID)
}

func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, ctxKey(ClientIDKey), clientID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ctxKey(ServiceNameKey), serviceName)
}

func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

func GetCycleID(ctx context.Context) string {
	return stringValue(ctx, CycleIDKey)
}

func GetClientID(ctx context.Context) string {
	return stringValue(ctx, ClientIDKey)
}

func GetServiceName(ctx context.Context) string {
	return stringValue(ctx, ServiceNameKey)
}

func stringValue(ctx context.Context, key string) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey(key)).(string); ok {
		return v
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	for _, key := range []string{TraceIDKey, CycleIDKey, ClientIDKey, ServiceNameKey} {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, key, v)
		}
	}

	return fields
}
