package context

import "context"

type requestIDKey struct{}

// WithRequestID stores the request/trace id used to correlate log lines,
// audit entries and outbox rows produced by one inbound request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func GetRequestID(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey{}).(string); ok {
		return s
	}
	return ""
}
