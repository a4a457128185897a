package grpcserver

import (
	"context"
)

type ctxKey string

const callerIDKey ctxKey = "kelp.callerID"

// WithCallerID stores the authenticated caller id in context.
func WithCallerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerIDKey, id)
}

// CallerIDFromCtx fetches the caller id from context.
func CallerIDFromCtx(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(callerIDKey).(string)
	return id, ok && id != ""
}
