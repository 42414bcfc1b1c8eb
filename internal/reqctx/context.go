package reqctx

import "context"

type ctxKey string

const (
	keyRID   ctxKey = "tm_rid"
	keyActor ctxKey = "tm_actor_uid"
)

// WithRID stores the correlation id used in booking and sweep logs.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, keyRID, rid)
}

// RID returns correlation id if present.
func RID(ctx context.Context) string {
	v, _ := ctx.Value(keyRID).(string)
	return v
}

// WithActorUID stores the authenticated subject for logs.
func WithActorUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, keyActor, uid)
}

func ActorUID(ctx context.Context) string {
	v, _ := ctx.Value(keyActor).(string)
	return v
}
