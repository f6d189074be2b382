package internal

import "context"

// Actor identifies whom a request acts for once its session is resolved.
type Actor struct {
	SessionID string
	UserID    string
}

type actorKey struct{}

func ContextWithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// LogAttrs returns slog key/value pairs for the actor in ctx, or nothing.
func LogAttrs(ctx context.Context) []any {
	a, ok := ActorFromContext(ctx)
	if !ok {
		return nil
	}
	return []any{"session_id", a.SessionID, "user_id", a.UserID}
}
