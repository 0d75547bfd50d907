package events

import "context"

// Actor identifies who triggered a change. HTTP handlers attach it to the
// request context; CLI and system operations leave it unset.
type Actor struct {
	Type      string
	ID        string
	IPAddress string
	UserAgent string
}

type actorKey struct{}

func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns nil when no actor is attached.
func ActorFrom(ctx context.Context) *Actor {
	a, ok := ctx.Value(actorKey{}).(*Actor)
	if !ok {
		return nil
	}
	return a
}
