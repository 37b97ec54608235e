package httpapi

import (
	"context"

	"github.com/tokengate/tokengate/internal/domain/identity"
)

type authContextKey string

const actorKey authContextKey = "actor"

// Actor is the sender of an admin command. The zero actor is the console.
type Actor struct {
	Identity identity.Identity
}

func (a Actor) IsConsole() bool {
	return a.Identity.IsZero()
}

func (a Actor) String() string {
	if a.IsConsole() {
		return "console"
	}
	return a.Identity.String()
}

func withActor(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, actorKey, Actor{Identity: id})
}

func actorFromContext(ctx context.Context) Actor {
	if v, ok := ctx.Value(actorKey).(Actor); ok {
		return v
	}
	return Actor{}
}
