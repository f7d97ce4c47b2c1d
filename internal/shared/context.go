package shared

import "context"

// SystemActor is recorded when no operator is attached to the request.
const SystemActor = "system"

type actorContextKey struct{}

// ContextWithActor stores the operator name in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, NormalizeName(actor))
}

// ActorFromContext extracts the operator name, falling back to SystemActor.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	if actor == "" {
		return SystemActor
	}
	return actor
}
