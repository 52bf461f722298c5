// Package auth carries the acting user through request contexts. The
// surrounding application owns authentication; this package only reads the
// identity and role it supplies.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pvsentinel/narrativecore/internal/domain"
)

type contextKey string

const actorKey contextKey = "actor"

// Actor is the authenticated user on whose behalf a request runs.
type Actor struct {
	ID   string
	Role domain.Role
}

// ContextWithActor returns a new context carrying the actor.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext retrieves the actor from the context, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}

// RequireActor returns the actor or ErrPermissionDenied when the request is
// anonymous.
func RequireActor(ctx context.Context) (Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return Actor{}, fmt.Errorf("%w: actor identity required", domain.ErrPermissionDenied)
	}
	return actor, nil
}

// RequireCapability returns the actor when its role grants the capability
// selected by check.
func RequireCapability(ctx context.Context, check func(domain.Capabilities) bool) (Actor, error) {
	actor, err := RequireActor(ctx)
	if err != nil {
		return Actor{}, err
	}
	if !check(actor.Role.Capabilities()) {
		return Actor{}, fmt.Errorf("%w: role %s lacks required capability", domain.ErrPermissionDenied, actor.Role)
	}
	return actor, nil
}

// Header names supplied by the surrounding application's session layer.
const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
)

// Middleware lifts the actor headers into the request context. Requests
// without the headers pass through anonymous; handlers that need an identity
// reject them via RequireActor.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderActorID)
		rawRole := r.Header.Get(HeaderActorRole)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}

		role, err := domain.ParseRole(rawRole)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid actor role: %v", err), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), Actor{ID: id, Role: role})))
	})
}
