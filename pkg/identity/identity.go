package identity

import (
	"context"

	"github.com/dataroomhq/dataroom/pkg/docstore"
)

// Actor is an authenticated caller.
type Actor struct {
	// SubjectID is the stable identifier from the identity provider.
	SubjectID string
	Name      string
	Email     string
	// Groups are the access-control groups the caller belongs to.
	Groups []string
	// UserData maps a group name to the caller's backing document for that
	// group, e.g. the customer record of a caller in the "customer" group.
	// Ownership checks compare a resource's <group>Id field against the
	// _id of the matching backing document.
	UserData map[string]docstore.Doc
}

// HasGroup reports whether the actor belongs to the named group.
func (a *Actor) HasGroup(group string) bool {
	for _, g := range a.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// GroupData returns the actor's backing document for a group, or nil.
func (a *Actor) GroupData(group string) docstore.Doc {
	if a.UserData == nil {
		return nil
	}
	return a.UserData[group]
}

// Resolver turns a bearer credential into an Actor.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Actor, error)
}

type contextKey struct{}

// WithActor attaches an actor to a context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// FromContext returns the actor attached to ctx, if any.
func FromContext(ctx context.Context) (*Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(*Actor)
	return actor, ok
}
