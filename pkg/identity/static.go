package identity

import (
	"context"

	"github.com/dataroomhq/dataroom/pkg/apierror"
)

// StaticResolver resolves tokens against a fixed map, for tests and local
// development.
type StaticResolver struct {
	Actors map[string]*Actor
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(ctx context.Context, token string) (*Actor, error) {
	actor, ok := r.Actors[token]
	if !ok {
		return nil, apierror.Forbiddenf("unknown bearer token")
	}
	return actor, nil
}
