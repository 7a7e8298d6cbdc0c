package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
)

func TestActorGroups(t *testing.T) {
	actor := &Actor{
		SubjectID: "auth0|abc",
		Groups:    []string{"customer", "auditor"},
		UserData: map[string]docstore.Doc{
			"customer": {"_id": "cust-1", "name": "Alice"},
		},
	}

	assert.True(t, actor.HasGroup("customer"))
	assert.True(t, actor.HasGroup("auditor"))
	assert.False(t, actor.HasGroup("admin"))

	assert.Equal(t, "cust-1", actor.GroupData("customer")["_id"])
	assert.Nil(t, actor.GroupData("auditor"))
	assert.Nil(t, (&Actor{}).GroupData("customer"))
}

func TestContextRoundTrip(t *testing.T) {
	actor := &Actor{SubjectID: "auth0|abc"}
	ctx := WithActor(context.Background(), actor)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, actor, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestStaticResolver(t *testing.T) {
	resolver := &StaticResolver{Actors: map[string]*Actor{
		"token-1": {SubjectID: "auth0|abc", Groups: []string{"customer"}},
	}}

	actor, err := resolver.Resolve(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, "auth0|abc", actor.SubjectID)

	_, err = resolver.Resolve(context.Background(), "bogus")
	assert.True(t, apierror.IsForbidden(err))
}

func TestClaimHelpers(t *testing.T) {
	claims := map[string]interface{}{
		"name":   "Alice",
		"groups": []interface{}{"customer", "auditor", 42},
	}

	assert.Equal(t, "Alice", stringClaim(claims, "name"))
	assert.Equal(t, "", stringClaim(claims, "missing"))
	assert.Equal(t, []string{"customer", "auditor"}, stringSliceClaim(claims, "groups"))
	assert.Nil(t, stringSliceClaim(claims, "missing"))
}
