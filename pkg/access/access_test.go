package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataroomhq/dataroom/pkg/apidef"
	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/identity"
)

func customerActor() *identity.Actor {
	return &identity.Actor{
		SubjectID: "auth0|alice",
		Groups:    []string{"customer"},
		UserData: map[string]docstore.Doc{
			"customer": {"_id": "cust-1", "name": "Alice"},
		},
	}
}

func adminActor() *identity.Actor {
	return &identity.Actor{SubjectID: "auth0|root", Groups: []string{"admin"}}
}

func TestAuthorizeUnconditionalRule(t *testing.T) {
	let := []apidef.Rule{{For: "admin"}}

	rule, err := Authorize(let, adminActor(), docstore.Doc{"state": "DRAFT"})
	require.NoError(t, err)
	assert.Equal(t, "admin", rule.Role)
}

func TestAuthorizeDeniesUnknownGroup(t *testing.T) {
	let := []apidef.Rule{{For: "admin"}}

	_, err := Authorize(let, customerActor(), docstore.Doc{})
	require.Error(t, err)
	assert.True(t, apierror.IsForbidden(err))
	assert.Contains(t, err.Error(), "customer")
}

func TestAuthorizeDeniesActorWithoutGroups(t *testing.T) {
	let := []apidef.Rule{{For: "admin"}}

	_, err := Authorize(let, &identity.Actor{SubjectID: "auth0|nobody"}, docstore.Doc{})
	assert.True(t, apierror.IsForbidden(err))
	assert.Contains(t, err.Error(), "no groups")
}

func TestAuthorizeOwnership(t *testing.T) {
	let := []apidef.Rule{{
		For: "customer",
		If:  map[string]apidef.Expectation{"customer": apidef.NewExpectation(true)},
	}}

	owned := docstore.Doc{"customerId": "cust-1", "state": "DRAFT"}
	rule, err := Authorize(let, customerActor(), owned)
	require.NoError(t, err)
	assert.Equal(t, "customer", rule.Role)
	assert.Equal(t, "cust-1", rule.UserData["_id"])

	foreign := docstore.Doc{"customerId": "cust-2", "state": "DRAFT"}
	_, err = Authorize(let, customerActor(), foreign)
	require.Error(t, err)
	assert.True(t, apierror.IsForbidden(err))
	assert.Contains(t, err.Error(), `"customerId"`)
	assert.Contains(t, err.Error(), "cust-1")
	assert.Contains(t, err.Error(), "cust-2")
}

func TestAuthorizeOwnershipWithoutBackingRecord(t *testing.T) {
	let := []apidef.Rule{{
		For: "customer",
		If:  map[string]apidef.Expectation{"customer": apidef.NewExpectation(true)},
	}}
	actor := &identity.Actor{SubjectID: "auth0|bob", Groups: []string{"customer"}}

	_, err := Authorize(let, actor, docstore.Doc{"customerId": "cust-1"})
	assert.True(t, apierror.IsForbidden(err))
}

func TestAuthorizeFieldEquality(t *testing.T) {
	let := []apidef.Rule{{
		For: "customer",
		If: map[string]apidef.Expectation{
			"customer": apidef.NewExpectation(true),
			"state":    apidef.NewExpectation("DRAFT"),
		},
	}}

	doc := docstore.Doc{"customerId": "cust-1", "state": "DRAFT"}
	_, err := Authorize(let, customerActor(), doc)
	require.NoError(t, err)

	doc["state"] = "SIGNED"
	_, err = Authorize(let, customerActor(), doc)
	require.Error(t, err)
	assert.True(t, apierror.IsForbidden(err))
	assert.Contains(t, err.Error(), `"state"`)
	assert.Contains(t, err.Error(), "DRAFT")
	assert.Contains(t, err.Error(), "SIGNED")
}

func TestAuthorizeMembership(t *testing.T) {
	let := []apidef.Rule{{
		For: "customer",
		If: map[string]apidef.Expectation{
			"state": apidef.NewExpectation([]string{"DRAFT", "PENDING"}),
		},
	}}

	for _, state := range []string{"DRAFT", "PENDING"} {
		_, err := Authorize(let, customerActor(), docstore.Doc{"state": state})
		assert.NoError(t, err, state)
	}

	_, err := Authorize(let, customerActor(), docstore.Doc{"state": "SIGNED"})
	assert.True(t, apierror.IsForbidden(err))
}

func TestAuthorizeNestedFieldCondition(t *testing.T) {
	let := []apidef.Rule{{
		For: "customer",
		If: map[string]apidef.Expectation{
			"contract.isApproved": apidef.NewExpectation(true),
		},
	}}

	approved := docstore.Doc{"contract": map[string]interface{}{"isApproved": true}}
	_, err := Authorize(let, customerActor(), approved)
	assert.NoError(t, err)

	pending := docstore.Doc{"contract": map[string]interface{}{"isApproved": false}}
	_, err = Authorize(let, customerActor(), pending)
	assert.True(t, apierror.IsForbidden(err))
}

func TestAuthorizeFallsThroughToPassingRule(t *testing.T) {
	// the first matching rule fails its condition, the second passes
	actor := &identity.Actor{
		SubjectID: "auth0|carol",
		Groups:    []string{"customer", "auditor"},
		UserData: map[string]docstore.Doc{
			"customer": {"_id": "cust-9"},
		},
	}
	let := []apidef.Rule{
		{For: "customer", If: map[string]apidef.Expectation{"customer": apidef.NewExpectation(true)}},
		{For: "auditor"},
	}

	rule, err := Authorize(let, actor, docstore.Doc{"customerId": "cust-1"})
	require.NoError(t, err)
	assert.Equal(t, "auditor", rule.Role)
}

func TestListFilterUnconditionalRuleIsUnrestricted(t *testing.T) {
	let := []apidef.Rule{{For: "admin"}}

	filter, err := ListFilter(let, adminActor())
	require.NoError(t, err)
	assert.Empty(t, filter)
}

func TestListFilterOwnershipNarrowsQuery(t *testing.T) {
	let := []apidef.Rule{{
		For: "customer",
		If:  map[string]apidef.Expectation{"customer": apidef.NewExpectation(true)},
	}}

	filter, err := ListFilter(let, customerActor())
	require.NoError(t, err)
	assert.Equal(t, docstore.Filter{"customerId": "cust-1"}, filter)
}

func TestListFilterFieldConditions(t *testing.T) {
	let := []apidef.Rule{{
		For: "customer",
		If: map[string]apidef.Expectation{
			"customer": apidef.NewExpectation(true),
			"state":    apidef.NewExpectation([]string{"DRAFT", "PENDING"}),
		},
	}}

	filter, err := ListFilter(let, customerActor())
	require.NoError(t, err)
	assert.Equal(t, "cust-1", filter["customerId"])
	assert.Equal(t, map[string]interface{}{"$in": []interface{}{"DRAFT", "PENDING"}}, filter["state"])
}

func TestListFilterDeniesUnknownGroup(t *testing.T) {
	let := []apidef.Rule{{For: "admin"}}

	_, err := ListFilter(let, customerActor())
	assert.True(t, apierror.IsForbidden(err))
}
