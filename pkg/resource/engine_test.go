package resource

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataroomhq/dataroom/pkg/apidef"
	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/events"
	"github.com/dataroomhq/dataroom/pkg/filestore"
	"github.com/dataroomhq/dataroom/pkg/identity"
	"github.com/dataroomhq/dataroom/pkg/validator"
)

const loanSchemeSource = `{
	"type": "object",
	"required": ["customerId"],
	"properties": {
		"customerId": {"type": "string"},
		"amount": {"type": "number", "minimum": 1},
		"state": {"enum": ["DRAFT", "PENDING", "SIGNED"]}
	},
	"additionalProperties": true
}`

const termsSchemeSource = `{
	"type": "object",
	"required": ["months"],
	"properties": {
		"months": {"type": "integer", "minimum": 1}
	},
	"additionalProperties": true
}`

func ownership() map[string]apidef.Expectation {
	return map[string]apidef.Expectation{"customer": apidef.NewExpectation(true)}
}

func loanDefinition() *apidef.Definition {
	customerOrAdmin := []apidef.Rule{
		{For: "customer", If: ownership()},
		{For: "admin"},
	}
	adminOnly := []apidef.Rule{{For: "admin"}}

	return &apidef.Definition{
		Name:               "loan",
		ResourceSchemeName: "loan.scheme",
		States:             []string{"DRAFT", "PENDING", "SIGNED"},
		Scheme: map[string]any{
			"properties": map[string]any{
				"customerId":      map[string]any{"type": "string"},
				"amount":          map[string]any{"type": "number"},
				"state":           map[string]any{"type": "string"},
				"createdByAuthId": map[string]any{"type": "string"},
				"terms":           map[string]any{"type": "object"},
				"contract":        map[string]any{"type": "array"},
				"appraisal":       map[string]any{"type": "object"},
			},
		},
		Create: &apidef.Operation{
			Let: []apidef.Rule{
				{For: "customer", If: ownership(), Set: "createdByAuthId", AppendID: "loanIds"},
				{For: "admin"},
			},
			Set: map[string]any{"state": "DRAFT"},
		},
		Get: &apidef.Operation{Let: customerOrAdmin},
		Update: &apidef.Operation{
			Let: []apidef.Rule{
				{For: "customer", If: map[string]apidef.Expectation{
					"customer": apidef.NewExpectation(true),
					"state":    apidef.NewExpectation("DRAFT"),
				}},
				{For: "admin"},
			},
		},
		Delete: &apidef.Operation{Let: adminOnly},
		List: &apidef.ListOperation{
			Let:        customerOrAdmin,
			Projection: []string{"amount", "customerId"},
			Query:      []string{"state"},
		},
		Sections: map[string]*apidef.Section{
			"terms": {
				Validate: "terms.section",
				Create:   &apidef.Operation{Let: customerOrAdmin},
				Update: &apidef.Operation{
					Let: adminOnly,
					Set: map[string]any{"state": "PENDING"},
				},
				Delete: &apidef.Operation{Let: adminOnly},
			},
			"contract": {
				Documents: &apidef.DocumentsSpec{MimeTypes: []string{"application/pdf"}, MaxCount: 2},
				Create:    &apidef.Operation{Let: customerOrAdmin},
				Update:    &apidef.Operation{Let: customerOrAdmin},
				Delete:    &apidef.Operation{Let: adminOnly},
			},
			"appraisal": {
				Document:  &apidef.DocumentSpec{MimeTypes: []string{"application/pdf"}, MaxSize: 64},
				Versioned: true,
				Create:    &apidef.Operation{Let: adminOnly},
				Update:    &apidef.Operation{Let: adminOnly},
				Delete:    &apidef.Operation{Let: adminOnly},
			},
		},
		CoerceFields: &apidef.CoerceFields{Date: []string{"terms.validFrom"}},
		Indexes:      []apidef.Index{{Key: map[string]int{"state": 1}}},
	}
}

type seqIDs struct{ n int }

func (s *seqIDs) NewID(resourceType string) string {
	s.n++
	return fmt.Sprintf("%s-%03d", resourceType, s.n)
}

type testEnv struct {
	engine *Engine
	store  *docstore.Adapter
	files  *filestore.Local
	broker *events.Broker
}

func newTestEngine(t *testing.T) *testEnv {
	return newTestEngineWithScheme(t, loanSchemeSource)
}

// newTestEngineWithScheme builds the standard loan engine with a custom
// whole-resource scheme, for tests exercising revalidation failures.
func newTestEngineWithScheme(t *testing.T, schemeSource string) *testEnv {
	t.Helper()

	reg := apidef.NewRegistry("", nil)
	require.NoError(t, reg.Register(loanDefinition()))

	adapter := docstore.NewAdapter(docstore.NewMemory(), []string{"loan", "customer"}, nil)
	local, err := filestore.NewLocal(t.TempDir())
	require.NoError(t, err)

	loanSchema, err := validator.CompileString("loan.scheme", schemeSource)
	require.NoError(t, err)
	termsSchema, err := validator.CompileString("terms.section", termsSchemeSource)
	require.NoError(t, err)

	broker := events.NewBroker(nil)
	t.Cleanup(broker.Close)

	engine, err := New(Config{
		Definitions: reg,
		Store:       adapter,
		Files:       local,
		Validator: &validator.Static{Schemas: map[string]*validator.Schema{
			"loan.scheme":   loanSchema,
			"terms.section": termsSchema,
		}},
		Broker: broker,
		IDs:    &seqIDs{},
	})
	require.NoError(t, err)

	// backing record for the customer actor's ownership checks
	_, err = adapter.Insert(context.Background(), "customer", docstore.Doc{
		"_id":  "cust-1",
		"name": "Alice",
	})
	require.NoError(t, err)

	return &testEnv{engine: engine, store: adapter, files: local, broker: broker}
}

func customer() *identity.Actor {
	return &identity.Actor{
		SubjectID: "auth0|alice",
		Groups:    []string{"customer"},
		UserData: map[string]docstore.Doc{
			"customer": {"_id": "cust-1", "name": "Alice"},
		},
	}
}

func otherCustomer() *identity.Actor {
	return &identity.Actor{
		SubjectID: "auth0|bob",
		Groups:    []string{"customer"},
		UserData: map[string]docstore.Doc{
			"customer": {"_id": "cust-2", "name": "Bob"},
		},
	}
}

func admin() *identity.Actor {
	return &identity.Actor{SubjectID: "auth0|root", Groups: []string{"admin"}}
}

func stranger() *identity.Actor {
	return &identity.Actor{SubjectID: "auth0|nobody"}
}

func createLoan(t *testing.T, env *testEnv, actor *identity.Actor, payload docstore.Doc) docstore.Doc {
	t.Helper()
	doc, err := env.engine.Create(context.Background(), "loan", payload, actor)
	require.NoError(t, err)
	return doc
}

func TestCreateStampsDefaults(t *testing.T) {
	ctx := context.Background()
	env := newTestEngine(t)

	doc := createLoan(t, env, customer(), docstore.Doc{"customerId": "cust-1", "amount": 500})

	assert.Equal(t, "DRAFT", doc["state"])
	assert.Equal(t, "auth0|alice", doc["createdByAuthId"])
	assert.Equal(t, "loan-001", doc["loanId"])
	assert.NotEmpty(t, doc["_id"])
	assert.IsType(t, time.Time{}, doc["createdAt"])
	assert.IsType(t, time.Time{}, doc["updatedAt"])

	// the created id is appended onto the owner's record
	owner, err := env.store.GetByID(ctx, "customer", "cust-1", nil)
	require.NoError(t, err)
	ids, _ := owner["loanIds"].([]interface{})
	require.Len(t, ids, 1)
	assert.Equal(t, doc["_id"], ids[0])
}

func TestCreateDeniedWithoutGroups(t *testing.T) {
	env := newTestEngine(t)

	_, err := env.engine.Create(context.Background(), "loan",
		docstore.Doc{"customerId": "cust-1", "amount": 500}, stranger())
	assert.True(t, apierror.IsForbidden(err))
}

func TestCreateDeniedForForeignOwner(t *testing.T) {
	env := newTestEngine(t)

	// a customer cannot create a loan owned by somebody else
	_, err := env.engine.Create(context.Background(), "loan",
		docstore.Doc{"customerId": "cust-2", "amount": 500}, customer())
	assert.True(t, apierror.IsForbidden(err))
}

func TestCreateValidatesPayload(t *testing.T) {
	env := newTestEngine(t)

	_, err := env.engine.Create(context.Background(), "loan",
		docstore.Doc{"customerId": "cust-1", "amount": 0}, customer())
	assert.True(t, apierror.IsBadRequest(err))
}

func TestCreateUnknownResourceType(t *testing.T) {
	env := newTestEngine(t)

	_, err := env.engine.Create(context.Background(), "mortgage", docstore.Doc{}, admin())
	assert.True(t, apierror.IsNotFound(err))
}

func TestCreateIgnoresProtectedFields(t *testing.T) {
	env := newTestEngine(t)

	doc := createLoan(t, env, customer(), docstore.Doc{
		"customerId": "cust-1",
		"amount":     500,
		"_id":        "forced-id",
		"loanId":     "forced-loan-id",
	})
	assert.NotEqual(t, "forced-id", doc["_id"])
	assert.Equal(t, "loan-001", doc["loanId"])
}

func TestGetOwnership(t *testing.T) {
	ctx := context.Background()
	env := newTestEngine(t)
	doc := createLoan(t, env, customer(), docstore.Doc{"customerId": "cust-1", "amount": 500})
	id := doc["_id"].(string)

	got, err := env.engine.Get(ctx, "loan", id, customer())
	require.NoError(t, err)
	assert.Equal(t, id, got["_id"])

	_, err = env.engine.Get(ctx, "loan", id, otherCustomer())
	assert.True(t, apierror.IsForbidden(err))

	_, err = env.engine.Get(ctx, "loan", id, admin())
	assert.NoError(t, err)

	_, err = env.engine.Get(ctx, "loan", "missing", admin())
	assert.True(t, apierror.IsNotFound(err))
}

func TestUpdateStateGate(t *testing.T) {
	ctx := context.Background()
	env := newTestEngine(t)
	doc := createLoan(t, env, customer(), docstore.Doc{"customerId": "cust-1", "amount": 500})
	id := doc["_id"].(string)

	updated, err := env.engine.Update(ctx, "loan", id, docstore.Doc{"amount": 750}, customer())
	require.NoError(t, err)
	assert.Equal(t, 750, updated["amount"])

	_, err = env.engine.Update(ctx, "loan", id, docstore.Doc{"state": "PENDING"}, admin())
	require.NoError(t, err)

	// the owning customer may only touch DRAFT loans
	_, err = env.engine.Update(ctx, "loan", id, docstore.Doc{"amount": 900}, customer())
	require.Error(t, err)
	assert.True(t, apierror.IsForbidden(err))
	assert.Contains(t, err.Error(), "DRAFT")
	assert.Contains(t, err.Error(), "PENDING")
}

func TestUpdateIgnoresProtectedFields(t *testing.T) {
	ctx := context.Background()
	env := newTestEngine(t)
	doc := createLoan(t, env, customer(), docstore.Doc{"customerId": "cust-1", "amount": 500})
	id := doc["_id"].(string)

	updated, err := env.engine.Update(ctx, "loan", id, docstore.Doc{
		"amount": 600,
		"_id":    "forced",
		"loanId": "forced",
	}, customer())
	require.NoError(t, err)
	assert.Equal(t, id, updated["_id"])
	assert.Equal(t, "loan-001", updated["loanId"])
	assert.Equal(t, 600, updated["amount"])
}

func TestUpdateValidatesMergedDocument(t *testing.T) {
	ctx := context.Background()
	env := newTestEngine(t)
	doc := createLoan(t, env, customer(), docstore.Doc{"customerId": "cust-1", "amount": 500})

	_, err := env.engine.Update(ctx, "loan", doc["_id"].(string), docstore.Doc{"amount": -5}, customer())
	assert.True(t, apierror.IsBadRequest(err))
}

func TestDeleteRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEngine(t)
	doc := createLoan(t, env, customer(), docstore.Doc{"customerId": "cust-1", "amount": 500})
	id := doc["_id"].(string)

	err := env.engine.Delete(ctx, "loan", id, customer())
	assert.True(t, apierror.IsForbidden(err))

	require.NoError(t, env.engine.Delete(ctx, "loan", id, admin()))

	_, err = env.engine.Get(ctx, "loan", id, admin())
	assert.True(t, apierror.IsNotFound(err))
}

func TestListNarrowsToOwner(t *testing.T) {
	ctx := context.Background()
	env := newTestEngine(t)
	createLoan(t, env, customer(), docstore.Doc{"customerId": "cust-1", "amount": 100})
	createLoan(t, env, customer(), docstore.Doc{"customerId": "cust-1", "amount": 200})
	createLoan(t, env, admin(), docstore.Doc{"customerId": "cust-2", "amount": 300})

	page, err := env.engine.List(ctx, "loan", ListParams{}, customer())
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	for _, item := range page.Items {
		assert.Equal(t, "cust-1", item["customerId"])
	}

	page, err = env.engine.List(ctx, "loan", ListParams{}, admin())
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
}

func TestListProjection(t *testing.T) {
	ctx := context.Background()
	env := newTestEngine(t)
	createLoan(t, env, customer(), docstore.Doc{"customerId": "cust-1", "amount": 100, "note": "secret"})

	page, err := env.engine.List(ctx, "loan", ListParams{}, admin())
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	item := page.Items[0]
	assert.Contains(t, item, "amount")
	assert.Contains(t, item, "state")
	assert.Contains(t, item, "loanId")
	assert.NotContains(t, item, "note")
}

func TestListQueryValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEngine(t)
	createLoan(t, env, customer(), docstore.Doc{"customerId": "cust-1", "amount": 100})

	_, err := env.engine.List(ctx, "loan", ListParams{Query: map[string]string{"state": "BOGUS"}}, admin())
	require.Error(t, err)
	assert.True(t, apierror.IsBadRequest(err))
	assert.Contains(t, err.Error(), "BOGUS")

	_, err = env.engine.List(ctx, "loan", ListParams{Query: map[string]string{"amount": "100"}}, admin())
	assert.True(t, apierror.IsBadRequest(err))

	page, err := env.engine.List(ctx, "loan", ListParams{Query: map[string]string{"state": "DRAFT"}}, admin())
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestListPaginates(t *testing.T) {
	ctx := context.Background()
	env := newTestEngine(t)
	for i := 0; i < 3; i++ {
		createLoan(t, env, customer(), docstore.Doc{"customerId": "cust-1", "amount": 100 + i})
	}

	seen := map[interface{}]bool{}
	params := ListParams{Cursor: docstore.Cursor{Limit: 2}}
	page, err := env.engine.List(ctx, "loan", params, admin())
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	for _, item := range page.Items {
		seen[item["_id"]] = true
	}

	params.Cursor = *page.Cursor
	page, err = env.engine.List(ctx, "loan", params, admin())
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)
	for _, item := range page.Items {
		assert.False(t, seen[item["_id"]])
	}
}

func TestSubscribeDeliversUpdates(t *testing.T) {
	ctx := context.Background()
	env := newTestEngine(t)
	doc := createLoan(t, env, customer(), docstore.Doc{"customerId": "cust-1", "amount": 500})
	id := doc["_id"].(string)

	ch, cancel, err := env.engine.Subscribe(ctx, "loan", id, customer())
	require.NoError(t, err)
	defer cancel()

	_, err = env.engine.Update(ctx, "loan", id, docstore.Doc{"amount": 800}, customer())
	require.NoError(t, err)

	select {
	case n := <-ch:
		assert.Equal(t, events.OperationUpdated, n.Operation)
		assert.Equal(t, id, n.ResourceID)
		assert.Equal(t, "auth0|alice", n.Actor)
		assert.Equal(t, 800, n.Diff["amount"])
	case <-time.After(time.Second):
		t.Fatal("expected an update notification")
	}
}

func TestSubscribeChecksReadAccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEngine(t)
	doc := createLoan(t, env, customer(), docstore.Doc{"customerId": "cust-1", "amount": 500})

	_, _, err := env.engine.Subscribe(ctx, "loan", doc["_id"].(string), otherCustomer())
	assert.True(t, apierror.IsForbidden(err))

	_, _, err = env.engine.Subscribe(ctx, "loan", "missing", admin())
	assert.True(t, apierror.IsNotFound(err))
}
