package validator

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
)

const loanScheme = `{
	"type": "object",
	"required": ["customerId", "amount"],
	"properties": {
		"customerId": {"type": "string"},
		"amount": {"type": "number", "minimum": 1},
		"signedAt": {"type": "string"},
		"state": {"type": "string"}
	},
	"additionalProperties": true
}`

func newTestValidator(t *testing.T) *SchemaValidator {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loan.scheme.json"), []byte(loanScheme), 0644))
	v, err := New(dir, nil)
	require.NoError(t, err)
	return v
}

func TestValidateAcceptsConformingDocument(t *testing.T) {
	v := newTestValidator(t)

	err := v.Validate("loan.scheme", docstore.Doc{
		"_id":        "loan-1",
		"customerId": "cust-9",
		"amount":     1500,
		"state":      "DRAFT",
	})
	assert.NoError(t, err)
}

func TestValidateRejectsWithDetails(t *testing.T) {
	v := newTestValidator(t)

	err := v.Validate("loan.scheme", docstore.Doc{
		"customerId": 42,
		"amount":     0,
	})
	require.Error(t, err)
	assert.True(t, apierror.IsBadRequest(err))

	var apiErr *apierror.Error
	require.True(t, errors.As(err, &apiErr))
	assert.NotEmpty(t, apiErr.Details)
}

func TestValidateMissingScheme(t *testing.T) {
	v := newTestValidator(t)

	err := v.Validate("mortgage.scheme", docstore.Doc{})
	assert.True(t, apierror.IsPreconditionFailed(err))
	assert.False(t, v.Has("mortgage.scheme"))
	assert.True(t, v.Has("loan.scheme"))
}

func TestValidateIgnoresInternalID(t *testing.T) {
	schema, err := CompileString("strict", `{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string"}},
		"additionalProperties": false
	}`)
	require.NoError(t, err)
	v := &Static{Schemas: map[string]*Schema{"strict": schema}}

	// _id would violate additionalProperties if not stripped
	err = v.Validate("strict", docstore.Doc{"_id": "x", "name": "ok"})
	assert.NoError(t, err)
}

func TestRenderTime(t *testing.T) {
	midnight := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-15", RenderTime(midnight))

	afternoon := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-15T14:30:00Z", RenderTime(afternoon))

	// non-UTC midnight is rendered in UTC first
	shifted := time.Date(2024, 3, 15, 0, 0, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "2024-03-14T23:00:00Z", RenderTime(shifted))
}

func TestNormalizeRendersNestedTimes(t *testing.T) {
	doc := docstore.Doc{
		"contract": map[string]interface{}{
			"signedAt": time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC),
			"validTo":  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	out, err := Normalize(doc)
	require.NoError(t, err)
	contract := out.(map[string]interface{})["contract"].(map[string]interface{})
	assert.Equal(t, "2024-03-15T14:30:00Z", contract["signedAt"])
	assert.Equal(t, "2025-01-01", contract["validTo"])
}
