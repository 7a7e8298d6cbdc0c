package apidef

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePath(t *testing.T) {
	assert.Equal(t, Path{"contract", "createdAt"}, ParsePath("contract.createdAt"))
	assert.Equal(t, Path{"state"}, ParsePath("state"))
	assert.Nil(t, ParsePath(""))
	assert.Equal(t, Path{"a", "b"}, ParsePath("a..b"))
}

func TestPathGetSet(t *testing.T) {
	doc := map[string]any{
		"state": "DRAFT",
		"contract": map[string]any{
			"amount": 100,
		},
	}

	value, ok := ParsePath("contract.amount").Get(doc)
	assert.True(t, ok)
	assert.Equal(t, 100, value)

	_, ok = ParsePath("contract.missing").Get(doc)
	assert.False(t, ok)

	_, ok = ParsePath("state.nested").Get(doc)
	assert.False(t, ok)

	ParsePath("contract.signedAt").Set(doc, "2024-01-01")
	value, ok = ParsePath("contract.signedAt").Get(doc)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-01", value)

	// intermediate maps are created on demand
	ParsePath("audit.lastChange.by").Set(doc, "admin")
	value, ok = ParsePath("audit.lastChange.by").Get(doc)
	assert.True(t, ok)
	assert.Equal(t, "admin", value)
}

func TestPathDelete(t *testing.T) {
	doc := map[string]any{
		"contract": map[string]any{"amount": 100, "currency": "EUR"},
	}

	ParsePath("contract.amount").Delete(doc)
	_, ok := ParsePath("contract.amount").Get(doc)
	assert.False(t, ok)

	value, ok := ParsePath("contract.currency").Get(doc)
	assert.True(t, ok)
	assert.Equal(t, "EUR", value)
}

func TestPathTrimPrefix(t *testing.T) {
	path := ParsePath("contract.signedAt")
	assert.Equal(t, Path{"signedAt"}, path.TrimPrefix("contract"))
	assert.Equal(t, path, path.TrimPrefix("other"))
}
