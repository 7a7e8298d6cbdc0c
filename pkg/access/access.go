package access

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dataroomhq/dataroom/pkg/apidef"
	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/identity"
)

// AppliedRule is a rule bound to the caller's role and backing data.
type AppliedRule struct {
	Role     string
	Rule     apidef.Rule
	UserData docstore.Doc
}

// OwnerField names the document field holding the owning record id for a
// role, e.g. "customerId" for the customer role.
func OwnerField(role string) string {
	return role + "Id"
}

// ApplicableRules returns the rules whose role the actor belongs to, in
// declaration order. An empty result means the operation is denied.
func ApplicableRules(let []apidef.Rule, actor *identity.Actor) []AppliedRule {
	var applied []AppliedRule
	for _, rule := range let {
		if !actor.HasGroup(rule.For) {
			continue
		}
		applied = append(applied, AppliedRule{
			Role:     rule.For,
			Rule:     rule,
			UserData: actor.GroupData(rule.For),
		})
	}
	return applied
}

// Authorize checks whether the actor may perform an operation on doc. It
// returns the first rule whose conditions all hold. When every matching rule
// fails, the first rule's first violation decides the Forbidden error.
func Authorize(let []apidef.Rule, actor *identity.Actor, doc docstore.Doc) (*AppliedRule, error) {
	applied := ApplicableRules(let, actor)
	if len(applied) == 0 {
		return nil, deniedForGroups(actor)
	}

	var firstErr error
	for i := range applied {
		if err := checkConditions(&applied[i], doc); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return &applied[i], nil
	}
	return nil, firstErr
}

func deniedForGroups(actor *identity.Actor) error {
	groups := actor.Groups
	if len(groups) == 0 {
		return apierror.Forbiddenf("access denied: caller belongs to no groups")
	}
	return apierror.Forbiddenf("access denied: no rule permits groups [%s]", strings.Join(groups, ", "))
}

// checkConditions evaluates a rule's if-conditions against doc, failing on
// the first violated field in sorted order for deterministic errors.
func checkConditions(rule *AppliedRule, doc docstore.Doc) error {
	if len(rule.Rule.If) == 0 {
		return nil
	}

	fields := make([]string, 0, len(rule.Rule.If))
	for field := range rule.Rule.If {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		expected := rule.Rule.If[field]
		if field == rule.Role {
			if err := checkOwnership(rule, doc); err != nil {
				return err
			}
			continue
		}

		actual, _ := apidef.ParsePath(field).Get(doc)
		if !expected.Matches(actual) {
			return apierror.Forbiddenf(
				"access denied for %s: field %q expected %s, got %q",
				rule.Role, field, renderExpected(expected), fmt.Sprintf("%v", actual),
			)
		}
	}
	return nil
}

// checkOwnership compares the document's <role>Id against the _id of the
// caller's backing record for that role.
func checkOwnership(rule *AppliedRule, doc docstore.Doc) error {
	field := OwnerField(rule.Role)
	ownerID, _ := rule.UserData[docstore.FieldID].(string)
	if ownerID == "" {
		return apierror.Forbiddenf("access denied for %s: caller has no %s record", rule.Role, rule.Role)
	}

	actual := fmt.Sprintf("%v", doc[field])
	if actual != ownerID {
		return apierror.Forbiddenf(
			"access denied for %s: field %q expected %q, got %q",
			rule.Role, field, ownerID, actual,
		)
	}
	return nil
}

func renderExpected(e apidef.Expectation) string {
	if e.IsList() {
		return "one of [" + strings.Join(e.Values(), ", ") + "]"
	}
	return fmt.Sprintf("%q", e.Literal())
}

// ListFilter converts the actor's applicable list rules into a store filter.
// An unconditional rule grants an unrestricted view; otherwise the first
// applicable rule's conditions narrow the query, with ownership becoming an
// equality filter on <role>Id.
func ListFilter(let []apidef.Rule, actor *identity.Actor) (docstore.Filter, error) {
	applied := ApplicableRules(let, actor)
	if len(applied) == 0 {
		return nil, deniedForGroups(actor)
	}

	for _, rule := range applied {
		if len(rule.Rule.If) == 0 {
			return docstore.Filter{}, nil
		}
	}

	rule := applied[0]
	filter := docstore.Filter{}
	for field, expected := range rule.Rule.If {
		if field == rule.Role {
			ownerID, _ := rule.UserData[docstore.FieldID].(string)
			if ownerID == "" {
				return nil, apierror.Forbiddenf("access denied for %s: caller has no %s record", rule.Role, rule.Role)
			}
			filter[OwnerField(rule.Role)] = ownerID
			continue
		}
		if expected.IsList() {
			values := expected.Values()
			in := make([]interface{}, len(values))
			for i, v := range values {
				in[i] = v
			}
			filter[field] = map[string]interface{}{"$in": in}
			continue
		}
		filter[field] = expected.Literal()
	}
	return filter, nil
}
