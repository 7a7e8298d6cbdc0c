// Package access evaluates the role rules attached to resource operations.
// An operation's rule list enumerates which groups may perform it and under
// what conditions on the target document: literal field equality, membership
// in a value list, or ownership (the document's <role>Id field matching the
// caller's backing record).
//
// Evaluation fails closed: a caller with no matching rule is denied, and the
// first condition violation of the first matching rule decides the error.
package access
