// Package apierror defines the error taxonomy shared by the dataroom engine.
//
// Every failure surfaced by the engine is one of a small set of kinds
// (Forbidden, BadRequest, NotFound, PreconditionFailed, Internal). The engine
// itself never deals in HTTP status codes; the transport layer maps kinds to
// statuses. Validation failures carry the validator's structured error list in
// Details so clients can see exactly which fields were rejected.
package apierror
