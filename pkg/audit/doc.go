// Package audit persists an immutable trail of resource changes.
//
// The Log sits in the notification path as an events.Sink: every create,
// update, delete and file upload is recorded in the document store before it
// fans out to subscribers. Admins query the trail through the HTTP API.
package audit
