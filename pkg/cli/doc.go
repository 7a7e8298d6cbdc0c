// Package cli implements the dataroomctl command line tool: local definition
// validation plus resource CRUD and event streaming against a running server.
package cli
