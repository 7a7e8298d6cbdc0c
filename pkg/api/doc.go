// Package api exposes the resource engine over HTTP. Routes are generic
// over the resource type, so a definition registered at runtime is served
// without a restart.
package api
