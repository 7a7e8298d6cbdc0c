// Package httputil renders engine results and errors as HTTP responses and
// carries the middleware shared by every API route.
package httputil
