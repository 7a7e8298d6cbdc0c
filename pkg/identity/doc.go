// Package identity resolves request credentials into an Actor: the caller's
// subject, group memberships, and per-group backing documents used for
// ownership checks. Production deployments resolve bearer tokens against an
// OIDC provider; tests and local development use a static resolver.
package identity
