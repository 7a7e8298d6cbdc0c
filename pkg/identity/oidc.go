package identity

import (
	"context"
	"fmt"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
)

// OIDCConfig holds OIDC provider settings.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// GroupsClaim names the ID token claim carrying group memberships.
	// Defaults to "groups".
	GroupsClaim string
}

// GroupDataLoader loads an actor's backing document for one group, keyed by
// the token subject. Returning docstore.ErrNoDocuments means the caller has
// no backing record for that group.
type GroupDataLoader func(ctx context.Context, group, subject string) (docstore.Doc, error)

// OIDCResolver verifies bearer ID tokens against an OIDC provider and
// enriches the resulting actor with per-group backing documents.
type OIDCResolver struct {
	verifier *oidc.IDTokenVerifier
	oauth    oauth2.Config
	cfg      OIDCConfig
	loader   GroupDataLoader
	logger   *logrus.Logger
}

// NewOIDCResolver discovers the provider and builds a resolver. loader may
// be nil, in which case actors carry no group data.
func NewOIDCResolver(ctx context.Context, cfg OIDCConfig, loader GroupDataLoader, logger *logrus.Logger) (*OIDCResolver, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.GroupsClaim == "" {
		cfg.GroupsClaim = "groups"
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCResolver{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		cfg:    cfg,
		loader: loader,
		logger: logger,
	}, nil
}

// AuthCodeURL returns the provider's authorization URL for a login redirect.
func (r *OIDCResolver) AuthCodeURL(state string) string {
	return r.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a raw ID token.
func (r *OIDCResolver) Exchange(ctx context.Context, code string) (string, error) {
	token, err := r.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return "", fmt.Errorf("token response is missing id_token")
	}
	return rawIDToken, nil
}

// Resolve implements Resolver.
func (r *OIDCResolver) Resolve(ctx context.Context, rawToken string) (*Actor, error) {
	idToken, err := r.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, apierror.Forbiddenf("invalid bearer token: %v", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, apierror.Forbiddenf("failed to decode token claims: %v", err)
	}

	actor := &Actor{
		SubjectID: idToken.Subject,
		Name:      stringClaim(claims, "name"),
		Email:     stringClaim(claims, "email"),
		Groups:    stringSliceClaim(claims, r.cfg.GroupsClaim),
		UserData:  map[string]docstore.Doc{},
	}

	if r.loader != nil {
		for _, group := range actor.Groups {
			data, err := r.loader(ctx, group, actor.SubjectID)
			if err != nil {
				if err == docstore.ErrNoDocuments {
					continue
				}
				return nil, fmt.Errorf("failed to load %s data for subject %s: %w", group, actor.SubjectID, err)
			}
			actor.UserData[group] = data
		}
	}

	r.logger.WithFields(logrus.Fields{
		"subject": actor.SubjectID,
		"groups":  actor.Groups,
	}).Debug("resolved actor")
	return actor, nil
}

func stringClaim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func stringSliceClaim(claims map[string]interface{}, key string) []string {
	raw, ok := claims[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
