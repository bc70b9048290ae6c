// Package sso bridges an external OpenID Connect identity provider to
// local accounts.
package sso

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/custodialabs/custodia/pkg/config"
)

// ErrNoEmail is returned when the provider does not assert an email for
// the authenticated subject
var ErrNoEmail = errors.New("email not provided by identity provider")

// Identity is the subset of provider claims mapped onto local accounts
type Identity struct {
	Email     string
	FirstName *string
	LastName  *string
}

// Provider exchanges an authorization code for a provider-asserted
// identity
type Provider interface {
	AuthCodeURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// OIDCProvider implements Provider against a discovered OIDC issuer.
// Discovery runs on first use and is retried until it succeeds, so a
// provider that is down at startup does not wedge the process.
type OIDCProvider struct {
	cfg config.OIDCConfig

	mu           sync.Mutex
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider creates a provider from configuration. Discovery is
// deferred to the first authorization or exchange call.
func NewOIDCProvider(cfg config.OIDCConfig) *OIDCProvider {
	return &OIDCProvider{cfg: cfg}
}

func (p *OIDCProvider) ensure(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.provider != nil {
		return nil
	}

	provider, err := oidc.NewProvider(ctx, p.cfg.Issuer)
	if err != nil {
		return fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	p.provider = provider
	p.verifier = provider.Verifier(&oidc.Config{ClientID: p.cfg.ClientID})
	p.oauth2Config = &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  p.cfg.RedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}
	return nil
}

// AuthCodeURL returns the provider's authorization endpoint URL for the
// given state
func (p *OIDCProvider) AuthCodeURL(state string) (string, error) {
	if err := p.ensure(context.Background()); err != nil {
		return "", err
	}
	return p.oauth2Config.AuthCodeURL(state), nil
}

// Exchange redeems the authorization code, verifies the ID token and
// resolves the subject's identity from the userinfo endpoint
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	if err := p.ensure(ctx); err != nil {
		return nil, err
	}

	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in token response")
	}
	if _, err := p.verifier.Verify(ctx, rawIDToken); err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	userInfo, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	var claims struct {
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
	}
	if err := userInfo.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse user info claims: %w", err)
	}
	if claims.Email == "" {
		return nil, ErrNoEmail
	}

	identity := &Identity{Email: claims.Email}
	if claims.GivenName != "" {
		identity.FirstName = &claims.GivenName
	}
	if claims.FamilyName != "" {
		identity.LastName = &claims.FamilyName
	}
	return identity, nil
}
