// Package auth provides the credential provider used to authenticate
// control-plane HTTP requests and the realtime transport handshake.
package auth

import "github.com/fluxez/fluxez-go/config"

// Provider is the authentication interface consumed by the API and
// realtime clients. *KeyProvider satisfies this interface.
type Provider interface {
	// AuthToken returns the bearer credential for the realtime handshake.
	AuthToken() string
	// AuthHeaders returns the headers attached to every API request.
	AuthHeaders() map[string]string
}

// KeyProvider is a static API-key credential provider. There is no token
// refresh flow: a rejected credential surfaces as a transport close or an
// HTTP error on the call that used it.
type KeyProvider struct {
	apiKey    string
	apiSecret string
}

// NewKeyProvider creates a KeyProvider from client configuration.
func NewKeyProvider(cfg *config.Config) *KeyProvider {
	return &KeyProvider{
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
	}
}

// AuthToken returns the raw API key.
func (p *KeyProvider) AuthToken() string {
	return p.apiKey
}

// AuthHeaders returns the bearer authorization header, plus the secret
// header when a secret is configured.
func (p *KeyProvider) AuthHeaders() map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	}
	if p.apiSecret != "" {
		headers["X-API-Secret"] = p.apiSecret
	}
	return headers
}
