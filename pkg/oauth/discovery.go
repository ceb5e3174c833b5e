package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"
)

const (
	oidcDiscoveryPath   = "/.well-known/openid-configuration"
	serverMetadataPath  = "/.well-known/oauth-authorization-server"
	discoveryBodyLimit  = 1 << 20
	discoveryErrorLimit = 1024
)

// Discovery is an authorization server metadata document (OpenID Connect
// Discovery 1.0 or RFC 8414).
type Discovery struct {
	// Issuer is the authorization server's issuer identifier.
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the authorization endpoint URL.
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the token endpoint URL.
	TokenEndpoint string `json:"token_endpoint"`

	// JWKSURI is the JWKS endpoint URL.
	JWKSURI string `json:"jwks_uri,omitempty"`

	// RevocationEndpoint is the token revocation endpoint URL.
	RevocationEndpoint string `json:"revocation_endpoint,omitempty"`

	// ScopesSupported lists supported OAuth 2.0 scopes.
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// ResponseTypesSupported lists supported OAuth 2.0 response types.
	ResponseTypesSupported []string `json:"response_types_supported,omitempty"`

	// GrantTypesSupported lists supported OAuth 2.0 grant types.
	GrantTypesSupported []string `json:"grant_types_supported,omitempty"`

	// CodeChallengeMethodsSupported lists supported PKCE challenge methods.
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`

	// FetchedAt tracks when this discovery document was retrieved.
	FetchedAt time.Time `json:"-"`
}

// Validate checks if the discovery document contains required fields.
func (d *Discovery) Validate() error {
	if d == nil {
		return ErrDiscoveryFailed
	}
	if d.Issuer == "" {
		return fmt.Errorf("%w: missing issuer", ErrInvalidDiscovery)
	}
	if d.AuthorizationEndpoint == "" {
		return fmt.Errorf("%w: missing authorization_endpoint", ErrInvalidDiscovery)
	}
	if d.TokenEndpoint == "" {
		return fmt.Errorf("%w: missing token_endpoint", ErrInvalidDiscovery)
	}
	if len(d.CodeChallengeMethodsSupported) > 0 && !slices.Contains(d.CodeChallengeMethodsSupported, "S256") {
		return fmt.Errorf("%w: S256 code challenge not supported", ErrInvalidDiscovery)
	}
	return nil
}

// Provider returns a Provider serving the document's endpoints.
func (d *Discovery) Provider(name string) (Provider, error) {
	if name == "" {
		name = "discovered"
	}
	return CustomProvider(ProviderConfig{
		ProviderName:       name,
		AuthEndpoint:       d.AuthorizationEndpoint,
		TokenEndpoint:      d.TokenEndpoint,
		JWKSEndpoint:       d.JWKSURI,
		RevocationEndpoint: d.RevocationEndpoint,
		IssuerURL:          d.Issuer,
	})
}

// FetchDiscovery retrieves the metadata document of issuer. Without an
// explicit discoveryURL the OpenID Connect location is tried first and the
// RFC 8414 location second.
func FetchDiscovery(ctx context.Context, httpClient *http.Client, issuer, discoveryURL string) (*Discovery, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	candidates := []string{discoveryURL}
	if discoveryURL == "" {
		if strings.TrimSpace(issuer) == "" {
			return nil, fmt.Errorf("%w: issuer required for discovery", ErrInvalidConfiguration)
		}
		candidates = []string{
			buildDiscoveryURL(issuer, oidcDiscoveryPath),
			buildDiscoveryURL(issuer, serverMetadataPath),
		}
	}

	var lastErr error
	for _, u := range candidates {
		doc, err := fetchDiscovery(ctx, httpClient, u)
		if err == nil {
			if err := doc.Validate(); err != nil {
				return nil, err
			}
			if issuer != "" && strings.TrimSuffix(doc.Issuer, "/") != strings.TrimSuffix(issuer, "/") {
				return nil, fmt.Errorf("%w: issuer %q does not match %q", ErrInvalidDiscovery, doc.Issuer, issuer)
			}
			return doc, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return nil, lastErr
}

// fetchDiscovery retrieves one discovery document.
func fetchDiscovery(ctx context.Context, httpClient *http.Client, discoveryURL string) (*Discovery, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create discovery request: %v", ErrDiscoveryFailed, err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch discovery document: %v", ErrDiscoveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, discoveryErrorLimit))
		return nil, fmt.Errorf("%w: unexpected status %d: %s", ErrDiscoveryFailed, resp.StatusCode, string(body))
	}

	var doc Discovery
	if err := json.NewDecoder(io.LimitReader(resp.Body, discoveryBodyLimit)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse discovery document: %v", ErrDiscoveryFailed, err)
	}

	doc.FetchedAt = time.Now()

	return &doc, nil
}

// buildDiscoveryURL constructs a well-known URL from an issuer.
func buildDiscoveryURL(issuer, path string) string {
	issuer = strings.TrimSpace(issuer)
	issuer = strings.TrimSuffix(issuer, "/")
	return issuer + path
}
