package oauth

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jeremyhahn/go-oauthsession/pkg/store"
	"github.com/sirupsen/logrus"
)

// IDTokenConfig contains settings for ID token verification.
type IDTokenConfig struct {
	// JWKSURL enables signature verification against the provider's keys.
	// Defaults to the provider's JWKS URL. When both are empty, ID tokens
	// are only decoded.
	JWKSURL string

	// Issuer specifies the expected issuer claim (optional).
	Issuer string

	// Audience specifies the expected audience claim. Defaults to the
	// client ID when verification is enabled.
	Audience string

	// ClockSkew allows for clock drift between systems.
	ClockSkew time.Duration
}

// Config contains the complete client configuration.
type Config struct {
	// Provider is the OAuth provider configuration.
	Provider Provider

	// ClientID is the OAuth client identifier.
	ClientID string

	// ClientSecret is the OAuth client secret. Public clients leave it empty.
	ClientSecret string

	// Scopes are the OAuth scopes to request.
	Scopes []string

	// RedirectURL is the callback URL registered for the client.
	RedirectURL string

	// Backend stores token sessions, pending authorization state and
	// handed-off redirects. Defaults to an in-memory backend.
	Backend store.Backend

	// Authorizer carries out the user-facing part of the authorization
	// request. Defaults to a LoopbackAuthorizer.
	Authorizer Authorizer

	// Callback holds the query parameters of a redirect this process was
	// started with. The first Init consumes it.
	Callback url.Values

	// IDToken contains ID token verification settings.
	IDToken IDTokenConfig

	// RefreshMargin is how long before expiry a token is refreshed.
	// Default: 1 minute
	RefreshMargin time.Duration

	// StateTTL is how long a pending authorization request stays valid.
	// Default: 10 minutes
	StateTTL time.Duration

	// Timeout is the HTTP client timeout for OAuth requests.
	Timeout time.Duration

	// TLSConfig allows custom TLS configuration.
	TLSConfig *tls.Config

	// InsecureSkipVerify disables TLS certificate verification (not recommended).
	InsecureSkipVerify bool

	// Logger receives client diagnostics.
	Logger *logrus.Entry
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfiguration)
	}

	if c.Provider == nil {
		return fmt.Errorf("%w: provider is required", ErrInvalidConfiguration)
	}

	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("%w: client_id is required", ErrInvalidConfiguration)
	}

	if strings.TrimSpace(c.RedirectURL) == "" {
		return fmt.Errorf("%w: redirect_url is required", ErrInvalidConfiguration)
	}
	if _, err := url.Parse(c.RedirectURL); err != nil {
		return fmt.Errorf("%w: redirect_url: %v", ErrInvalidConfiguration, err)
	}

	if c.Provider.AuthURL() == "" {
		return fmt.Errorf("%w: auth_url is required", ErrInvalidConfiguration)
	}
	if c.Provider.TokenURL() == "" {
		return fmt.Errorf("%w: token_url is required", ErrInvalidConfiguration)
	}

	if c.Backend == nil {
		c.Backend = store.NewMemory()
	}

	if c.Authorizer == nil {
		c.Authorizer = &LoopbackAuthorizer{}
	}
	if h, ok := c.Authorizer.(*HandoffAuthorizer); ok && h.Backend == nil {
		h.Backend = c.Backend
	}

	if c.IDToken.JWKSURL == "" {
		c.IDToken.JWKSURL = c.Provider.JWKSURL()
	}
	if c.IDToken.JWKSURL != "" && c.IDToken.Audience == "" {
		c.IDToken.Audience = c.ClientID
	}
	if c.IDToken.ClockSkew <= 0 {
		c.IDToken.ClockSkew = 60 * time.Second
	}

	if c.RefreshMargin <= 0 {
		c.RefreshMargin = time.Minute
	}

	if c.StateTTL <= 0 {
		c.StateTTL = 10 * time.Minute
	}

	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}

	if c.Logger == nil {
		c.Logger = logrus.NewEntry(logrus.StandardLogger()).WithField("component", "oauth")
	}

	return nil
}

// LoadConfig configures a client whose endpoints come from the issuer's
// discovery document.
type LoadConfig struct {
	Config

	// Issuer is the authorization server's issuer identifier.
	Issuer string

	// DiscoveryURL overrides the discovery document location.
	DiscoveryURL string
}
