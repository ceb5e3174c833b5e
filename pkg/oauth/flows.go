package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jeremyhahn/go-oauthsession/pkg/session"
	"golang.org/x/oauth2"
)

// flowHandler runs the authorization code flow with PKCE against one
// provider.
type flowHandler struct {
	config     *Config
	httpClient *http.Client
	oauthCfg   *oauth2.Config
}

// newFlowHandler creates a new OAuth flow handler.
func newFlowHandler(config *Config, httpClient *http.Client) *flowHandler {
	oauthCfg := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  config.Provider.AuthURL(),
			TokenURL: config.Provider.TokenURL(),
		},
		Scopes:      config.Scopes,
		RedirectURL: config.RedirectURL,
	}

	return &flowHandler{
		config:     config,
		httpClient: httpClient,
		oauthCfg:   oauthCfg,
	}
}

// context makes oauth2 use the handler's HTTP client.
func (f *flowHandler) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
}

// authCodeURL builds the authorization URL. hint is sent as login_hint.
func (f *flowHandler) authCodeURL(state, verifier, hint string, opts *session.AuthorizeOptions) string {
	params := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(verifier),
	}

	if hint = strings.TrimSpace(hint); hint != "" {
		params = append(params, oauth2.SetAuthURLParam("login_hint", hint))
	}

	if opts != nil {
		if opts.Scope != "" {
			params = append(params, oauth2.SetAuthURLParam("scope", opts.Scope))
		}
		if opts.Prompt != "" {
			params = append(params, oauth2.SetAuthURLParam("prompt", opts.Prompt))
		}
		if opts.Display != "" {
			params = append(params, oauth2.SetAuthURLParam("display", opts.Display))
		}
	}

	return f.oauthCfg.AuthCodeURL(state, params...)
}

// exchange trades an authorization code for tokens.
func (f *flowHandler) exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: authorization code is required", ErrTokenExchangeFailed)
	}

	tok, err := f.oauthCfg.Exchange(f.context(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}
	return tok, nil
}

// refresh uses a refresh token to obtain a new access token. A rejected
// grant is reported as ErrSessionRevoked.
func (f *flowHandler) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, fmt.Errorf("%w: refresh token is required", ErrRefreshFailed)
	}

	src := f.oauthCfg.TokenSource(f.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		if invalidGrant(err) {
			return nil, fmt.Errorf("%w: %w", ErrSessionRevoked, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	return tok, nil
}

// revoke revokes token at the provider's RFC 7009 endpoint. Providers
// without one are skipped.
func (f *flowHandler) revoke(ctx context.Context, token, hint string) error {
	revocationURL := f.config.Provider.RevocationURL()
	if revocationURL == "" || token == "" {
		return nil
	}

	data := url.Values{}
	data.Set("token", token)
	if hint != "" {
		data.Set("token_type_hint", hint)
	}
	if f.config.ClientSecret == "" {
		data.Set("client_id", f.config.ClientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revocationURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationFailed, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if f.config.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(f.config.ClientID), url.QueryEscape(f.config.ClientSecret))
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: status %d: %s", ErrRevocationFailed, resp.StatusCode, string(body))
	}

	return nil
}

func invalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re) && re.ErrorCode == "invalid_grant"
}
