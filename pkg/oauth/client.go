package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/jeremyhahn/go-oauthsession/pkg/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Client is an OAuth 2.0 authorization code client with PKCE. It implements
// session.Client.
type Client struct {
	config     *Config
	log        *logrus.Entry
	httpClient *http.Client
	flows      *flowHandler
	ids        *idTokenVerifier
	sessions   *sessionStore
	states     *stateStore
	events     *emitter

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	callback url.Values
}

var _ session.Client = (*Client)(nil)

// NewClient creates a Client from a validated configuration.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	httpClient := newHTTPClient(config.Timeout, config.TLSConfig, config.InsecureSkipVerify)

	c := &Client{
		config:     config,
		log:        config.Logger,
		httpClient: httpClient,
		flows:      newFlowHandler(config, httpClient),
		ids:        newIDTokenVerifier(ctx, config.IDToken),
		sessions:   &sessionStore{backend: config.Backend},
		states:     newStateStore(config.Backend, config.StateTTL),
		events:     newEmitter(),
		ctx:        ctx,
		cancel:     cancel,
		callback:   config.Callback,
	}

	return c, nil
}

// LoadClient fetches the issuer's discovery document and creates a Client
// for the endpoints it lists. Explicit JWKS and issuer settings win over
// discovered ones.
func LoadClient(ctx context.Context, config *LoadConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfiguration)
	}

	httpClient := newHTTPClient(config.Timeout, config.TLSConfig, config.InsecureSkipVerify)
	doc, err := FetchDiscovery(ctx, httpClient, config.Issuer, config.DiscoveryURL)
	if err != nil {
		return nil, err
	}

	cfg := config.Config
	cfg.Provider, err = doc.Provider("")
	if err != nil {
		return nil, err
	}
	if cfg.IDToken.Issuer == "" {
		cfg.IDToken.Issuer = doc.Issuer
	}

	return NewClient(&cfg)
}

// Init restores the session of sub. A redirect the client was configured
// with is processed first: a redirect another process is waiting for is
// handed over and reported as session.ErrLoginContinuedInParent, any other
// is completed here. A nil result means there is no session.
func (c *Client) Init(ctx context.Context, sub string) (*session.Restored, error) {
	if c.ctx.Err() != nil {
		return nil, ErrClientClosed
	}

	c.mu.Lock()
	params := c.callback
	c.callback = nil
	c.mu.Unlock()

	if params != nil {
		return c.complete(ctx, params)
	}

	if sub == "" {
		return nil, nil
	}

	ts, err := c.sessions.get(ctx, sub)
	if errors.Is(err, ErrSessionNotFound) {
		c.log.WithField("sub", sub).Debug("No stored session")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &session.Restored{Agent: c.newAgent(ts)}, nil
}

// complete processes a redirect received by this process.
func (c *Client) complete(ctx context.Context, params url.Values) (*session.Restored, error) {
	state := params.Get("state")
	if state == "" {
		return nil, fmt.Errorf("%w: redirect has no state", ErrAuthorizationFailed)
	}

	pending, err := c.states.get(ctx, state)
	if err != nil {
		return nil, err
	}

	if pending.Handoff {
		if err := c.states.deliver(ctx, state, params); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("oauth: redirect delivered to waiting process: %w", session.ErrLoginContinuedInParent)
	}

	defer c.states.delete(context.WithoutCancel(ctx), state)

	if err := authorizationError(params); err != nil {
		return nil, err
	}

	agent, err := c.exchange(ctx, params.Get("code"), pending.Verifier)
	if err != nil {
		return nil, err
	}

	return &session.Restored{Agent: agent, Callback: true, State: pending.AppState}, nil
}

// SignIn runs the authorization code flow. input is sent as login_hint.
func (c *Client) SignIn(ctx context.Context, input string, opts *session.AuthorizeOptions) (session.Agent, error) {
	if c.ctx.Err() != nil {
		return nil, ErrClientClosed
	}

	pending := &pendingAuthorization{Verifier: oauth2.GenerateVerifier()}
	if opts != nil {
		pending.AppState = opts.State
	}
	if _, ok := c.config.Authorizer.(*HandoffAuthorizer); ok {
		pending.Handoff = true
	}

	state, err := c.states.create(ctx, pending)
	if err != nil {
		return nil, err
	}
	defer c.states.delete(context.WithoutCancel(ctx), state)

	req := &AuthorizationRequest{
		URL:         c.flows.authCodeURL(state, pending.Verifier, input, opts),
		State:       state,
		RedirectURL: c.config.RedirectURL,
	}

	c.log.WithField("input", input).Debug("Starting authorization")

	params, err := c.config.Authorizer.Authorize(ctx, req)
	if err != nil {
		return nil, err
	}

	if params.Get("state") != state {
		return nil, ErrStateMismatch
	}
	if err := authorizationError(params); err != nil {
		return nil, err
	}

	return c.exchange(ctx, params.Get("code"), pending.Verifier)
}

// exchange redeems code, stores the session and returns its agent.
func (c *Client) exchange(ctx context.Context, code, verifier string) (*Agent, error) {
	tok, err := c.flows.exchange(ctx, code, verifier)
	if err != nil {
		return nil, err
	}

	sub, iss, err := c.ids.subject(ctx, tok)
	if err != nil {
		return nil, err
	}

	ts := newTokenSet(tok, sub, iss)
	if err := c.sessions.put(ctx, ts); err != nil {
		return nil, err
	}

	c.log.WithField("sub", sub).Info("Signed in")
	return c.newAgent(ts), nil
}

// Subscribe registers handler for event until ctx is done.
func (c *Client) Subscribe(ctx context.Context, event session.EventName, handler func(session.Event)) {
	c.events.subscribe(ctx, event, handler)
}

// Close stops background key refresh. Stored sessions are kept.
func (c *Client) Close() {
	c.cancel()
}

// authorizationError reports an error redirect.
func authorizationError(params url.Values) error {
	code := params.Get("error")
	if code == "" {
		return nil
	}
	if desc := params.Get("error_description"); desc != "" {
		return fmt.Errorf("%w: %s: %s", ErrAuthorizationFailed, code, desc)
	}
	return fmt.Errorf("%w: %s", ErrAuthorizationFailed, code)
}
