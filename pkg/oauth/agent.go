package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/jeremyhahn/go-oauthsession/pkg/session"
	"golang.org/x/oauth2"
)

// Agent is one signed-in session. It implements session.Agent.
type Agent struct {
	client *Client
	sub    string

	// refreshMu serializes refreshes; mu guards token.
	refreshMu sync.Mutex
	mu        sync.Mutex
	token     *TokenSet
}

var _ session.Agent = (*Agent)(nil)

func (c *Client) newAgent(ts *TokenSet) *Agent {
	return &Agent{client: c, sub: ts.Subject, token: ts}
}

// Sub returns the session's subject.
func (a *Agent) Sub() string {
	return a.sub
}

// Token returns a copy of the current credentials.
func (a *Agent) Token() *TokenSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token.clone()
}

// HTTPClient returns a client that authorizes requests with the session's
// access token, refreshing it as needed.
func (a *Agent) HTTPClient(ctx context.Context) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client.httpClient)
	return oauth2.NewClient(ctx, &agentTokenSource{ctx: ctx, agent: a})
}

// RefreshIfNeeded refreshes the access token when it is within the
// configured margin of expiry. A rejected refresh token deletes the stored
// session and emits session.EventDeleted.
func (a *Agent) RefreshIfNeeded(ctx context.Context) error {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	current := a.Token()
	if !current.NeedsRefresh(a.client.config.RefreshMargin) {
		return nil
	}
	if current.RefreshToken == "" {
		if current.Expired() {
			return fmt.Errorf("%w: token expired and no refresh token", ErrRefreshFailed)
		}
		return nil
	}

	tok, err := a.client.flows.refresh(ctx, current.RefreshToken)
	if errors.Is(err, ErrSessionRevoked) {
		a.client.log.WithError(err).WithField("sub", a.sub).Warn("Refresh token rejected, deleting session")
		a.discard(context.WithoutCancel(ctx), err)
		return err
	}
	if err != nil {
		return err
	}

	next := current.merge(tok)
	if err := a.client.sessions.put(ctx, next); err != nil {
		return err
	}

	a.mu.Lock()
	a.token = next
	a.mu.Unlock()

	a.client.log.WithField("sub", a.sub).WithField("expires_in", next.ExpiresIn()).Debug("Refreshed token")
	return nil
}

// SignOut revokes the session's tokens and deletes the stored session. The
// session is deleted and session.EventDeleted emitted even when revocation
// fails; the revocation error is returned.
func (a *Agent) SignOut(ctx context.Context) error {
	current := a.Token()

	var errs []error
	if current.RefreshToken != "" {
		if err := a.client.flows.revoke(ctx, current.RefreshToken, "refresh_token"); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.client.flows.revoke(ctx, current.AccessToken, "access_token"); err != nil {
		errs = append(errs, err)
	}

	a.discard(context.WithoutCancel(ctx), nil)
	return errors.Join(errs...)
}

// discard deletes the stored session and notifies subscribers.
func (a *Agent) discard(ctx context.Context, cause error) {
	if err := a.client.sessions.delete(ctx, a.sub); err != nil {
		a.client.log.WithError(err).WithField("sub", a.sub).Warn("Failed to delete session")
	}
	a.client.events.emit(session.EventDeleted, session.Event{Sub: a.sub, Cause: cause})
}

type agentTokenSource struct {
	ctx   context.Context
	agent *Agent
}

func (s *agentTokenSource) Token() (*oauth2.Token, error) {
	if err := s.agent.RefreshIfNeeded(s.ctx); err != nil {
		return nil, err
	}
	return s.agent.Token().OAuth2(), nil
}
