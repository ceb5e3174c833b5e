package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/jeremyhahn/go-oauthsession/pkg/store"
	"github.com/sirupsen/logrus"
)

// AuthorizationRequest describes one pending authorization.
type AuthorizationRequest struct {
	// URL is where the user approves the request.
	URL string

	// State identifies the request in the redirect.
	State string

	// RedirectURL is the registered callback the server redirects to.
	RedirectURL string
}

// Authorizer takes the user through an authorization request and returns
// the query parameters of the resulting redirect.
type Authorizer interface {
	Authorize(ctx context.Context, req *AuthorizationRequest) (url.Values, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, req *AuthorizationRequest) (url.Values, error)

// Authorize executes the underlying function.
func (f AuthorizerFunc) Authorize(ctx context.Context, req *AuthorizationRequest) (url.Values, error) {
	return f(ctx, req)
}

// Opener shows an authorization URL to the user, typically by launching a
// browser.
type Opener func(authURL string) error

func (o Opener) open(log *logrus.Entry, authURL string) error {
	if o == nil {
		log.WithField("url", authURL).Info("Open this URL to continue signing in")
		return nil
	}
	return o(authURL)
}

// LoopbackAuthorizer receives the redirect on a local HTTP listener bound to
// the redirect URL's host and port.
type LoopbackAuthorizer struct {
	Open   Opener
	Logger *logrus.Entry
}

const loopbackPage = `<!DOCTYPE html>
<html><body><p>Sign-in complete. You can close this window.</p></body></html>
`

// Authorize implements Authorizer.
func (a *LoopbackAuthorizer) Authorize(ctx context.Context, req *AuthorizationRequest) (url.Values, error) {
	log := a.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger()).WithField("component", "oauth")
	}

	redirect, err := url.Parse(req.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("%w: redirect_url: %v", ErrInvalidConfiguration, err)
	}

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("oauth: failed to listen for redirect: %w", err)
	}

	results := make(chan url.Values, 1)
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()
		if params.Get("state") != req.State {
			http.Error(w, "unknown authorization request", http.StatusBadRequest)
			return
		}

		select {
		case results <- params:
		default:
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, loopbackPage)
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("Redirect listener stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", ln.Addr().String()).Debug("Waiting for authorization redirect")

	if err := a.Open.open(log, req.URL); err != nil {
		return nil, fmt.Errorf("oauth: failed to open authorization url: %w", err)
	}

	select {
	case params := <-results:
		return params, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HandoffAuthorizer waits for the redirect to be delivered through a shared
// backend by the process that receives it, such as a URL handler started by
// the browser. That process completes its own Init with
// session.ErrLoginContinuedInParent.
type HandoffAuthorizer struct {
	// Backend is where redirects are delivered. Defaults to the client's
	// backend.
	Backend store.Backend

	// Interval is the polling interval. Default: 500ms
	Interval time.Duration

	Open   Opener
	Logger *logrus.Entry
}

// Authorize implements Authorizer.
func (a *HandoffAuthorizer) Authorize(ctx context.Context, req *AuthorizationRequest) (url.Values, error) {
	if a.Backend == nil {
		return nil, fmt.Errorf("%w: handoff authorizer has no backend", ErrInvalidConfiguration)
	}

	log := a.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger()).WithField("component", "oauth")
	}

	interval := a.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	if err := a.Open.open(log, req.URL); err != nil {
		return nil, fmt.Errorf("oauth: failed to open authorization url: %w", err)
	}

	states := newStateStore(a.Backend, 0)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		params, ok, err := states.take(ctx, req.State)
		if err != nil {
			return nil, err
		}
		if ok {
			return params, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
