package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"runtime"
	"strings"

	"github.com/jeremyhahn/go-oauthsession/pkg/api"
	"github.com/jeremyhahn/go-oauthsession/pkg/oauth"
	"github.com/jeremyhahn/go-oauthsession/pkg/resolver"
	"github.com/jeremyhahn/go-oauthsession/pkg/session"
	"github.com/jeremyhahn/go-oauthsession/pkg/store"
	"github.com/sirupsen/logrus"
)

// runtimeSession is everything a command needs to talk to the session
// manager.
type runtimeSession struct {
	service  *api.Service
	manager  *session.Manager
	resolver *resolver.Resolver
	backend  store.Backend

	// failed is closed with err set when the client cannot be built or
	// loaded.
	failed chan struct{}
	err    error
}

// openSession wires the configured backend, client and session manager.
// callback carries the redirect this process was started with, if any.
func openSession(config *Config, callback url.Values, cb session.Callbacks) (*runtimeSession, error) {
	log := logrus.WithField("component", "cli")

	storeCfg := config.StoreConfig()
	backend, err := store.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	subjects := store.NewSubjectStore(backend,
		store.WithTimeout(storeCfg.Timeout),
		store.WithLogger(logrus.WithField("component", "store")),
	)

	manager := session.NewManager(subjects,
		session.WithLogger(logrus.WithField("component", "session")),
		session.WithCallbacks(cb),
	)

	rs := &runtimeSession{
		manager: manager,
		backend: backend,
		failed:  make(chan struct{}),
	}
	rs.service, _ = api.NewService(api.Config{Manager: manager})

	rs.resolver = resolver.New(manager.SetClient,
		resolver.WithLogger(logrus.WithField("component", "resolver")),
		resolver.WithErrorHandler(func(err error) {
			log.WithError(err).Error("Failed to load client")
			rs.fail(err)
		}),
	)

	clientCfg, err := clientConfig(config, backend, callback)
	if err != nil {
		rs.Close()
		return nil, err
	}

	var src resolver.Source
	if config.Issuer != "" {
		src = &resolver.Loader{Load: func(ctx context.Context) (session.Client, error) {
			client, err := oauth.LoadClient(ctx, &oauth.LoadConfig{Config: *clientCfg, Issuer: config.Issuer})
			if err != nil {
				return nil, err
			}
			return client, nil
		}}
	} else {
		src = &resolver.Builder{Build: func() (session.Client, error) {
			client, err := oauth.NewClient(clientCfg)
			if err != nil {
				return nil, err
			}
			return client, nil
		}}
	}

	if err := rs.resolver.Resolve(src); err != nil {
		rs.Close()
		return nil, err
	}

	return rs, nil
}

// clientConfig builds the oauth client configuration. The provider is left
// unset when discovery is used.
func clientConfig(config *Config, backend store.Backend, callback url.Values) (*oauth.Config, error) {
	cfg := &oauth.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       config.Scopes,
		RedirectURL:  config.RedirectURL,
		Backend:      backend,
		Callback:     callback,
		Timeout:      config.Timeout,
		Logger:       logrus.WithField("component", "oauth"),
	}

	if config.Issuer == "" {
		provider, err := oauth.NewProvider(config.Provider)
		if err != nil {
			return nil, err
		}
		cfg.Provider = provider
	}

	var open oauth.Opener
	if config.Browser {
		open = openBrowser
	}

	switch strings.ToLower(config.Authorizer) {
	case "", "loopback":
		cfg.Authorizer = &oauth.LoopbackAuthorizer{Open: open, Logger: cfg.Logger}
	case "handoff":
		cfg.Authorizer = &oauth.HandoffAuthorizer{Open: open, Logger: cfg.Logger}
	default:
		return nil, fmt.Errorf("%w: unknown authorizer %q", oauth.ErrInvalidConfiguration, config.Authorizer)
	}

	return cfg, nil
}

func (rs *runtimeSession) fail(err error) {
	select {
	case <-rs.failed:
	default:
		rs.err = err
		close(rs.failed)
	}
}

// ready waits for initialization to settle, or for the client to fail.
func (rs *runtimeSession) ready(ctx context.Context) (api.Status, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	go func() {
		select {
		case <-rs.failed:
			cancel(rs.err)
		case <-ctx.Done():
		}
	}()

	status, err := rs.service.Ready(ctx)
	if err != nil {
		return status, context.Cause(ctx)
	}
	return status, nil
}

// Close tears down the manager, the client and the backend.
func (rs *runtimeSession) Close() {
	client := rs.manager.State().Client

	rs.resolver.Close()
	rs.manager.Close()

	if c, ok := client.(*oauth.Client); ok {
		c.Close()
	}
	if closer, ok := rs.backend.(io.Closer); ok {
		closer.Close()
	}
}

func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start"}
	case "darwin":
		cmd = "open"
	default: // linux, freebsd, openbsd, netbsd
		cmd = "xdg-open"
	}
	args = append(args, url)
	return exec.Command(cmd, args...).Start()
}
