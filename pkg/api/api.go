package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-oauthsession/pkg/session"
)

// Status is what a consumer renders for the current session.
type Status struct {
	// IsLoggedIn is true while an agent is live.
	IsLoggedIn bool

	// IsValidatingAuth is true while there is no client yet, or
	// initialization or a sign-in is running.
	IsValidatingAuth bool

	// Subject is the live agent's subject, or "".
	Subject string

	Phase session.Phase
}

// Config contains the session manager the service exposes.
type Config struct {
	Manager *session.Manager
}

// Service is the consumer view of a session manager.
type Service struct {
	manager *session.Manager
}

var (
	// ErrNoManager indicates the service was initialised without a session manager.
	ErrNoManager = errors.New("api: no session manager configured")
	// ErrNotAuthenticated indicates an agent was required but none is live.
	ErrNotAuthenticated = errors.New("api: not authenticated")
	// ErrInvalidPrompt indicates a prompt value the authorization server does not define.
	ErrInvalidPrompt = errors.New("api: invalid prompt")
)

// NewService builds a Service from the supplied configuration.
func NewService(cfg Config) (*Service, error) {
	if cfg.Manager == nil {
		return nil, ErrNoManager
	}
	return &Service{manager: cfg.Manager}, nil
}

// Status returns a snapshot of the session.
func (s *Service) Status() Status {
	return statusOf(s.manager.State())
}

// Ready waits until initialization has settled and returns the resulting
// status.
func (s *Service) Ready(ctx context.Context) (Status, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := s.manager.Wait(ctx, session.State.Ready)
	return statusOf(st), err
}

// Agent returns the live agent. When required is false a missing agent is
// reported as nil without error.
func (s *Service) Agent(required bool) (session.Agent, error) {
	agent := s.manager.State().Agent
	if agent == nil && required {
		return nil, ErrNotAuthenticated
	}
	return agent, nil
}

// LoginRequest contains the identifier to sign in and optional
// authorization parameters.
type LoginRequest struct {
	Identifier string
	State      string
	Scope      string
	Prompt     string
	Display    string
}

var prompts = map[string]struct{}{
	"":               {},
	"none":           {},
	"login":          {},
	"consent":        {},
	"select_account": {},
	"create":         {},
}

// Login runs an interactive sign-in. Errors from the session manager,
// including the client's own failures, are returned unchanged.
func (s *Service) Login(ctx context.Context, req LoginRequest) error {
	if s == nil || s.manager == nil {
		return ErrNoManager
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := prompts[req.Prompt]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPrompt, req.Prompt)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return s.manager.SignIn(ctx, strings.TrimSpace(req.Identifier), &session.AuthorizeOptions{
		State:   req.State,
		Scope:   req.Scope,
		Prompt:  req.Prompt,
		Display: req.Display,
	})
}

// Logout signs the live agent out. It never fails; without an agent it
// does nothing.
func (s *Service) Logout(ctx context.Context) {
	if s == nil || s.manager == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.manager.SignOut(ctx)
}

func statusOf(st session.State) Status {
	return Status{
		IsLoggedIn:       st.LoggedIn(),
		IsValidatingAuth: st.Loading,
		Subject:          st.Subject(),
		Phase:            st.Phase,
	}
}
