package session

import (
	"context"
	"errors"
)

var (
	// ErrLoginContinuedInParent indicates that an authorization redirect
	// was received by this process but belongs to a flow that another
	// process is waiting on. It is expected and never surfaced.
	ErrLoginContinuedInParent = errors.New("session: login continued in parent")

	// ErrLoading indicates sign-in was attempted while initialization or
	// another sign-in is running.
	ErrLoading = errors.New("session: already loading")

	// ErrNoClient indicates sign-in was attempted before a client exists.
	ErrNoClient = errors.New("session: client not initialized")

	// ErrBusy indicates sign-in was attempted while a sign-out is running.
	ErrBusy = errors.New("session: sign-out in progress")

	// ErrSuperseded indicates the client was replaced while sign-in was
	// running. The result was discarded.
	ErrSuperseded = errors.New("session: superseded by a new client")

	// ErrClosed indicates the manager has been closed.
	ErrClosed = errors.New("session: manager closed")

	// ErrNoAgent indicates the client reported success without an agent.
	ErrNoAgent = errors.New("session: client returned no agent")
)

// Agent is one authenticated session bound to a subject.
type Agent interface {
	// Sub returns the stable subject identifier.
	Sub() string

	// SignOut revokes the session with the remote side.
	SignOut(ctx context.Context) error

	// RefreshIfNeeded refreshes credentials when they are close to expiry.
	RefreshIfNeeded(ctx context.Context) error
}

// Restored is the outcome of a successful Client.Init that produced an
// agent.
type Restored struct {
	Agent Agent

	// Callback is true when the agent comes from a completed authorization
	// redirect rather than from a stored session.
	Callback bool

	// State is the application state carried through the redirect.
	State string
}

// AuthorizeOptions tune an interactive sign-in.
type AuthorizeOptions struct {
	// State is opaque application state returned with the signed-in agent.
	State string

	// Scope overrides the configured scopes.
	Scope string

	// Prompt is passed as the prompt authorization parameter.
	Prompt string

	// Display is passed as the display authorization parameter.
	Display string
}

// EventName names a client event.
type EventName string

// EventDeleted is emitted when a stored session is removed, whether by
// sign-out, by a failed refresh or by revocation.
const EventDeleted EventName = "deleted"

// Event is the payload of a client event.
type Event struct {
	Sub   string
	Cause error
}

// Client is the authorization client collaborator.
type Client interface {
	// Init restores the session of sub, or completes a pending
	// authorization redirect. A nil result means no session.
	Init(ctx context.Context, sub string) (*Restored, error)

	// SignIn runs an interactive sign-in for input.
	SignIn(ctx context.Context, input string, opts *AuthorizeOptions) (Agent, error)

	// Subscribe registers handler for event until ctx is done. The handler
	// is never invoked before Subscribe returns.
	Subscribe(ctx context.Context, event EventName, handler func(Event))
}

// SubjectStore persists the current subject outside process memory.
type SubjectStore interface {
	Save(subject string)
	Load() (string, bool)
	Clear()
}

// Callbacks observe session transitions. Each is optional and invoked
// outside the manager lock.
type Callbacks struct {
	// OnRestored fires when initialization restores a stored session.
	OnRestored func(agent Agent)

	// OnSignedIn fires after an explicit sign-in, or when initialization
	// completes an authorization redirect.
	OnSignedIn func(agent Agent, state string)

	// OnSignedOut fires after sign-out or remote revocation.
	OnSignedOut func()
}

// Phase is the manager's state machine position.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLoading
	PhaseLoggedOut
	PhaseLoggedIn
	PhaseSigningIn
	PhaseSigningOut
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoading:
		return "loading"
	case PhaseLoggedOut:
		return "logged_out"
	case PhaseLoggedIn:
		return "logged_in"
	case PhaseSigningIn:
		return "signing_in"
	case PhaseSigningOut:
		return "signing_out"
	default:
		return "unknown"
	}
}

// State is a consistent snapshot of the manager.
type State struct {
	Client Client
	Agent  Agent

	// Loading is true while there is no live client, or initialization or
	// sign-in is running.
	Loading bool

	Phase Phase
}

// LoggedIn reports whether an agent is live.
func (s State) LoggedIn() bool {
	return s.Agent != nil
}

// Ready reports whether initialization has settled with a live client.
func (s State) Ready() bool {
	return s.Client != nil && !s.Loading
}

// Subject returns the live agent's subject, or "".
func (s State) Subject() string {
	if s.Agent == nil {
		return ""
	}
	return s.Agent.Sub()
}
