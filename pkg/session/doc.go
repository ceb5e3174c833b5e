// Package session manages the lifecycle of one OAuth client and at most one
// authenticated agent on behalf of an interactive application.
//
// A Manager is driven by the application through three entry points:
//
//	m := session.NewManager(subjects, session.WithCallbacks(session.Callbacks{
//	    OnSignedIn:  func(a session.Agent, state string) { ... },
//	    OnSignedOut: func() { ... },
//	}))
//	defer m.Close()
//
//	m.SetClient(client)                        // start or replace the client
//	err := m.SignIn(ctx, "alice.example", nil) // interactive sign-in
//	m.SignOut(ctx)                             // release the live agent
//
// # States
//
// The manager moves between the phases Uninitialized, Loading, LoggedOut,
// LoggedIn, SigningIn and SigningOut. State returns a consistent snapshot and
// Wait blocks until a predicate over the snapshot holds.
//
// # Client replacement
//
// SetClient ignores a client identical to the last one it processed. Any
// other value cancels initialization, sign-in and subscriptions tied to the
// previous client before the new client is initialized. Results that arrive
// for a replaced client are discarded, so only the latest client can change
// the state.
//
// # Persisted subject
//
// Once a live client has finished loading, the subject of the live agent is
// written to the SubjectStore, and the stored subject is removed when there
// is no agent. On the next start the stored subject is handed to
// Client.Init to restore the session.
//
// # Revocation
//
// While an agent is live the manager listens for EventDeleted on the client.
// A deleted event for the live subject releases the agent without calling
// the remote side. A failed remote sign-out still releases the agent
// locally.
package session
