// Package oauth implements session.Client on top of the OAuth 2.0
// authorization code flow with PKCE.
//
// A Client stores one token set per subject in a store.Backend and hands
// out an Agent for each signed-in session. Agents refresh their access
// token before it expires, revoke their tokens on sign-out, and emit
// session.EventDeleted whenever their stored session goes away.
//
// Example - Sign in from a CLI:
//
//	client, err := oauth.NewClient(&oauth.Config{
//	    Provider:    oauth.Google(),
//	    ClientID:    "client-id",
//	    RedirectURL: "http://127.0.0.1:8085/callback",
//	    Scopes:      []string{"openid", "profile"},
//	    Backend:     backend,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	agent, err := client.SignIn(ctx, "alice@example.com", nil)
//
// # Receiving the redirect
//
// The Authorizer decides how the redirect comes back:
//
//   - LoopbackAuthorizer listens on the redirect URL's host and port.
//   - HandoffAuthorizer waits for another process, started with the
//     redirect, to deliver it through the shared backend. That process
//     passes the redirect as Config.Callback and its Init reports
//     session.ErrLoginContinuedInParent.
//   - AuthorizerFunc adapts anything else.
//
// A redirect passed as Config.Callback whose request was not started by a
// HandoffAuthorizer is completed by Init itself and reported with
// Restored.Callback set.
//
// # Discovery
//
// LoadClient reads the issuer's OpenID Connect or RFC 8414 metadata
// document instead of using a preset provider.
//
// # Client metadata
//
// MetadataHandler serves the client's own metadata document. Loopback
// origins are rewritten the way native clients register them: the client
// URI becomes http://localhost and redirect URIs use the loopback IP.
//
// # Pre-configured Providers
//
// The package includes pre-configured providers for:
//   - Google() - Google OAuth
//   - Microsoft() - Microsoft Azure AD
//   - GitHub() - GitHub OAuth
//   - Okta(domain) - Okta
//   - Auth0(domain) - Auth0
//   - Keycloak(baseURL, realm) - Keycloak
//
// NewProvider builds one of these, or a custom provider, from
// configuration.
//
// # Security Considerations
//
//   - Always use TLS in production (enabled by default)
//   - PKCE (S256) is used for every authorization request
//   - ID tokens are verified against the provider's JWKS when one is known
//   - Never log client secrets or tokens
package oauth
