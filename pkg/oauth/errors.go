package oauth

import "errors"

var (
	// ErrInvalidConfiguration indicates the client configuration is invalid.
	ErrInvalidConfiguration = errors.New("oauth: invalid configuration")

	// ErrProviderNotSupported indicates the requested provider is not supported.
	ErrProviderNotSupported = errors.New("oauth: provider not supported")

	// ErrAuthorizationFailed indicates the authorization server redirected
	// back with an error, or without a code.
	ErrAuthorizationFailed = errors.New("oauth: authorization failed")

	// ErrStateNotFound indicates a redirect carried an unknown state.
	ErrStateNotFound = errors.New("oauth: authorization state not found")

	// ErrStateExpired indicates a redirect arrived after its state expired.
	ErrStateExpired = errors.New("oauth: authorization state expired")

	// ErrStateMismatch indicates a redirect does not belong to the request
	// that is waiting for it.
	ErrStateMismatch = errors.New("oauth: authorization state mismatch")

	// ErrTokenExchangeFailed indicates OAuth token exchange failed.
	ErrTokenExchangeFailed = errors.New("oauth: token exchange failed")

	// ErrRefreshFailed indicates a refresh grant failed.
	ErrRefreshFailed = errors.New("oauth: token refresh failed")

	// ErrRevocationFailed indicates the revocation endpoint rejected a request.
	ErrRevocationFailed = errors.New("oauth: token revocation failed")

	// ErrSessionNotFound indicates no stored session exists for a subject.
	ErrSessionNotFound = errors.New("oauth: session not found")

	// ErrSessionRevoked indicates the authorization server no longer accepts
	// the session's refresh token.
	ErrSessionRevoked = errors.New("oauth: session revoked")

	// ErrMissingSubject indicates a token response identified no subject.
	ErrMissingSubject = errors.New("oauth: missing subject")

	// ErrInvalidIDToken indicates the ID token is malformed or failed verification.
	ErrInvalidIDToken = errors.New("oauth: invalid id token")

	// ErrJWKSFetchFailed indicates JWKS retrieval failed.
	ErrJWKSFetchFailed = errors.New("oauth: jwks fetch failed")

	// ErrDiscoveryFailed indicates the discovery document could not be fetched.
	ErrDiscoveryFailed = errors.New("oauth: discovery failed")

	// ErrInvalidDiscovery indicates the discovery document is invalid or incomplete.
	ErrInvalidDiscovery = errors.New("oauth: invalid discovery document")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("oauth: client closed")
)
