package oauth

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// TokenSet is the stored credential set of one session.
type TokenSet struct {
	// Subject is the stable identifier of the authenticated principal.
	Subject string `json:"sub"`

	// Issuer is the authorization server that issued the tokens.
	Issuer string `json:"iss,omitempty"`

	// AccessToken is the OAuth access token.
	AccessToken string `json:"access_token"`

	// TokenType is the type of token (usually "Bearer").
	TokenType string `json:"token_type,omitempty"`

	// RefreshToken is used to obtain new access tokens (optional).
	RefreshToken string `json:"refresh_token,omitempty"`

	// IDToken is the OpenID Connect ID token (optional).
	IDToken string `json:"id_token,omitempty"`

	// Scopes are the scopes granted to this token.
	Scopes []string `json:"scopes,omitempty"`

	// Expiry is when the access token expires.
	Expiry time.Time `json:"expiry,omitempty"`
}

// newTokenSet converts a token response for sub.
func newTokenSet(tok *oauth2.Token, sub, iss string) *TokenSet {
	ts := &TokenSet{
		Subject:      sub,
		Issuer:       iss,
		AccessToken:  tok.AccessToken,
		TokenType:    tok.Type(),
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}

	if raw, ok := tok.Extra("id_token").(string); ok {
		ts.IDToken = raw
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		ts.Scopes = splitScopes(scope)
	}

	return ts
}

// merge applies a refresh response. Fields the server omitted keep their
// previous values.
func (t *TokenSet) merge(tok *oauth2.Token) *TokenSet {
	next := *t
	next.AccessToken = tok.AccessToken
	next.TokenType = tok.Type()
	next.Expiry = tok.Expiry

	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		next.IDToken = raw
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		next.Scopes = splitScopes(scope)
	}

	return &next
}

// Valid returns true if the token is not expired.
func (t *TokenSet) Valid() bool {
	return t.AccessToken != "" && !t.Expired()
}

// Expired returns true if the token has expired.
func (t *TokenSet) Expired() bool {
	if t.Expiry.IsZero() {
		return false
	}
	return time.Now().After(t.Expiry)
}

// ExpiresIn returns the duration until the token expires.
// Returns 0 if the token is already expired or has no expiry.
func (t *TokenSet) ExpiresIn() time.Duration {
	if t.Expiry.IsZero() {
		return 0
	}
	d := time.Until(t.Expiry)
	if d < 0 {
		return 0
	}
	return d
}

// NeedsRefresh reports whether the token expires within margin.
func (t *TokenSet) NeedsRefresh(margin time.Duration) bool {
	if t.AccessToken == "" {
		return true
	}
	if t.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(t.Expiry)
}

// OAuth2 returns the token in golang.org/x/oauth2 form.
func (t *TokenSet) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

func (t *TokenSet) clone() *TokenSet {
	c := *t
	c.Scopes = append([]string(nil), t.Scopes...)
	return &c
}

// splitScopes splits a space-separated scope string.
func splitScopes(scope string) []string {
	fields := strings.Fields(scope)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
