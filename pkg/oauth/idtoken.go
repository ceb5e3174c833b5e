package oauth

import (
	"context"
	"fmt"
	"sync"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var signingMethods = []string{
	"RS256", "RS384", "RS512",
	"ES256", "ES384", "ES512",
	"PS256", "PS384", "PS512",
}

// idTokenVerifier determines the subject of a token response. Servers that
// return "sub" alongside the tokens are trusted directly; otherwise the
// subject comes from the ID token, verified against the JWKS when one is
// configured.
type idTokenVerifier struct {
	config IDTokenConfig

	// ctx bounds the JWKS background refresh.
	ctx context.Context

	mu   sync.Mutex
	jwks keyfunc.Keyfunc
}

func newIDTokenVerifier(ctx context.Context, config IDTokenConfig) *idTokenVerifier {
	return &idTokenVerifier{config: config, ctx: ctx}
}

// subject returns the subject and issuer of tok.
func (v *idTokenVerifier) subject(ctx context.Context, tok *oauth2.Token) (sub, iss string, err error) {
	if s, ok := tok.Extra("sub").(string); ok && s != "" {
		iss, _ = tok.Extra("iss").(string)
		return s, iss, nil
	}

	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return "", "", ErrMissingSubject
	}

	claims, err := v.parse(ctx, raw)
	if err != nil {
		return "", "", err
	}
	if claims.Subject == "" {
		return "", "", fmt.Errorf("%w: id token has no sub claim", ErrMissingSubject)
	}

	return claims.Subject, claims.Issuer, nil
}

// parse decodes raw and, when a JWKS is configured, verifies its signature,
// issuer, audience and lifetime.
func (v *idTokenVerifier) parse(ctx context.Context, raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}

	if v.config.JWKSURL == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
		}
		return claims, nil
	}

	jwks, err := v.keys(ctx)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(signingMethods),
		jwt.WithLeeway(v.config.ClockSkew),
		jwt.WithIssuedAt(),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	token, err := jwt.ParseWithClaims(raw, claims, jwks.Keyfunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidIDToken
	}

	return claims, nil
}

// keys initializes the JWKS key set on first use.
func (v *idTokenVerifier) keys(ctx context.Context) (keyfunc.Keyfunc, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.jwks != nil {
		return v.jwks, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jwks, err := keyfunc.NewDefaultCtx(v.ctx, []string{v.config.JWKSURL})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}

	v.jwks = jwks
	return jwks, nil
}
