package oauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testClientID = "test-client"

// testAuthServer is a minimal authorization server: PKCE code grants,
// refresh grants, revocation, JWKS and discovery.
type testAuthServer struct {
	*httptest.Server
	t   *testing.T
	key *rsa.PrivateKey

	// sub is returned next to the tokens unless idTokenOnly is set, in
	// which case it only appears in a signed ID token.
	sub         string
	idTokenOnly bool
	expiresIn   int

	rejectRefresh atomic.Bool
	revokeStatus  atomic.Int32

	mu         sync.Mutex
	codes      map[string]string
	nextCode   int
	revoked    []string
	issued     int
	refreshes  int
	lastVerify string
}

func newTestAuthServer(t *testing.T) *testAuthServer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	s := &testAuthServer{
		t:         t,
		key:       key,
		sub:       "did:plc:xyz",
		expiresIn: 3600,
		codes:     make(map[string]string),
	}
	s.revokeStatus.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/revoke", s.handleRevoke)
	mux.HandleFunc("/jwks", s.handleJWKS)
	mux.HandleFunc(oidcDiscoveryPath, s.handleDiscovery)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *testAuthServer) provider() Provider {
	p, _ := CustomProvider(ProviderConfig{
		ProviderName:       "test",
		AuthEndpoint:       s.URL + "/authorize",
		TokenEndpoint:      s.URL + "/token",
		JWKSEndpoint:       s.URL + "/jwks",
		RevocationEndpoint: s.URL + "/revoke",
		IssuerURL:          s.URL,
	})
	return p
}

// approve plays the user at the authorization endpoint and returns the
// redirect parameters.
func (s *testAuthServer) approve(authURL string) url.Values {
	u, err := url.Parse(authURL)
	if err != nil {
		s.t.Errorf("Invalid auth URL: %v", err)
		return nil
	}
	q := u.Query()

	if q.Get("code_challenge_method") != "S256" {
		s.t.Errorf("Expected code_challenge_method S256, got '%s'", q.Get("code_challenge_method"))
	}

	s.mu.Lock()
	s.nextCode++
	code := fmt.Sprintf("code-%d", s.nextCode)
	s.codes[code] = q.Get("code_challenge")
	s.mu.Unlock()

	return url.Values{"code": {code}, "state": {q.Get("state")}}
}

// authorizer approves every request.
func (s *testAuthServer) authorizer() Authorizer {
	return AuthorizerFunc(func(ctx context.Context, req *AuthorizationRequest) (url.Values, error) {
		return s.approve(req.URL), nil
	})
}

func (s *testAuthServer) revokedTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}

func (s *testAuthServer) verifier() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastVerify
}

func (s *testAuthServer) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

func (s *testAuthServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch r.FormValue("grant_type") {
	case "authorization_code":
		s.mu.Lock()
		challenge, ok := s.codes[r.FormValue("code")]
		delete(s.codes, r.FormValue("code"))
		s.lastVerify = r.FormValue("code_verifier")
		s.mu.Unlock()

		if !ok {
			writeOAuthError(w, "invalid_grant")
			return
		}
		sum := sha256.Sum256([]byte(r.FormValue("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != challenge {
			writeOAuthError(w, "invalid_grant")
			return
		}

	case "refresh_token":
		s.mu.Lock()
		s.refreshes++
		s.mu.Unlock()

		if s.rejectRefresh.Load() {
			writeOAuthError(w, "invalid_grant")
			return
		}

	default:
		writeOAuthError(w, "unsupported_grant_type")
		return
	}

	s.mu.Lock()
	s.issued++
	n := s.issued
	s.mu.Unlock()

	resp := map[string]interface{}{
		"access_token":  fmt.Sprintf("at-%d", n),
		"token_type":    "Bearer",
		"refresh_token": fmt.Sprintf("rt-%d", n),
		"expires_in":    s.expiresIn,
		"scope":         "openid profile",
	}
	if s.idTokenOnly {
		resp["id_token"] = s.signIDToken(s.sub, testClientID, time.Now().Add(time.Hour))
	} else {
		resp["sub"] = s.sub
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *testAuthServer) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.revoked = append(s.revoked, r.FormValue("token"))
	s.mu.Unlock()

	w.WriteHeader(int(s.revokeStatus.Load()))
}

func (s *testAuthServer) handleJWKS(w http.ResponseWriter, r *http.Request) {
	pub := s.key.PublicKey
	jwks := map[string]interface{}{
		"keys": []map[string]interface{}{
			{
				"kty": "RSA",
				"kid": "test-key-id",
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jwks)
}

func (s *testAuthServer) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	doc := Discovery{
		Issuer:                        s.URL,
		AuthorizationEndpoint:         s.URL + "/authorize",
		TokenEndpoint:                 s.URL + "/token",
		JWKSURI:                       s.URL + "/jwks",
		RevocationEndpoint:            s.URL + "/revoke",
		CodeChallengeMethodsSupported: []string{"S256"},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (s *testAuthServer) signIDToken(sub, aud string, exp time.Time) string {
	return s.signIDTokenWithKey(s.key, sub, aud, exp)
}

func (s *testAuthServer) signIDTokenWithKey(key *rsa.PrivateKey, sub, aud string, exp time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    s.URL,
		Audience:  jwt.ClaimStrings{aud},
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	token.Header["kid"] = "test-key-id"

	signed, err := token.SignedString(key)
	if err != nil {
		s.t.Fatalf("Failed to sign id token: %v", err)
	}
	return signed
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return string(data)
}

func writeOAuthError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// newTestConfig returns a config for s with an approving authorizer.
func newTestConfig(s *testAuthServer) *Config {
	return &Config{
		Provider:    s.provider(),
		ClientID:    testClientID,
		RedirectURL: "http://127.0.0.1:0/callback",
		Authorizer:  s.authorizer(),
	}
}

// newTestProvider creates a provider with only the given endpoints.
func newTestProvider(authURL, tokenURL string) Provider {
	prov, _ := CustomProvider(ProviderConfig{
		ProviderName:  "test",
		AuthEndpoint:  authURL,
		TokenEndpoint: tokenURL,
	})
	return prov
}
