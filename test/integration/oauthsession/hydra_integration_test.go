//go:build integration

package oauthsession_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/jeremyhahn/go-oauthsession/pkg/api"
	"github.com/jeremyhahn/go-oauthsession/pkg/oauth"
	"github.com/jeremyhahn/go-oauthsession/pkg/session"
	"github.com/jeremyhahn/go-oauthsession/pkg/store"
)

const (
	hydraPublicURL = "http://127.0.0.1:4444"
	hydraAdminURL  = "http://127.0.0.1:4445"

	testSubject     = "integration-user"
	testRedirectURL = "http://127.0.0.1:5555/callback"
)

// getAuthCodeClient returns a public client registered in Hydra with
// testRedirectURL, the authorization_code and refresh_token grants and
// token_endpoint_auth_method "none".
func getAuthCodeClient(t *testing.T) string {
	t.Helper()
	clientID := os.Getenv("TEST_OAUTH_AUTHCODE_CLIENT_ID")
	if clientID == "" {
		clientID = "test-authcode-client"
	}
	return clientID
}

// hydraAuthorizer approves authorization requests through Hydra's admin API
// instead of a browser.
func hydraAuthorizer(t *testing.T) oauth.Authorizer {
	return oauth.AuthorizerFunc(func(ctx context.Context, req *oauth.AuthorizationRequest) (url.Values, error) {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		browser := &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}

		// Authorization endpoint -> login challenge
		loginURL, err := follow(ctx, browser, req.URL)
		if err != nil {
			return nil, err
		}
		redirect, err := accept(ctx, "login", challenge(loginURL, "login_challenge"), map[string]interface{}{
			"subject":  testSubject,
			"remember": false,
		})
		if err != nil {
			return nil, err
		}

		// Login verifier -> consent challenge
		consentURL, err := follow(ctx, browser, redirect)
		if err != nil {
			return nil, err
		}
		redirect, err = accept(ctx, "consent", challenge(consentURL, "consent_challenge"), map[string]interface{}{
			"grant_scope": []string{"openid", "offline", "offline_access"},
			"remember":    false,
		})
		if err != nil {
			return nil, err
		}

		// Consent verifier -> redirect_uri
		callback, err := follow(ctx, browser, redirect)
		if err != nil {
			return nil, err
		}
		u, err := url.Parse(callback)
		if err != nil {
			return nil, err
		}
		t.Logf("Redirected to %s", u.Path)
		return u.Query(), nil
	})
}

func follow(ctx context.Context, client *http.Client, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("expected redirect from %s, got status %d", target, resp.StatusCode)
	}
	return location, nil
}

func challenge(rawURL, name string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(name)
}

func accept(ctx context.Context, flow, challenge string, body map[string]interface{}) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/admin/oauth2/auth/requests/%s/accept?%s_challenge=%s",
		hydraAdminURL, flow, flow, url.QueryEscape(challenge))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("accept %s: status %d", flow, resp.StatusCode)
	}

	var out struct {
		RedirectTo string `json:"redirect_to"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.RedirectTo, nil
}

func newHydraClient(t *testing.T, backend store.Backend) *oauth.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := oauth.LoadClient(ctx, &oauth.LoadConfig{
		Issuer: hydraPublicURL + "/",
		Config: oauth.Config{
			ClientID:    getAuthCodeClient(t),
			RedirectURL: testRedirectURL,
			Scopes:      []string{"openid", "offline"},
			Backend:     backend,
			Authorizer:  hydraAuthorizer(t),
			Timeout:     10 * time.Second,
		},
	})
	if err != nil {
		t.Fatalf("Failed to load client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

// TestHydra_Discovery checks the discovery document Hydra publishes.
func TestHydra_Discovery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doc, err := oauth.FetchDiscovery(ctx, http.DefaultClient, hydraPublicURL+"/", "")
	if err != nil {
		t.Fatalf("Failed to fetch discovery document: %v", err)
	}
	if doc.Issuer != hydraPublicURL+"/" {
		t.Errorf("Expected issuer '%s', got '%s'", hydraPublicURL+"/", doc.Issuer)
	}
	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" {
		t.Error("Discovery document missing endpoints")
	}
	if doc.JWKSURI == "" {
		t.Error("Discovery document missing jwks_uri")
	}
}

// TestHydra_SessionLifecycle signs in, restores the session in a second
// manager and signs out.
func TestHydra_SessionLifecycle(t *testing.T) {
	backend := store.NewMemory()
	subjects := store.NewSubjectStore(backend)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// First run: sign in
	m1 := session.NewManager(subjects)
	defer m1.Close()
	m1.SetClient(newHydraClient(t, backend))

	svc1, _ := api.NewService(api.Config{Manager: m1})
	status, err := svc1.Ready(ctx)
	if err != nil {
		t.Fatalf("Ready failed: %v", err)
	}
	if status.IsLoggedIn {
		t.Fatal("Expected no session before sign-in")
	}

	if err := svc1.Login(ctx, api.LoginRequest{State: "return-to"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if got := svc1.Status().Subject; got != testSubject {
		t.Fatalf("Expected subject '%s', got '%s'", testSubject, got)
	}
	m1.Close()

	// Second run: restore from the shared backend
	m2 := session.NewManager(subjects)
	defer m2.Close()
	m2.SetClient(newHydraClient(t, backend))

	svc2, _ := api.NewService(api.Config{Manager: m2})
	status, err = svc2.Ready(ctx)
	if err != nil {
		t.Fatalf("Ready failed: %v", err)
	}
	if !status.IsLoggedIn || status.Subject != testSubject {
		t.Fatalf("Expected restored session for '%s', got %+v", testSubject, status)
	}

	agent, err := svc2.Agent(true)
	if err != nil {
		t.Fatalf("Expected agent: %v", err)
	}
	if err := agent.RefreshIfNeeded(ctx); err != nil {
		t.Errorf("RefreshIfNeeded failed: %v", err)
	}

	svc2.Logout(ctx)
	if svc2.Status().IsLoggedIn {
		t.Error("Expected signed out after Logout")
	}
	if _, ok := subjects.Load(); ok {
		t.Error("Expected stored subject to be cleared")
	}
}

// TestHydra_RedisBackend runs the sign-in against a redis backend when
// TEST_REDIS_ADDR is set.
func TestHydra_RedisBackend(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	backend, err := store.Open(&store.Config{
		Backend:   store.BackendRedis,
		RedisAddr: addr,
		Prefix:    fmt.Sprintf("oauthsession-it-%d:", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("Failed to open redis store: %v", err)
	}
	defer backend.(*store.Redis).Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := newHydraClient(t, backend)
	agent, err := client.SignIn(ctx, "", nil)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	restored, err := client.Init(ctx, agent.Sub())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if restored == nil || restored.Agent.Sub() != testSubject {
		t.Fatalf("Expected restored session for '%s'", testSubject)
	}

	if err := agent.SignOut(ctx); err != nil {
		t.Errorf("SignOut failed: %v", err)
	}
}
