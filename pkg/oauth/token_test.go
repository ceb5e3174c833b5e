package oauth

import (
	"encoding/json"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestTokenSet_Valid(t *testing.T) {
	tests := []struct {
		name  string
		token *TokenSet
		want  bool
	}{
		{
			name: "valid token",
			token: &TokenSet{
				AccessToken: "test-token",
				Expiry:      time.Now().Add(1 * time.Hour),
			},
			want: true,
		},
		{
			name: "expired token",
			token: &TokenSet{
				AccessToken: "test-token",
				Expiry:      time.Now().Add(-1 * time.Hour),
			},
			want: false,
		},
		{
			name: "token without expiry",
			token: &TokenSet{
				AccessToken: "test-token",
			},
			want: true,
		},
		{
			name:  "no access token",
			token: &TokenSet{Expiry: time.Now().Add(time.Hour)},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.Valid(); got != tt.want {
				t.Errorf("TokenSet.Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenSet_ExpiresIn(t *testing.T) {
	if got := (&TokenSet{}).ExpiresIn(); got != 0 {
		t.Errorf("Expected 0 without expiry, got %v", got)
	}

	if got := (&TokenSet{Expiry: time.Now().Add(-time.Minute)}).ExpiresIn(); got != 0 {
		t.Errorf("Expected 0 when expired, got %v", got)
	}

	got := (&TokenSet{Expiry: time.Now().Add(time.Hour)}).ExpiresIn()
	if got <= 59*time.Minute || got > time.Hour {
		t.Errorf("Expected about 1h, got %v", got)
	}
}

func TestTokenSet_NeedsRefresh(t *testing.T) {
	tests := []struct {
		name   string
		token  *TokenSet
		margin time.Duration
		want   bool
	}{
		{
			name:   "far from expiry",
			token:  &TokenSet{AccessToken: "at", Expiry: time.Now().Add(time.Hour)},
			margin: time.Minute,
			want:   false,
		},
		{
			name:   "within margin",
			token:  &TokenSet{AccessToken: "at", Expiry: time.Now().Add(30 * time.Second)},
			margin: time.Minute,
			want:   true,
		},
		{
			name:   "expired",
			token:  &TokenSet{AccessToken: "at", Expiry: time.Now().Add(-time.Second)},
			margin: 0,
			want:   true,
		},
		{
			name:   "no expiry",
			token:  &TokenSet{AccessToken: "at"},
			margin: time.Minute,
			want:   false,
		},
		{
			name:   "no access token",
			token:  &TokenSet{},
			margin: time.Minute,
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.NeedsRefresh(tt.margin); got != tt.want {
				t.Errorf("NeedsRefresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewTokenSet(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	tok := (&oauth2.Token{
		AccessToken:  "at",
		TokenType:    "Bearer",
		RefreshToken: "rt",
		Expiry:       expiry,
	}).WithExtra(map[string]interface{}{
		"id_token": "idt",
		"scope":    "openid  profile",
	})

	ts := newTokenSet(tok, "user-1", "https://issuer.example.com")

	if ts.Subject != "user-1" {
		t.Errorf("Expected subject 'user-1', got '%s'", ts.Subject)
	}
	if ts.Issuer != "https://issuer.example.com" {
		t.Errorf("Expected issuer, got '%s'", ts.Issuer)
	}
	if ts.IDToken != "idt" {
		t.Errorf("Expected id token 'idt', got '%s'", ts.IDToken)
	}
	if len(ts.Scopes) != 2 || ts.Scopes[0] != "openid" || ts.Scopes[1] != "profile" {
		t.Errorf("Expected scopes [openid profile], got %v", ts.Scopes)
	}
	if !ts.Expiry.Equal(expiry) {
		t.Errorf("Expected expiry %v, got %v", expiry, ts.Expiry)
	}
}

func TestTokenSet_Merge(t *testing.T) {
	old := &TokenSet{
		Subject:      "user-1",
		AccessToken:  "old-at",
		RefreshToken: "old-rt",
		IDToken:      "old-idt",
		Scopes:       []string{"openid"},
	}

	next := old.merge(&oauth2.Token{AccessToken: "new-at", Expiry: time.Now().Add(time.Hour)})

	if next.AccessToken != "new-at" {
		t.Errorf("Expected access token 'new-at', got '%s'", next.AccessToken)
	}
	if next.RefreshToken != "old-rt" {
		t.Errorf("Expected refresh token to be kept, got '%s'", next.RefreshToken)
	}
	if next.IDToken != "old-idt" {
		t.Errorf("Expected id token to be kept, got '%s'", next.IDToken)
	}
	if next.Subject != "user-1" {
		t.Errorf("Expected subject to be kept, got '%s'", next.Subject)
	}
	if old.AccessToken != "old-at" {
		t.Error("Expected merge to leave the original untouched")
	}

	rotated := old.merge(&oauth2.Token{AccessToken: "at-2", RefreshToken: "rt-2"})
	if rotated.RefreshToken != "rt-2" {
		t.Errorf("Expected rotated refresh token 'rt-2', got '%s'", rotated.RefreshToken)
	}
}

func TestTokenSet_JSON(t *testing.T) {
	ts := &TokenSet{Subject: "did:plc:abc", AccessToken: "at"}

	data, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var fields map[string]interface{}
	json.Unmarshal(data, &fields)

	if fields["sub"] != "did:plc:abc" {
		t.Errorf("Expected sub field, got %v", fields["sub"])
	}
	if _, ok := fields["refresh_token"]; ok {
		t.Error("Expected empty refresh_token to be omitted")
	}
}

func TestSplitScopes(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"openid", 1},
		{"openid profile email", 3},
		{"  openid   profile ", 2},
	}

	for _, tt := range tests {
		if got := splitScopes(tt.input); len(got) != tt.want {
			t.Errorf("splitScopes(%q) returned %d scopes, want %d", tt.input, len(got), tt.want)
		}
	}
}
