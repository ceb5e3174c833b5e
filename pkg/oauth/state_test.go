package oauth

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jeremyhahn/go-oauthsession/pkg/store"
	"github.com/redis/go-redis/v9"
)

func TestStateStore_CreateGet(t *testing.T) {
	states := newStateStore(store.NewMemory(), time.Minute)
	ctx := context.Background()

	state, err := states.create(ctx, &pendingAuthorization{Verifier: "v", AppState: "app", Handoff: true})
	if err != nil {
		t.Fatalf("create() failed: %v", err)
	}
	if state == "" {
		t.Fatal("Expected a state value")
	}

	p, err := states.get(ctx, state)
	if err != nil {
		t.Fatalf("get() failed: %v", err)
	}
	if p.Verifier != "v" || p.AppState != "app" || !p.Handoff {
		t.Errorf("Unexpected pending authorization: %+v", p)
	}
	if p.ExpiresAt.IsZero() {
		t.Error("Expected ExpiresAt to be set")
	}

	states.delete(ctx, state)
	if _, err := states.get(ctx, state); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("Expected ErrStateNotFound after delete, got %v", err)
	}
}

func TestStateStore_UniqueStates(t *testing.T) {
	states := newStateStore(store.NewMemory(), time.Minute)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		state, err := states.create(context.Background(), &pendingAuthorization{})
		if err != nil {
			t.Fatalf("create() failed: %v", err)
		}
		if seen[state] {
			t.Fatalf("Duplicate state %s", state)
		}
		seen[state] = true
	}
}

func TestStateStore_Expired(t *testing.T) {
	backend := store.NewMemory()
	states := newStateStore(backend, time.Millisecond)
	ctx := context.Background()

	state, _ := states.create(ctx, &pendingAuthorization{Verifier: "v"})
	time.Sleep(5 * time.Millisecond)

	if _, err := states.get(ctx, state); !errors.Is(err, ErrStateExpired) {
		t.Errorf("Expected ErrStateExpired, got %v", err)
	}

	if _, ok, _ := backend.Get(ctx, stateKeyPrefix+state); ok {
		t.Error("Expected expired state to be removed")
	}
}

func TestStateStore_Corrupt(t *testing.T) {
	backend := store.NewMemory()
	backend.Set(context.Background(), stateKeyPrefix+"bad", "{not json")

	states := newStateStore(backend, time.Minute)
	if _, err := states.get(context.Background(), "bad"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("Expected ErrStateNotFound, got %v", err)
	}
}

func TestStateStore_DeliverTake(t *testing.T) {
	states := newStateStore(store.NewMemory(), time.Minute)
	ctx := context.Background()

	if _, ok, err := states.take(ctx, "s1"); ok || err != nil {
		t.Errorf("Expected nothing delivered, got ok=%v err=%v", ok, err)
	}

	params := url.Values{"code": {"abc"}, "state": {"s1"}}
	if err := states.deliver(ctx, "s1", params); err != nil {
		t.Fatalf("deliver() failed: %v", err)
	}

	got, ok, err := states.take(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("Expected delivered redirect, got ok=%v err=%v", ok, err)
	}
	if got.Get("code") != "abc" {
		t.Errorf("Expected code 'abc', got '%s'", got.Get("code"))
	}

	if _, ok, _ := states.take(ctx, "s1"); ok {
		t.Error("Expected redirect to be taken only once")
	}
}

func TestStateStore_RedisTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	states := newStateStore(store.NewRedis(client, "oauth:"), 10*time.Minute)
	ctx := context.Background()

	state, err := states.create(ctx, &pendingAuthorization{Verifier: "v"})
	if err != nil {
		t.Fatalf("create() failed: %v", err)
	}

	if ttl := mr.TTL("oauth:" + stateKeyPrefix + state); ttl != 10*time.Minute {
		t.Errorf("Expected TTL 10m, got %v", ttl)
	}

	mr.FastForward(11 * time.Minute)

	if _, err := states.get(ctx, state); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("Expected ErrStateNotFound after expiry, got %v", err)
	}
}

func TestSessionStore(t *testing.T) {
	backend := store.NewMemory()
	sessions := &sessionStore{backend: backend}
	ctx := context.Background()

	if _, err := sessions.get(ctx, "did:plc:abc"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	ts := &TokenSet{Subject: "did:plc:abc", AccessToken: "at", RefreshToken: "rt"}
	if err := sessions.put(ctx, ts); err != nil {
		t.Fatalf("put() failed: %v", err)
	}

	got, err := sessions.get(ctx, "did:plc:abc")
	if err != nil {
		t.Fatalf("get() failed: %v", err)
	}
	if got.RefreshToken != "rt" {
		t.Errorf("Expected refresh token 'rt', got '%s'", got.RefreshToken)
	}

	if err := sessions.delete(ctx, "did:plc:abc"); err != nil {
		t.Fatalf("delete() failed: %v", err)
	}
	if _, err := sessions.get(ctx, "did:plc:abc"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestSessionStore_SubjectMismatch(t *testing.T) {
	backend := store.NewMemory()
	backend.Set(context.Background(), sessionKeyPrefix+"a", `{"sub":"b","access_token":"at"}`)

	sessions := &sessionStore{backend: backend}
	if _, err := sessions.get(context.Background(), "a"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}
