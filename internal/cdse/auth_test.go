package cdse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

func newTestCache(server *httptest.Server, clock clockwork.Clock) *CredentialCache {
	return NewCredentialCache(CredentialConfig{
		IdentityURL: server.URL,
		Username:    "user@example.com",
		Password:    "hunter2",
		Clock:       clock,
	}, zerolog.Nop())
}

func identityHandler(t *testing.T, calls *atomic.Int64, token string, expiresIn int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		if got := r.PostFormValue("grant_type"); got != "password" {
			t.Errorf("grant_type = %q, want %q", got, "password")
		}
		if got := r.PostFormValue("client_id"); got != "cdse-public" {
			t.Errorf("client_id = %q, want %q", got, "cdse-public")
		}
		if got := r.PostFormValue("username"); got != "user@example.com" {
			t.Errorf("username = %q, want %q", got, "user@example.com")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": token,
			"expires_in":   expiresIn,
		})
	}
}

func TestCredentialCacheToken(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(identityHandler(t, &calls, "tok-1", 600))
	defer server.Close()

	clock := clockwork.NewFakeClock()
	cache := newTestCache(server, clock)

	cred, err := cache.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if cred.Token != "tok-1" {
		t.Errorf("Token = %q, want %q", cred.Token, "tok-1")
	}
	if want := clock.Now().Add(600 * time.Second); !cred.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", cred.ExpiresAt, want)
	}
	if calls.Load() != 1 {
		t.Errorf("identity calls = %d, want 1", calls.Load())
	}
}

func TestCredentialCacheReusesUntilMargin(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(identityHandler(t, &calls, "tok", 300))
	defer server.Close()

	clock := clockwork.NewFakeClock()
	cache := newTestCache(server, clock)

	for i := 0; i < 3; i++ {
		if _, err := cache.Token(context.Background()); err != nil {
			t.Fatalf("Token() call %d error = %v", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("identity calls = %d, want 1 while token is fresh", calls.Load())
	}

	// Inside the 60s safety margin the cached token no longer qualifies.
	clock.Advance(241 * time.Second)
	if _, err := cache.Token(context.Background()); err != nil {
		t.Fatalf("Token() after advance error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("identity calls = %d, want 2 after expiry", calls.Load())
	}
}

func TestCredentialCacheSingleFlight(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "shared",
			"expires_in":   300,
		})
	}))
	defer server.Close()

	cache := newTestCache(server, clockwork.NewFakeClock())

	const workers = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, workers)
	tokens := make([]string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			cred, err := cache.Token(context.Background())
			errs[i], tokens[i] = err, cred.Token
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: Token() error = %v", i, errs[i])
		}
		if tokens[i] != "shared" {
			t.Errorf("worker %d: token = %q, want %q", i, tokens[i], "shared")
		}
	}
	if calls.Load() != 1 {
		t.Errorf("identity calls = %d, want 1 for concurrent refresh", calls.Load())
	}
}

func TestCredentialCacheForceRefresh(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := "first"
		if calls.Add(1) > 1 {
			token = "second"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": token,
			"expires_in":   300,
		})
	}))
	defer server.Close()

	cache := newTestCache(server, clockwork.NewFakeClock())

	cred, err := cache.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if cred.Token != "first" {
		t.Errorf("token = %q, want %q", cred.Token, "first")
	}

	cred, err = cache.ForceRefresh(context.Background())
	if err != nil {
		t.Fatalf("ForceRefresh() error = %v", err)
	}
	if cred.Token != "second" {
		t.Errorf("token after refresh = %q, want %q", cred.Token, "second")
	}
	if calls.Load() != 2 {
		t.Errorf("identity calls = %d, want 2", calls.Load())
	}
}

func TestCredentialCacheRejection(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
		kind   string
	}{
		{"bad credentials", http.StatusUnauthorized, IsAuth, "auth"},
		{"malformed request", http.StatusBadRequest, IsAuth, "auth"},
		{"identity outage", http.StatusBadGateway, IsNetwork, "network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "no", tt.status)
			}))
			defer server.Close()

			cache := newTestCache(server, clockwork.NewFakeClock())
			_, err := cache.Token(context.Background())
			if err == nil {
				t.Fatal("Token() expected error, got nil")
			}
			if !tt.check(err) {
				t.Errorf("Token() error = %v, want %s kind", err, tt.kind)
			}
		})
	}
}

func TestCredentialCacheUnconfigured(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("identity service should not be contacted without credentials")
	}))
	defer server.Close()

	cache := NewCredentialCache(CredentialConfig{
		IdentityURL: server.URL,
		Clock:       clockwork.NewFakeClock(),
	}, zerolog.Nop())

	_, err := cache.Token(context.Background())
	if !IsConfiguration(err) {
		t.Errorf("Token() error = %v, want configuration kind", err)
	}
	if _, err := cache.ForceRefresh(context.Background()); !IsConfiguration(err) {
		t.Errorf("ForceRefresh() error = %v, want configuration kind", err)
	}
}

func TestTokenLifetime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": now.Add(900 * time.Second).Unix(),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}

	tests := []struct {
		name      string
		token     string
		expiresIn int64
		want      time.Duration
	}{
		{"expires_in wins", signed, 600, 600 * time.Second},
		{"exp claim fallback", signed, 0, 900 * time.Second},
		{"opaque token default", "not-a-jwt", 0, defaultTokenTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tokenLifetime(tt.token, tt.expiresIn, now); got != tt.want {
				t.Errorf("tokenLifetime() = %v, want %v", got, tt.want)
			}
		})
	}
}
