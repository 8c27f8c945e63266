package cdse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultClientID is the public OAuth client registered for
	// password-grant exchanges against the CDSE identity service.
	DefaultClientID = "cdse-public"

	// defaultTokenTTL applies when the identity response carries neither
	// an expires_in field nor a parseable exp claim.
	defaultTokenTTL = 300 * time.Second

	// defaultMargin is subtracted from a token's lifetime before it is
	// considered reusable, so a token is never handed out moments before
	// the server rejects it.
	defaultMargin = 60 * time.Second
)

// CredentialConfig configures a CredentialCache.
type CredentialConfig struct {
	IdentityURL string
	Username    string
	Password    string
	ClientID    string
	Timeout     time.Duration
	Margin      time.Duration
	Clock       clockwork.Clock
}

// CredentialCache exchanges account credentials for access tokens and
// caches the result until it nears expiry. Concurrent callers that find
// the cache stale share a single refresh; nobody observes a half-written
// credential.
type CredentialCache struct {
	cfg        CredentialConfig
	httpClient *http.Client
	clock      clockwork.Clock
	logger     zerolog.Logger

	group singleflight.Group

	mu      sync.Mutex
	current *Credential
}

// NewCredentialCache builds a cache from cfg, filling defaults for
// unset fields.
func NewCredentialCache(cfg CredentialConfig, logger zerolog.Logger) *CredentialCache {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Margin <= 0 {
		cfg.Margin = defaultMargin
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CredentialCache{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		clock:      clock,
		logger:     logger.With().Str("component", "credentials").Logger(),
	}
}

// Configured reports whether the cache has account credentials to
// exchange. An unconfigured cache fails every Token call with a
// configuration error and never touches the network.
func (c *CredentialCache) Configured() bool {
	return c.cfg.Username != "" && c.cfg.Password != ""
}

// Token returns a credential valid for at least the configured margin,
// refreshing through the identity service when the cached one is absent
// or near expiry.
func (c *CredentialCache) Token(ctx context.Context) (Credential, error) {
	if !c.Configured() {
		return Credential{}, newError(ErrorConfiguration, "credentials",
			fmt.Errorf("COPERNICUS_USERNAME and COPERNICUS_PASSWORD are not set"))
	}

	if cred, ok := c.cached(); ok {
		return cred, nil
	}
	return c.refresh(ctx)
}

// ForceRefresh discards the cached credential and fetches a new one.
// Used after the API rejects a token that still looked valid locally.
func (c *CredentialCache) ForceRefresh(ctx context.Context) (Credential, error) {
	if !c.Configured() {
		return Credential{}, newError(ErrorConfiguration, "credentials",
			fmt.Errorf("COPERNICUS_USERNAME and COPERNICUS_PASSWORD are not set"))
	}

	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	return c.refresh(ctx)
}

func (c *CredentialCache) cached() (Credential, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.ValidAt(c.clock.Now(), c.cfg.Margin) {
		return *c.current, true
	}
	return Credential{}, false
}

// refresh funnels all concurrent callers into one token exchange. The
// double check inside the flight means a caller that lost the race to
// enter still reuses the credential the winner just stored.
func (c *CredentialCache) refresh(ctx context.Context) (Credential, error) {
	v, err, _ := c.group.Do("token", func() (any, error) {
		if cred, ok := c.cached(); ok {
			return cred, nil
		}

		cred, err := c.exchange(ctx)
		if err != nil {
			return Credential{}, err
		}

		c.mu.Lock()
		c.current = &cred
		c.mu.Unlock()

		c.logger.Debug().
			Time("expires_at", cred.ExpiresAt).
			Msg("Access token refreshed")
		return cred, nil
	})
	if err != nil {
		return Credential{}, err
	}
	return v.(Credential), nil
}

// exchange performs the password-grant POST against the identity service.
func (c *CredentialCache) exchange(ctx context.Context) (Credential, error) {
	form := url.Values{
		"client_id":  {c.cfg.ClientID},
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
		"grant_type": {"password"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.IdentityURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, newError(ErrorNetwork, "token exchange", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Credential{}, newError(ErrorNetwork, "token exchange", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("identity service returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
		switch {
		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
			return Credential{}, newError(ErrorAuth, "token exchange", err)
		default:
			return Credential{}, newError(ErrorNetwork, "token exchange", err)
		}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Credential{}, newError(ErrorNetwork, "token exchange",
			fmt.Errorf("decoding identity response: %w", err))
	}
	if payload.AccessToken == "" {
		return Credential{}, newError(ErrorAuth, "token exchange",
			fmt.Errorf("identity response contained no access token"))
	}

	now := c.clock.Now()
	cred := Credential{
		Token:     payload.AccessToken,
		IssuedAt:  now,
		ExpiresAt: now.Add(tokenLifetime(payload.AccessToken, payload.ExpiresIn, now)),
	}
	return cred, nil
}

// tokenLifetime resolves the token's TTL: the advertised expires_in wins,
// then the JWT exp claim, then the documented default.
func tokenLifetime(token string, expiresIn int64, now time.Time) time.Duration {
	if expiresIn > 0 {
		return time.Duration(expiresIn) * time.Second
	}
	if exp, ok := jwtExpiry(token); ok {
		if ttl := exp.Sub(now); ttl > 0 {
			return ttl
		}
	}
	return defaultTokenTTL
}

// jwtExpiry extracts the exp claim without verifying the signature. The
// token was just received over TLS from the identity service; only its
// schedule matters here.
func jwtExpiry(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
