package credential

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/rhuss/tiefsee/pkg/api"
	"github.com/rhuss/tiefsee/pkg/debug"
	"github.com/rhuss/tiefsee/pkg/observability"
)

// DefaultTTL is the lifetime assumed for an access token. The upstream
// does not report one.
const DefaultTTL = time.Hour

// ErrTokenRejected is the cause attached to errors returned by Acquire when
// the upstream reports the refresh token itself as invalid.
var ErrTokenRejected = errors.New("refresh token rejected by upstream")

// Refresher exchanges a refresh token for a fresh access token.
//
// An *api.APIError of type upstream_auth_error signals that the refresh
// token was rejected; any other error is treated as transient.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// Options configures a Cache.
type Options struct {
	// TTL is the lifetime of a cached access token. Default: DefaultTTL.
	TTL time.Duration

	// MaxEntries bounds the number of cached tokens. 0 means unbounded.
	MaxEntries int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// entry is one cached credential pair.
type entry struct {
	refreshToken string
	accessToken  string
	expiresAt    time.Time
	lruElem      *list.Element
}

// Cache maps refresh tokens to cached access tokens.
// It is safe for concurrent use.
type Cache struct {
	refresher  Refresher
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	flights singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
}

// NewCache creates a credential cache backed by refresher.
func NewCache(refresher Refresher, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		refresher:  refresher,
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		now:        opts.Now,
		entries:    make(map[string]*entry),
		lruList:    list.New(),
	}
}

// Acquire returns a valid access token for refreshToken, refreshing it
// when no unexpired entry exists.
//
// Concurrent callers for the same refresh token share a single refresh.
// The refresh itself is detached from ctx so that one caller giving up
// does not fail the others; ctx only bounds how long this caller waits.
func (c *Cache) Acquire(ctx context.Context, refreshToken string) (string, error) {
	if token, ok := c.lookup(refreshToken); ok {
		return token, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(refreshToken, func() (any, error) {
		// A flight that settled just before this one started may already
		// have stored a fresh token.
		if token, ok := c.lookup(refreshToken); ok {
			return token, nil
		}
		return c.refresh(flightCtx, refreshToken)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refresh performs the upstream exchange and stores the result.
func (c *Cache) refresh(ctx context.Context, refreshToken string) (string, error) {
	debug.Log("credentials", "refreshing access token", "refresh_token", debug.Mask(refreshToken))

	accessToken, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Type == api.ErrorTypeUpstreamAuth {
			c.Invalidate(refreshToken)
			observability.CredentialRefreshesTotal.WithLabelValues("rejected").Inc()
			slog.Warn("refresh token rejected by upstream",
				"refresh_token", debug.Mask(refreshToken),
				"error", apiErr.Message,
			)
			return "", api.NewUpstreamAuthError(apiErr.Message).WithCause(ErrTokenRejected)
		}
		observability.CredentialRefreshesTotal.WithLabelValues("error").Inc()
		return "", err
	}

	observability.CredentialRefreshesTotal.WithLabelValues("ok").Inc()
	expiresAt := c.expiry(accessToken)
	c.store(refreshToken, accessToken, expiresAt)

	debug.Log("credentials", "access token refreshed",
		"refresh_token", debug.Mask(refreshToken),
		"expires_at", expiresAt.Format(time.RFC3339),
	)
	return accessToken, nil
}

// expiry returns now + TTL, clipped to the token's exp claim when the
// access token is a JWT that expires sooner. The signature is not checked.
func (c *Cache) expiry(accessToken string) time.Time {
	now := c.now()
	expiresAt := now.Add(c.ttl)

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return expiresAt
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return expiresAt
	}
	// An exp in the past points at clock skew, not at a dead token.
	if exp.Time.After(now) && exp.Time.Before(expiresAt) {
		return exp.Time
	}
	return expiresAt
}

// lookup returns the cached token when present and unexpired.
func (c *Cache) lookup(refreshToken string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[refreshToken]
	if !ok || !c.now().Before(e.expiresAt) {
		return "", false
	}
	c.lruList.MoveToFront(e.lruElem)
	return e.accessToken, true
}

// store inserts or replaces the entry for refreshToken.
func (c *Cache) store(refreshToken, accessToken string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[refreshToken]; ok {
		e.accessToken = accessToken
		e.expiresAt = expiresAt
		c.lruList.MoveToFront(e.lruElem)
		return
	}

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	e := &entry{
		refreshToken: refreshToken,
		accessToken:  accessToken,
		expiresAt:    expiresAt,
	}
	e.lruElem = c.lruList.PushFront(e)
	c.entries[refreshToken] = e
	observability.CredentialCacheEntries.Set(float64(len(c.entries)))
}

// evictOldest removes the least recently used entry. Caller must hold mu.
func (c *Cache) evictOldest() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	c.remove(back.Value.(*entry))
}

// remove deletes e from the map and the LRU list. Caller must hold mu.
func (c *Cache) remove(e *entry) {
	c.lruList.Remove(e.lruElem)
	delete(c.entries, e.refreshToken)
	observability.CredentialCacheEntries.Set(float64(len(c.entries)))
}

// Invalidate evicts the cached access token for refreshToken, forcing the
// next Acquire to refresh. It reports whether an entry was present.
func (c *Cache) Invalidate(refreshToken string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[refreshToken]
	if !ok {
		return false
	}
	c.remove(e)
	debug.Log("credentials", "access token evicted", "refresh_token", debug.Mask(refreshToken))
	return true
}

// Sweep drops every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, e := range c.entries {
		if !now.Before(e.expiresAt) {
			c.remove(e)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
