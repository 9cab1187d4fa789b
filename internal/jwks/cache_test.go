package jwks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ggoodman/govdata-mcp/internal/jwks/jwkstest"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T, iss *jwkstest.Issuer, override string, ttl time.Duration) (*Cache, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Now()}
	c, err := New(Config{
		KeySetURL:  override,
		KeyTTL:     ttl,
		HTTPClient: iss.Client(),
		Now:        clk.now,
	})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c, clk
}

func TestLoadKeys_CachedWithinTTL(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	iss.AddKey(t, "k1")
	c, clk := newTestCache(t, iss, "", 5*time.Minute)
	ctx := context.Background()

	set, err := c.LoadKeys(ctx, iss.URL)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if FindKey(set, "k1") == nil {
		t.Fatal("expected k1 in key set")
	}

	clk.advance(4 * time.Minute)
	if _, err := c.LoadKeys(ctx, iss.URL); err != nil {
		t.Fatalf("second load: %v", err)
	}

	if got := iss.KeySetHits(); got != 1 {
		t.Fatalf("expected 1 key set fetch within ttl, got %d", got)
	}
	if got := iss.DiscoveryHits(); got != 1 {
		t.Fatalf("expected 1 discovery fetch, got %d", got)
	}
}

func TestLoadKeys_RefetchAfterExpiry(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	iss.AddKey(t, "k1")
	c, clk := newTestCache(t, iss, "", 5*time.Minute)
	ctx := context.Background()

	if _, err := c.LoadKeys(ctx, iss.URL); err != nil {
		t.Fatalf("load: %v", err)
	}
	clk.advance(5*time.Minute + time.Second)
	if _, err := c.LoadKeys(ctx, iss.URL); err != nil {
		t.Fatalf("load after expiry: %v", err)
	}
	if got := iss.KeySetHits(); got != 2 {
		t.Fatalf("expected exactly one refetch after expiry, got %d fetches", got)
	}
	// Discovery has its own hour-long window.
	if got := iss.DiscoveryHits(); got != 1 {
		t.Fatalf("expected discovery to stay cached, got %d fetches", got)
	}
}

func TestLoadKeys_TTLFloor(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	iss.AddKey(t, "k1")
	c, clk := newTestCache(t, iss, "", time.Second)
	ctx := context.Background()

	_, _ = c.LoadKeys(ctx, iss.URL)
	clk.advance(30 * time.Second)
	_, _ = c.LoadKeys(ctx, iss.URL)
	if got := iss.KeySetHits(); got != 1 {
		t.Fatalf("ttl below floor should be raised to %s, got %d fetches", MinKeyTTL, got)
	}
}

func TestLoadKeys_OverrideSkipsDiscovery(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	iss.AddKey(t, "k1")
	c, _ := newTestCache(t, iss, iss.KeySetURL(), time.Hour)

	if _, err := c.LoadKeys(context.Background(), iss.URL); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := iss.DiscoveryHits(); got != 0 {
		t.Fatalf("override should bypass discovery, got %d discovery fetches", got)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	iss.AddKey(t, "k1")
	c, _ := newTestCache(t, iss, "", time.Hour)
	ctx := context.Background()

	_, _ = c.LoadKeys(ctx, iss.URL)
	iss.AddKey(t, "k2")
	set, _ := c.LoadKeys(ctx, iss.URL)
	if FindKey(set, "k2") != nil {
		t.Fatal("rotated key should not be visible before invalidation")
	}

	c.Invalidate(ctx)
	set, err := c.LoadKeys(ctx, iss.URL)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if FindKey(set, "k2") == nil {
		t.Fatal("expected k2 after invalidation")
	}
	if got := iss.KeySetHits(); got != 2 {
		t.Fatalf("expected 2 key set fetches, got %d", got)
	}
}

func TestDiscoverOIDCConfig(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	c, clk := newTestCache(t, iss, "", time.Hour)
	ctx := context.Background()

	doc, err := c.DiscoverOIDCConfig(ctx, iss.URL+"/")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if doc.JWKSURL != iss.KeySetURL() {
		t.Fatalf("jwks_uri = %q, want %q", doc.JWKSURL, iss.KeySetURL())
	}
	if doc.IssuerURL != iss.URL {
		t.Fatalf("issuer = %q, want %q", doc.IssuerURL, iss.URL)
	}

	clk.advance(DiscoveryTTL - time.Second)
	_, _ = c.DiscoverOIDCConfig(ctx, iss.URL)
	if got := iss.DiscoveryHits(); got != 1 {
		t.Fatalf("expected cached discovery, got %d fetches", got)
	}

	clk.advance(2 * time.Second)
	_, _ = c.DiscoverOIDCConfig(ctx, iss.URL)
	if got := iss.DiscoveryHits(); got != 2 {
		t.Fatalf("expected refetch after discovery ttl, got %d fetches", got)
	}
}

func TestFetchFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(Config{HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = c.LoadKeys(context.Background(), srv.URL)
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}

func TestFindKey(t *testing.T) {
	if FindKey(nil, "k") != nil {
		t.Fatal("nil set must not match")
	}
	iss := jwkstest.NewIssuer(t)
	iss.AddKey(t, "k1")
	c, _ := newTestCache(t, iss, "", time.Hour)
	set, _ := c.LoadKeys(context.Background(), iss.URL)
	if FindKey(set, "") != nil {
		t.Fatal("empty kid must not match")
	}
	if FindKey(set, "missing") != nil {
		t.Fatal("unknown kid must not match")
	}
}
