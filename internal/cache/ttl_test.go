package cache

import (
	"testing"
	"time"

	entitlementdomain "github.com/saurav5380/apicompass/internal/entitlement/domain"
	orgdomain "github.com/saurav5380/apicompass/internal/organization/domain"
)

func TestTTLCache(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Minute)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get = %d, %v", v, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Fatal("missing key must not hit")
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted key must not hit")
	}
}

func TestTTLCache_Expiry(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("fast", 1, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("fast"); ok {
		t.Fatal("expired entry must not hit")
	}

	// Non-positive TTLs are dropped instead of caching forever.
	c.Set("never", 2, 0)
	if _, ok := c.Get("never"); ok {
		t.Fatal("zero ttl must not store")
	}
}

func TestSnapshotCacheRoundTrip(t *testing.T) {
	snapshots := NewSnapshotCache()

	if _, ok := snapshots.Get(42); ok {
		t.Fatal("empty cache must miss")
	}

	snapshots.Set(42, entitlementdomain.Snapshot{Plan: orgdomain.PlanPro, MaxProviders: 3})
	got, ok := snapshots.Get(42)
	if !ok || got.MaxProviders != 3 {
		t.Fatalf("Get = %+v, %v", got, ok)
	}

	snapshots.Invalidate(42)
	if _, ok := snapshots.Get(42); ok {
		t.Fatal("invalidated entry must miss")
	}
}
