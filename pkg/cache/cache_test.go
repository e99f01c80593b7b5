package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int](Config{Name: "test", MaxSize: 3})

	for i := range 3 {
		c.Set(fmt.Sprintf("k%d", i), i)
	}
	c.Set("k3", 3)

	if c.Len() != 3 {
		t.Fatalf("expected 3 entries after overflow, got %d", c.Len())
	}
	if c.Has("k0") {
		t.Error("expected k0 (least recently used) to be evicted")
	}
	for _, k := range []string{"k1", "k2", "k3"} {
		if !c.Has(k) {
			t.Errorf("expected %s to survive eviction", k)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("expected 1 eviction, got %d", got)
	}
}

func TestGetRefreshesRecency(t *testing.T) {
	c := New[string](Config{MaxSize: 2})

	c.Set("a", "1")
	c.Set("b", "2")
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be present")
	}
	c.Set("c", "3")

	if c.Has("b") {
		t.Error("expected b to be evicted after a was touched")
	}
	if !c.Has("a") || !c.Has("c") {
		t.Error("expected a and c to remain")
	}
}

func TestSetExistingResetsRecency(t *testing.T) {
	c := New[int](Config{MaxSize: 2})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10) // reinsertion makes a most recently used
	c.Set("c", 3)

	if c.Has("b") {
		t.Error("expected b to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 10 {
		t.Errorf("expected a=10, got %d (present=%v)", v, ok)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New[string](Config{MaxSize: 10, TTL: 20 * time.Millisecond})

	c.Set("k", "v")
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected live value before TTL, got %q (present=%v)", v, ok)
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected value to be absent after TTL")
	}

	s := c.Stats()
	if s.Expirations != 1 {
		t.Errorf("expected 1 expiration, got %d", s.Expirations)
	}
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d/%d", s.Hits, s.Misses)
	}
}

func TestPerEntryTTLOverride(t *testing.T) {
	c := New[int](Config{MaxSize: 10, TTL: time.Hour})

	c.SetTTL("short", 1, 10*time.Millisecond)
	c.Set("long", 2)

	time.Sleep(20 * time.Millisecond)
	if c.Has("short") {
		t.Error("expected short-TTL entry to expire")
	}
	if !c.Has("long") {
		t.Error("expected default-TTL entry to remain")
	}
}

func TestBackgroundSweep(t *testing.T) {
	c := New[int](Config{MaxSize: 100, TTL: 10 * time.Millisecond, SweepInterval: 15 * time.Millisecond})
	defer c.Destroy()

	for i := range 10 {
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	deadline := time.Now().Add(time.Second)
	for c.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Len() != 0 {
		t.Fatalf("expected sweep to purge all expired entries, %d remain", c.Len())
	}
	if got := c.Stats().Expirations; got != 10 {
		t.Errorf("expected 10 expirations, got %d", got)
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := New[int](Config{MaxSize: 10})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	c.Delete("missing") // no-op

	if c.Has("a") {
		t.Error("expected a to be deleted")
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Clear, got %d", c.Len())
	}
}

func TestHitRate(t *testing.T) {
	c := New[int](Config{MaxSize: 10})

	if got := c.Stats().HitRate; got != 0 {
		t.Errorf("expected zero hit rate before any lookup, got %f", got)
	}

	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Fatalf("expected 2 hits / 1 miss, got %d/%d", s.Hits, s.Misses)
	}
	want := 2.0 / 3.0
	if diff := s.HitRate - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected hit rate %f, got %f", want, s.HitRate)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](Config{MaxSize: 64, TTL: time.Minute, SweepInterval: time.Millisecond})
	defer c.Destroy()

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := fmt.Sprintf("k%d", (g*7+i)%100)
				c.Set(key, i)
				c.Get(key)
			}
		}()
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Errorf("cache exceeded max size: %d", c.Len())
	}
}

func TestIsolatedInstances(t *testing.T) {
	a := New[int](Config{Name: "a", MaxSize: 2})
	b := New[int](Config{Name: "b", MaxSize: 2})

	a.Set("k", 1)
	if b.Has("k") {
		t.Error("instances must not share state")
	}
	if a.Stats().Hits != 0 || b.Stats().Misses != 0 {
		t.Error("instances must not share counters")
	}
}
