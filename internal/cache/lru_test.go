package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(size int, ttl time.Duration) (*LRUCache[int], *fakeClock, *[]string) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	var evicted []string
	c := NewLRUCache[int](size, ttl).OnEvict(func(key string, _ int) {
		evicted = append(evicted, key)
	})
	c.now = clock.Now
	return c, clock, &evicted
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _, evicted := newTestCache(2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if len(*evicted) != 1 || (*evicted)[0] != "b" {
		t.Fatalf("unexpected evictions: %v", *evicted)
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	c, clock, evicted := newTestCache(10, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(30 * time.Second)
	c.Get("a") // refreshes a
	clock.Advance(45 * time.Second)

	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected one expired entry, got %d", n)
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("a was refreshed and should still be cached")
	}
	if len(*evicted) != 1 || (*evicted)[0] != "b" {
		t.Fatalf("unexpected evictions: %v", *evicted)
	}
}

func TestLRUDeleteAndPurge(t *testing.T) {
	c, _, evicted := newTestCache(10, 0)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Delete("a")
	c.Delete("missing")

	if n := c.Purge(); n != 2 {
		t.Fatalf("expected purge of 2, got %d", n)
	}
	if c.Size() != 0 {
		t.Fatalf("expected empty cache")
	}
	want := []string{"a", "b", "c"}
	for i, k := range want {
		if (*evicted)[i] != k {
			t.Fatalf("evictions = %v, want %v", *evicted, want)
		}
	}
}

func TestLRUReplaceDoesNotEvict(t *testing.T) {
	c, _, evicted := newTestCache(10, 0)
	c.Set("a", 1)
	c.Set("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Fatalf("expected replaced value, got %d", v)
	}
	if len(*evicted) != 0 {
		t.Fatalf("replace must not evict: %v", *evicted)
	}
}

func TestManagerCleanNow(t *testing.T) {
	c, clock, _ := newTestCache(10, time.Second)
	c.Set("a", 1)
	clock.Advance(2 * time.Second)

	m := NewManager(nil)
	m.Register(c)
	if n := m.CleanNow(); n != 1 {
		t.Fatalf("expected 1 cleaned, got %d", n)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}
