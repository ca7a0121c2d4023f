package cache

import (
	"testing"
	"time"
)

func TestStore_GetSet(t *testing.T) {
	s := New[int](4, time.Minute)

	if _, ok := s.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}

	s.Set("a", 1)
	if v, ok := s.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}

	s.Set("a", 2)
	if v, _ := s.Get("a"); v != 2 {
		t.Errorf("Get(a) after overwrite = %d, want 2", v)
	}
	if s.Size() != 1 {
		t.Errorf("Size = %d, want 1", s.Size())
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	s := New[string](4, 10*time.Millisecond)
	s.Set("a", "x")
	time.Sleep(20 * time.Millisecond)

	if _, ok := s.Get("a"); ok {
		t.Error("expected expired entry to miss")
	}
	if s.Size() != 0 {
		t.Errorf("Size after expiry read = %d, want 0", s.Size())
	}
}

func TestStore_EvictsLeastRecentlyUsed(t *testing.T) {
	s := New[int](2, time.Minute)
	s.Set("a", 1)
	s.Set("b", 2)
	s.Get("a") // a is now most recently used
	s.Set("c", 3)

	if _, ok := s.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := s.Get("a"); !ok {
		t.Error("a should survive eviction")
	}
	if _, ok := s.Get("c"); !ok {
		t.Error("c should be present")
	}
}

func TestStore_DeleteAndInvalidate(t *testing.T) {
	s := New[int](4, time.Minute)
	s.Set("a", 1)
	s.Set("b", 2)

	s.Delete("a")
	if _, ok := s.Get("a"); ok {
		t.Error("a should be deleted")
	}

	s.Invalidate()
	if s.Size() != 0 {
		t.Errorf("Size after Invalidate = %d, want 0", s.Size())
	}
	if _, ok := s.Get("b"); ok {
		t.Error("b should be gone after Invalidate")
	}

	// Cache remains usable after a full invalidation.
	s.Set("c", 3)
	if v, ok := s.Get("c"); !ok || v != 3 {
		t.Errorf("Get(c) = %d, %v; want 3, true", v, ok)
	}
}

func TestStore_Sweep(t *testing.T) {
	s := New[int](8, 10*time.Millisecond)
	s.Set("a", 1)
	s.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	s.Set("c", 3)

	if n := s.sweep(); n != 2 {
		t.Errorf("sweep removed %d, want 2", n)
	}
	if s.Size() != 1 {
		t.Errorf("Size after sweep = %d, want 1", s.Size())
	}
}
