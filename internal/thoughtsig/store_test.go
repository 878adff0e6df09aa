package thoughtsig

import (
	"testing"
	"time"
)

func TestSignatureStore_PutGet(t *testing.T) {
	store := NewSignatureStore(time.Hour, 16)

	store.Put(1, "sig-1")
	got, ok := store.Get(1)
	if !ok || got != "sig-1" {
		t.Fatalf("expected sig-1, got %q (ok=%v)", got, ok)
	}

	if _, ok := store.Get(2); ok {
		t.Error("unexpected hit for unknown key")
	}
}

func TestSignatureStore_OverwriteWins(t *testing.T) {
	store := NewSignatureStore(time.Hour, 16)

	store.Put(1, "old")
	store.Put(1, "new")

	if got, _ := store.Get(1); got != "new" {
		t.Errorf("expected rotated signature, got %q", got)
	}
}

func TestSignatureStore_TTLExpiry(t *testing.T) {
	store := NewSignatureStore(time.Second, 16)
	store.Put(1, "sig")

	store.entries[1].expiresAt = time.Now().Add(-time.Millisecond)

	if _, ok := store.Get(1); ok {
		t.Error("expired entry should miss")
	}
	if store.Len() != 0 {
		t.Errorf("expired entry should be dropped, len=%d", store.Len())
	}
}

func TestSignatureStore_CapacityEviction(t *testing.T) {
	store := NewSignatureStore(time.Hour, 3)

	store.Put(1, "a")
	store.Put(2, "b")
	store.Put(3, "c")

	// Touch 2 and 3 so 1 is the approximate-LRU victim.
	store.Get(2)
	store.Get(3)

	store.Put(4, "d")

	if store.Len() > 3 {
		t.Fatalf("capacity exceeded: %d", store.Len())
	}
	if _, ok := store.Get(4); !ok {
		t.Error("newest entry should be present")
	}
	if _, ok := store.Get(1); ok {
		t.Error("least recently used entry should have been evicted")
	}
}

func TestSignatureStore_ClampsBounds(t *testing.T) {
	store := NewSignatureStore(0, 0)
	store.Put(1, "a")
	if _, ok := store.Get(1); !ok {
		t.Error("store with clamped bounds should still hold one entry")
	}
	store.Put(2, "b")
	if store.Len() != 1 {
		t.Errorf("capacity 1 store holds %d entries", store.Len())
	}
}
