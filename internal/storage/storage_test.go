package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// newTestStorage creates a temporary storage for testing.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	dir, err := os.MkdirTemp("", "storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	s, err := New(filepath.Join(dir, "db"))
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("failed to create storage: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
		os.RemoveAll(dir)
	})

	return s
}

func TestSetAndGet(t *testing.T) {
	s := newTestStorage(t)

	key := []byte("m:owner")
	value := []byte("owner-key")

	if err := s.Set(key, value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !bytes.Equal(got, value) {
		t.Errorf("Get returned %q, want %q", got, value)
	}
}

func TestGetNonExistent(t *testing.T) {
	s := newTestStorage(t)

	got, err := s.Get([]byte("non-existent"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != nil {
		t.Errorf("Get returned %q, want nil", got)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStorage(t)

	key := []byte("to-delete")

	if err := s.Set(key, []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != nil {
		t.Errorf("Get after Delete returned %q, want nil", got)
	}
}

func TestSetBatch(t *testing.T) {
	s := newTestStorage(t)

	pairs := []KeyValue{
		{Key: []byte("batch-1"), Value: []byte("value-1")},
		{Key: []byte("batch-2"), Value: []byte("value-2")},
		{Key: []byte("batch-3"), Value: []byte("value-3")},
	}

	if err := s.SetBatch(pairs); err != nil {
		t.Fatalf("SetBatch failed: %v", err)
	}

	for _, kv := range pairs {
		got, err := s.Get(kv.Key)
		if err != nil {
			t.Fatalf("Get failed for %q: %v", kv.Key, err)
		}

		if !bytes.Equal(got, kv.Value) {
			t.Errorf("Get(%q) = %q, want %q", kv.Key, got, kv.Value)
		}
	}
}

// TestBatchReadsOwnWrites verifies staged writes are visible through the batch only.
func TestBatchReadsOwnWrites(t *testing.T) {
	s := newTestStorage(t)

	if err := s.Set([]byte("g:old"), []byte{1}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	b := s.NewBatch()
	defer b.Discard()

	if err := b.Set([]byte("g:new"), []byte{1}); err != nil {
		t.Fatalf("batch Set failed: %v", err)
	}
	if err := b.Delete([]byte("g:old")); err != nil {
		t.Fatalf("batch Delete failed: %v", err)
	}

	if got, _ := b.Get([]byte("g:new")); got == nil {
		t.Error("batch should see its own write")
	}
	if got, _ := b.Get([]byte("g:old")); got != nil {
		t.Error("batch should see its own delete")
	}

	if got, _ := s.Get([]byte("g:new")); got != nil {
		t.Error("storage should not see uncommitted write")
	}
	if got, _ := s.Get([]byte("g:old")); got == nil {
		t.Error("storage should not see uncommitted delete")
	}
}

// TestBatchCommit verifies Commit applies every staged write.
func TestBatchCommit(t *testing.T) {
	s := newTestStorage(t)

	b := s.NewBatch()
	b.Set([]byte("a"), []byte("1"))
	b.Set([]byte("b"), []byte("2"))

	if b.Len() != 2 {
		t.Errorf("expected 2 staged writes, got %d", b.Len())
	}

	if err := b.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	for _, key := range []string{"a", "b"} {
		if got, _ := s.Get([]byte(key)); got == nil {
			t.Errorf("expected %q after commit", key)
		}
	}

	// Discard after commit is a no-op
	b.Discard()
}

// TestBatchDiscard verifies Discard drops every staged write.
func TestBatchDiscard(t *testing.T) {
	s := newTestStorage(t)

	b := s.NewBatch()
	b.Set([]byte("dropped"), []byte("x"))
	b.Discard()

	if got, _ := s.Get([]byte("dropped")); got != nil {
		t.Errorf("expected nil after discard, got %q", got)
	}
}

func TestIteratePrefix(t *testing.T) {
	s := newTestStorage(t)

	s.Set([]byte("g:1"), []byte{1})
	s.Set([]byte("g:2"), []byte{1})
	s.Set([]byte("h:1"), []byte{1})
	s.Set([]byte("g"), []byte{1})

	var keys []string
	err := s.IteratePrefix([]byte("g:"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("IteratePrefix failed: %v", err)
	}

	if len(keys) != 2 || keys[0] != "g:1" || keys[1] != "g:2" {
		t.Errorf("unexpected keys: %v", keys)
	}
}

func TestIterateFrom(t *testing.T) {
	s := newTestStorage(t)

	for i := 0; i < 5; i++ {
		s.Set([]byte(fmt.Sprintf("e:%d", i)), []byte{byte(i)})
	}

	var count int
	err := s.IterateFrom([]byte("e:"), []byte("e:2"), func(key, value []byte) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("IterateFrom failed: %v", err)
	}

	if count != 3 {
		t.Errorf("expected 3 keys from e:2, got %d", count)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	tests := []struct {
		prefix []byte
		want   []byte
	}{
		{[]byte("g:"), []byte("g;")},
		{[]byte{0x01, 0xFF}, []byte{0x02}},
		{[]byte{0xFF, 0xFF}, nil},
	}

	for _, tt := range tests {
		got := prefixUpperBound(tt.prefix)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("prefixUpperBound(%x) = %x, want %x", tt.prefix, got, tt.want)
		}
	}
}

func TestViewIsPointInTime(t *testing.T) {
	s := newTestStorage(t)

	s.Set([]byte("g:1"), []byte("before"))

	v := s.View()
	defer v.Close()

	s.Set([]byte("g:1"), []byte("after"))
	s.Set([]byte("g:2"), []byte("new"))

	got, err := v.Get([]byte("g:1"))
	if err != nil {
		t.Fatalf("View.Get failed: %v", err)
	}

	if string(got) != "before" {
		t.Errorf("view saw %q, want before", got)
	}

	var count int
	err = v.IteratePrefix([]byte("g:"), func(key, value []byte) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("View.IteratePrefix failed: %v", err)
	}

	if count != 1 {
		t.Errorf("view iterated %d keys, want 1", count)
	}
}

func TestSyncCommitsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	s, err := Open(path, Options{SyncCommits: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	b := s.NewBatch()
	b.Set([]byte("m:owner"), []byte("alice"))
	b.Set([]byte("g:1"), []byte{1})

	if err := b.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	got, err := s.Get([]byte("m:owner"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if string(got) != "alice" {
		t.Errorf("owner = %q, want alice", got)
	}
}

func TestEmptyValueIsNotMissing(t *testing.T) {
	s := newTestStorage(t)

	s.Set([]byte("g:empty"), []byte{})

	got, err := s.Get([]byte("g:empty"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got == nil {
		t.Error("empty value should not read as missing")
	}
}
