package storage

import (
	"github.com/cockroachdb/pebble"
)

// Batch groups writes that must land together.
// Either Commit applies every write or Discard drops all of them.
type Batch struct {
	b      *pebble.Batch
	commit *pebble.WriteOptions
	done   bool
}

// Get reads a key, observing writes already staged in the batch.
// Returns nil if the key does not exist.
func (b *Batch) Get(key []byte) ([]byte, error) {
	return detach(b.b.Get(key))
}

// Set stages a key-value pair.
func (b *Batch) Set(key, value []byte) error {
	return b.b.Set(key, value, nil)
}

// Delete stages a key removal.
func (b *Batch) Delete(key []byte) error {
	return b.b.Delete(key, nil)
}

// Len returns the number of staged writes.
func (b *Batch) Len() int {
	return int(b.b.Count())
}

// Commit applies all staged writes atomically and releases the batch.
func (b *Batch) Commit() error {
	if b.done {
		return nil
	}
	b.done = true

	defer b.b.Close()

	return b.b.Commit(b.commit)
}

// Discard drops all staged writes. Safe to call after Commit.
func (b *Batch) Discard() {
	if b.done {
		return
	}
	b.done = true

	_ = b.b.Close()
}
