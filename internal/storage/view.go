package storage

import (
	"github.com/cockroachdb/pebble"
)

// View is a consistent point-in-time read view of the store.
// Writes committed after the view was opened are not visible through it.
type View struct {
	snap *pebble.Snapshot
}

// View opens a read view. The caller must Close it.
func (s *Storage) View() *View {
	return &View{snap: s.db.NewSnapshot()}
}

// Get retrieves the value for the given key as of the view.
// Returns nil if the key does not exist.
func (v *View) Get(key []byte) ([]byte, error) {
	return detach(v.snap.Get(key))
}

// IteratePrefix calls fn for each key-value pair with the given prefix.
func (v *View) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	return scan(v.snap, prefix, prefixUpperBound(prefix), fn)
}

// Close releases the view.
func (v *View) Close() error {
	return v.snap.Close()
}
