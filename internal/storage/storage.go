package storage

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

// KeyValue is one write of SetBatch.
type KeyValue struct {
	Key   []byte // Key is the key to store
	Value []byte // Value is the value to store
}

// Reader is the read side shared by Storage, Batch and View.
type Reader interface {
	Get(key []byte) ([]byte, error)
}

// Options tunes the Pebble store.
type Options struct {
	// CacheSize is the block cache size in bytes.
	CacheSize int64

	// SyncCommits fsyncs every batch commit before it returns. When false,
	// commits reach the WAL unsynced and a background loop syncs it every
	// SyncInterval.
	SyncCommits bool

	// SyncInterval is the background WAL sync period without SyncCommits.
	SyncInterval time.Duration
}

// DefaultOptions returns the options used by New.
func DefaultOptions() Options {
	return Options{
		CacheSize:    16 << 20,
		SyncInterval: 100 * time.Millisecond,
	}
}

// Storage is the vault's key-value store backed by Pebble.
type Storage struct {
	db     *pebble.DB
	commit *pebble.WriteOptions // commit applies to batch commits
	stop   chan struct{}        // stop ends the sync loop
	wg     sync.WaitGroup
}

// New opens the store at path with DefaultOptions.
func New(path string) (*Storage, error) {
	return Open(path, DefaultOptions())
}

// Open opens the store at path.
func Open(path string, opts Options) (*Storage, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultOptions().CacheSize
	}

	cache := pebble.NewCache(opts.CacheSize)
	defer cache.Unref()

	db, err := pebble.Open(path, &pebble.Options{
		Cache:                       cache,
		MemTableSize:                8 << 20,
		MemTableStopWritesThreshold: 2,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s:\n%w", path, err)
	}

	s := &Storage{
		db:     db,
		commit: pebble.NoSync,
		stop:   make(chan struct{}),
	}

	if opts.SyncCommits {
		s.commit = pebble.Sync
		return s, nil
	}

	interval := opts.SyncInterval
	if interval <= 0 {
		interval = DefaultOptions().SyncInterval
	}

	s.wg.Add(1)
	go s.syncLoop(interval)

	return s, nil
}

// Get returns the value stored at key, or nil if the key is absent.
func (s *Storage) Get(key []byte) ([]byte, error) {
	return detach(s.db.Get(key))
}

// Set writes a single key outside any batch.
func (s *Storage) Set(key, value []byte) error {
	return s.db.Set(key, value, s.commit)
}

// Delete removes a single key outside any batch.
func (s *Storage) Delete(key []byte) error {
	return s.db.Delete(key, s.commit)
}

// SetBatch writes all pairs or none of them.
func (s *Storage) SetBatch(pairs []KeyValue) error {
	b := s.NewBatch()
	defer b.Discard()

	for _, kv := range pairs {
		if err := b.Set(kv.Key, kv.Value); err != nil {
			return err
		}
	}

	return b.Commit()
}

// NewBatch opens an indexed batch. Reads through the batch observe its
// own pending writes; nothing reaches the database until Commit.
func (s *Storage) NewBatch() *Batch {
	return &Batch{b: s.db.NewIndexedBatch(), commit: s.commit}
}

// IteratePrefix calls fn for each pair under prefix, in key order. An
// error from fn stops the scan and is returned.
func (s *Storage) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	return scan(s.db, prefix, prefixUpperBound(prefix), fn)
}

// IterateFrom is IteratePrefix starting at start (inclusive).
func (s *Storage) IterateFrom(prefix, start []byte, fn func(key, value []byte) error) error {
	return scan(s.db, start, prefixUpperBound(prefix), fn)
}

// Close flushes the WAL and closes the database.
func (s *Storage) Close() error {
	close(s.stop)
	s.wg.Wait()

	if err := s.db.LogData(nil, pebble.Sync); err != nil {
		return fmt.Errorf("final sync:\n%w", err)
	}

	return s.db.Close()
}

func (s *Storage) syncLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.db.LogData(nil, pebble.Sync)
		case <-s.stop:
			return
		}
	}
}

// iterable is implemented by pebble.DB, pebble.Batch and pebble.Snapshot.
type iterable interface {
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

// scan visits [lower, upper). A nil upper bound means the end of the
// keyspace.
func scan(src iterable, lower, upper []byte, fn func(key, value []byte) error) error {
	iter, err := src.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// prefixUpperBound is the smallest key greater than every key with the
// prefix, or nil when the prefix is all 0xFF.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}

	return nil
}

// detach copies a Pebble value out of its closer so it outlives the read.
// A missing key is a nil value, not an error.
func detach(value []byte, closer io.Closer, err error) ([]byte, error) {
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}
