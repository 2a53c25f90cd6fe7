package network

import (
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// defaultDedupTTL covers the overlap between a backfill reply and the
// live events broadcast while it was in flight.
const defaultDedupTTL = 30 * time.Second

// Dedup remembers recently received messages by blake3 digest so a message
// delivered twice is handled once.
//
// Digests live in two generations that rotate every TTL, so a message is
// remembered for at least one TTL and at most two. Rotation happens inside
// Check; there is no background goroutine.
type Dedup struct {
	mu        sync.Mutex
	ttl       time.Duration
	current   map[[32]byte]struct{}
	previous  map[[32]byte]struct{}
	rotatedAt time.Time
	dropped   uint64
	now       func() time.Time
}

// NewDedup creates a deduplication tracker. A zero ttl selects the default.
func NewDedup(ttl time.Duration) *Dedup {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}

	d := &Dedup{
		ttl:      ttl,
		current:  make(map[[32]byte]struct{}),
		previous: make(map[[32]byte]struct{}),
		now:      time.Now,
	}
	d.rotatedAt = d.now()

	return d
}

// Check returns true the first time data is seen.
func (d *Dedup) Check(data []byte) bool {
	digest := blake3.Sum256(data)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.rotate()

	if _, ok := d.current[digest]; ok {
		d.dropped++
		return false
	}

	if _, ok := d.previous[digest]; ok {
		d.dropped++
		return false
	}

	d.current[digest] = struct{}{}

	return true
}

// Dropped returns how many duplicates were filtered.
func (d *Dedup) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.dropped
}

// Len returns the number of remembered digests.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.current) + len(d.previous)
}

// rotate ages the generations. Caller holds mu.
func (d *Dedup) rotate() {
	elapsed := d.now().Sub(d.rotatedAt)

	switch {
	case elapsed < d.ttl:
		return
	case elapsed < 2*d.ttl:
		d.previous = d.current
	default:
		d.previous = make(map[[32]byte]struct{})
	}

	d.current = make(map[[32]byte]struct{})
	d.rotatedAt = d.now()
}
