// Package dedup keeps a bounded set of URL fingerprints.
//
// Memory is capped: once capacity is reached the oldest fifth of the
// fingerprints is forgotten, so a very large crawl may revisit a URL it saw
// long ago. That is an accepted limitation of the bounded set.
package dedup

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const DefaultCapacity = 100000

type Deduplicator struct {
	capacity int

	mu    sync.Mutex
	seen  map[uint64]struct{}
	order []uint64 // insertion order, oldest first
}

func New(capacity int) *Deduplicator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Deduplicator{
		capacity: capacity,
		seen:     make(map[uint64]struct{}, capacity),
		order:    make([]uint64, 0, capacity),
	}
}

// Fingerprint returns the 64-bit xxhash of a normalized URL.
func Fingerprint(url string) uint64 {
	return xxhash.Sum64String(url)
}

// IsDuplicate reports whether url was seen before. A new url is recorded.
func (d *Deduplicator) IsDuplicate(url string) bool {
	fp := Fingerprint(url)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[fp]; ok {
		return true
	}
	if len(d.order) >= d.capacity {
		d.evict()
	}
	d.seen[fp] = struct{}{}
	d.order = append(d.order, fp)
	return false
}

func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

// evict drops the oldest 20% of fingerprints (at least one).
func (d *Deduplicator) evict() {
	n := len(d.order) / 5
	if n == 0 {
		n = 1
	}
	for _, fp := range d.order[:n] {
		delete(d.seen, fp)
	}
	kept := make([]uint64, len(d.order)-n, d.capacity)
	copy(kept, d.order[n:])
	d.order = kept
}
