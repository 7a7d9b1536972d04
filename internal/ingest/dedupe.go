// Package ingest holds the duplicate prefilter applied to incoming signals.
package ingest

import (
	"sync"

	"github.com/willf/bloom"
)

// falsePositiveRate trades memory for a small chance of dropping a signal we
// have not actually seen. Acceptable: a missed signal usually reappears on
// the next poll cycle with the same fingerprint anyway, and real duplicates
// vastly outnumber collisions.
const falsePositiveRate = 0.001

// Deduper drops signal fingerprints that were already processed. Feeds
// re-serve the same items every poll cycle, so the overwhelming majority of
// fetched signals are repeats.
//
// Bloom filters cannot forget, so the filter is generational: once the
// current generation absorbs its capacity, it becomes the previous
// generation and a fresh one takes over. Lookups consult both, giving each
// fingerprint a remembered lifetime of one to two generations.
type Deduper struct {
	mu       sync.Mutex
	capacity uint
	adds     uint
	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
}

// NewDeduper creates a Deduper sized for roughly capacity fingerprints per
// generation.
func NewDeduper(capacity int) *Deduper {
	if capacity <= 0 {
		capacity = 1
	}
	return &Deduper{
		capacity: uint(capacity),
		current:  bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
	}
}

// Seen reports whether the fingerprint was already recorded, recording it as
// a side effect when new.
func (d *Deduper) Seen(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current.TestString(fingerprint) {
		return true
	}
	if d.previous != nil && d.previous.TestString(fingerprint) {
		return true
	}

	d.current.AddString(fingerprint)
	d.adds++
	if d.adds >= d.capacity {
		d.rotate()
	}
	return false
}

func (d *Deduper) rotate() {
	d.previous = d.current
	d.current = bloom.NewWithEstimates(d.capacity, falsePositiveRate)
	d.adds = 0
}
