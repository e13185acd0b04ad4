package notify

import (
	"sync"
	"time"
)

// sweepAt is the number of remembered keys that triggers an expiry sweep.
const sweepAt = 1024

// Dedup remembers notification keys for a time-to-live window so a terminal
// outcome is delivered at most once even when it is reported twice. It is
// safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // key -> first seen time
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup that considers a key a duplicate if it has been
// seen within ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate returns true if key has been seen within the TTL window. If the
// key has not been seen (or has expired), it is recorded and false is
// returned.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if seenAt, ok := d.seen[key]; ok && now.Sub(seenAt) < d.ttl {
		return true
	}
	if len(d.seen) >= sweepAt {
		d.sweep(now)
	}
	d.seen[key] = now
	return false
}

// Len returns the number of remembered keys.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// sweep removes expired keys. The caller holds mu.
func (d *Dedup) sweep(now time.Time) {
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}
