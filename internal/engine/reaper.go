package engine

import (
	"time"

	"github.com/linklocal/mdns/internal/cache"
	"github.com/linklocal/mdns/internal/wire"
)

// reapInterval is how often the reaper sweeps the cache for expired
// records.
const reapInterval = 10 * time.Second

// Listener is notified of record updates. The reaper calls it only for
// records it is about to evict (the call where now is at or past the
// record's expiration); records that have not yet expired are not reported
// by a sweep.
type Listener interface {
	UpdateRecord(now time.Time, rec *wire.Record)
}

// Reaper periodically removes expired records from a cache, notifying a
// snapshot of registered listeners before each eviction so callers (the
// browser and resolver state machines) can react to a record's departure.
type Reaper struct {
	cache     *cache.Cache
	cond      *Cond
	listeners func() []Listener

	done chan struct{}
}

// NewReaper returns a Reaper that sweeps c every reapInterval, notifying
// whatever listeners() returns at the start of each sweep. listeners may
// be called concurrently with registration changes elsewhere; it must
// return a safe-to-range snapshot.
func NewReaper(c *cache.Cache, listeners func() []Listener) *Reaper {
	return &Reaper{
		cache:     c,
		cond:      NewCond(),
		listeners: listeners,
		done:      make(chan struct{}),
	}
}

// Run sweeps the cache until Stop is called. It is meant to be run on its
// own goroutine.
func (r *Reaper) Run() {
	r.cond.Lock()
	for {
		select {
		case <-r.done:
			r.cond.Unlock()
			return
		default:
		}

		r.cond.WaitTimeout(reapInterval)

		select {
		case <-r.done:
			r.cond.Unlock()
			return
		default:
		}

		r.sweep()
	}
}

func (r *Reaper) sweep() {
	now := time.Now()
	listeners := r.listeners()

	for _, rec := range r.cache.Entries() {
		if !rec.IsExpired(now) {
			continue
		}
		for _, l := range listeners {
			l.UpdateRecord(now, rec)
		}
		r.cache.Remove(rec)
	}
}

// Stop signals Run to return. It does not wait for Run's goroutine to
// exit; callers that need that guarantee should synchronize separately.
func (r *Reaper) Stop() {
	r.cond.Lock()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	r.cond.Broadcast()
	r.cond.Unlock()
}
