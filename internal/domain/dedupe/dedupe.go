// Package dedupe tracks in-flight work keys so identical refresh jobs are
// not queued twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Deduper records claimed work keys until the work completes.
type Deduper interface {
	// SeenAndRecord atomically checks if key is already claimed and claims it
	// if not. Returns true if key was already claimed.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord releases a claim so the same work may be submitted again.
	// Callers release after the work finishes or fails to be enqueued.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

type claim struct {
	key string
	at  time.Time
}

// inMemoryDeduper keeps claims in a list ordered newest first. In bounded
// mode (maxSize > 0) the oldest claim is evicted to make room. Claims older
// than ttl (when ttl > 0) no longer block a new claim.
type inMemoryDeduper struct {
	mu      sync.Mutex
	claims  map[string]*list.Element
	order   *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		claims:  make(map[string]*list.Element),
		order:   list.New(),
		maxSize: 50000,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if el, ok := d.claims[key]; ok {
		c := el.Value.(*claim)
		if d.ttl <= 0 || now.Sub(c.at) < d.ttl {
			return true
		}
		// Expired claim: take it over.
		c.at = now
		d.order.MoveToFront(el)
		return false
	}

	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.removeElement(d.order.Back())
	}
	d.claims[key] = d.order.PushFront(&claim{key: key, at: now})
	d.size.Add(1)
	return false
}

// Unrecord implements Deduper.
func (d *inMemoryDeduper) Unrecord(ctx context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.claims[key]; ok {
		d.removeElement(el)
	}
}

// removeElement must be called with d.mu held.
func (d *inMemoryDeduper) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	c := d.order.Remove(el).(*claim)
	delete(d.claims, c.key)
	d.size.Add(-1)
}

// Size returns the current number of claims.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
