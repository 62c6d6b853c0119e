// Package dataqueue implements the bounded FIFO of spec.md §4.3 (C3): a
// single queue holding sample items and stream-type items, ordered by
// timestamp, with lazy drop-oldest-on-overflow eviction.
//
// Structurally modeled on the teacher's preference for "a mutex plus the
// simplest slice/map that's obviously correct" (cf.
// internal/mqtt's messageRateLimiter) rather than a heap: queue capacity
// in this domain is bounded by the number of live reader proxies
// (spec.md §4.4), so a sorted-slice insert is the right-sized structure.
package dataqueue

import (
	"sort"
	"sync"

	"github.com/cariad-tech/fep3-participant-sub000/sample"
	"github.com/cariad-tech/fep3-participant-sub000/streamtype"
)

// Kind distinguishes the two item shapes a Queue can hold.
type Kind int

const (
	KindSample Kind = iota
	KindType
)

// Item is one queue entry: either a Sample or a StreamType change,
// tagged by Kind and keyed by timestamp for ordering/eviction.
type Item struct {
	Kind      Kind
	Timestamp int64
	Sample    sample.Sample
	Type      *streamtype.StreamType
}

// Receiver is the popFront callback surface (spec.md §4.3: "popFront
// calls the receiver's overload appropriate to the item kind").
type Receiver interface {
	OnSample(s sample.Sample)
	OnType(st *streamtype.StreamType)
}

// Queue is a bounded, timestamp-ordered FIFO. A capacity of 0 denotes
// unbounded (spec.md §4.3). Safe for single-producer/single-consumer use;
// concurrent multi-consumer Pop is not guaranteed to be linearizable
// across consumers (spec.md: "multi-consumer pop is not required").
type Queue struct {
	mu       sync.Mutex
	items    []Item
	capacity int
}

// New creates a Queue with the given capacity (0 == unbounded).
func New(capacity int) *Queue {
	return &Queue{capacity: capacity}
}

// PushSample sets the sample's time to t and inserts it keyed by t, so
// the key always equals sample.GetTime(). If the
// queue is at capacity, the item with the smallest timestamp (including
// the one being inserted, if it is itself the oldest) is evicted
// (spec.md §4.3 "drop-head-on-overflow").
func (q *Queue) PushSample(s sample.Sample, t int64) {
	s.SetTime(t)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.insertLocked(Item{Kind: KindSample, Timestamp: t, Sample: s})
}

// PushType inserts a stream-type item at timestamp t. Callers pass 0 so
// that type items compare equal-earliest for eviction purposes
// (spec.md §4.3).
func (q *Queue) PushType(st *streamtype.StreamType, t int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.insertLocked(Item{Kind: KindType, Timestamp: t, Type: st})
}

func (q *Queue) insertLocked(it Item) {
	// Insertion-sorted by timestamp; ties keep insertion order (stable)
	// so that fan-out to listeners/readers preserves arrival order
	// (spec.md §8 P7) even among same-timestamp items.
	idx := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].Timestamp > it.Timestamp
	})
	q.items = append(q.items, Item{})
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = it

	if q.capacity > 0 && len(q.items) > q.capacity {
		// Drop the item with the smallest timestamp — by construction
		// that's always index 0 in this sorted slice.
		q.items = q.items[1:]
	}
}

// Size returns the current number of queued items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the configured capacity (0 == unbounded).
func (q *Queue) Capacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// NextTime returns the timestamp of the front item and true, or
// (0, false) if the queue is empty (spec.md §4.3 nextTime).
func (q *Queue) NextTime() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return 0, false
	}
	return q.items[0].Timestamp, true
}

// PopFront removes the front item and dispatches it to receiver's
// matching overload. Returns false if the queue was empty (spec.md
// §4.3: "popFront on empty returns an 'empty' indication").
func (q *Queue) PopFront(receiver Receiver) bool {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return false
	}
	item := q.items[0]
	q.items = q.items[1:]
	q.mu.Unlock()

	switch item.Kind {
	case KindSample:
		receiver.OnSample(item.Sample)
	case KindType:
		receiver.OnType(item.Type)
	}
	return true
}

// Clear drains the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
