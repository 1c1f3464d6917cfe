package events

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"github.com/pitchside/commentary-engine/internal/observability"
)

var (
	// ErrDuplicate is returned by Admit when the event id has already
	// been seen or already committed
	ErrDuplicate = errors.New("duplicate event")

	// ErrClosed is returned by Next once the queue has been closed
	ErrClosed = errors.New("event queue closed")
)

// defaultSeenLimit bounds the sliding dedup set; oldest ids are evicted
// first once the limit is reached.
const defaultSeenLimit = 10000

// CheckpointStore persists the queue's runtime state. Implemented by the
// state package; abstracted here so the queue owns the checkpoint without
// owning the file format.
type CheckpointStore interface {
	Load() (matchID, lastSpoken string, err error)
	Save(matchID, lastSpoken string) error
}

// queueItem orders events by (priority, admit sequence): smaller priority
// first, FIFO within a priority level.
type queueItem struct {
	ev  *Event
	seq uint64
}

type eventHeap []queueItem

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].ev.Priority != h[j].ev.Priority {
		return h[i].ev.Priority < h[j].ev.Priority
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(queueItem)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is the thread-safe priority queue between the stream client and
// the orchestrator. It owns the in-memory event set, the sliding dedup
// set, and the durable checkpoint of the last spoken event id.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	pending   eventHeap
	seq       uint64
	seen      map[string]struct{}
	seenOrder []string
	seenLimit int

	matchID    string
	lastSpoken string
	store      CheckpointStore
	closed     bool
}

// NewQueue creates a queue and loads the persisted checkpoint. A missing
// or corrupt state file starts fresh.
func NewQueue(store CheckpointStore) *Queue {
	q := &Queue{
		seen:      make(map[string]struct{}),
		seenLimit: defaultSeenLimit,
		store:     store,
	}
	q.cond = sync.NewCond(&q.mu)

	if store != nil {
		if matchID, lastSpoken, err := store.Load(); err == nil {
			q.matchID = matchID
			q.lastSpoken = lastSpoken
		}
	}
	return q
}

// Admit offers an event to the queue. Duplicates (seen before, or equal to
// the committed checkpoint) are rejected with ErrDuplicate.
func (q *Queue) Admit(ev *Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if ev.EventID == q.lastSpoken {
		observability.RecordAdmission("duplicate")
		return ErrDuplicate
	}
	if _, dup := q.seen[ev.EventID]; dup {
		observability.RecordAdmission("duplicate")
		return ErrDuplicate
	}

	q.rememberLocked(ev.EventID)
	q.seq++
	heap.Push(&q.pending, queueItem{ev: ev, seq: q.seq})
	observability.RecordAdmission("admitted")
	observability.SetQueueDepth(q.pending.Len())

	q.cond.Signal()
	return nil
}

// rememberLocked adds an id to the dedup set, evicting the oldest entry
// once the sliding window is full. Caller holds q.mu.
func (q *Queue) rememberLocked(id string) {
	q.seen[id] = struct{}{}
	q.seenOrder = append(q.seenOrder, id)
	for len(q.seenOrder) > q.seenLimit {
		evict := q.seenOrder[0]
		q.seenOrder = q.seenOrder[1:]
		delete(q.seen, evict)
	}
}

// Seed records an id in the dedup set without queueing anything. The
// stream client uses this for catch-up entries at or before the
// checkpoint: they were already spoken and must only block re-admission.
func (q *Queue) Seed(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, dup := q.seen[id]; !dup {
		q.rememberLocked(id)
	}
}

// Next returns the highest-priority pending event, blocking until one is
// available, the queue is closed (ErrClosed), or the context is cancelled.
func (q *Queue) Next(ctx context.Context) (*Event, error) {
	// Wake the cond wait when the caller's context is cancelled.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.closed || q.pending.Len() == 0 {
		if q.closed {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q.cond.Wait()
	}

	item := heap.Pop(&q.pending).(queueItem)
	observability.SetQueueDepth(q.pending.Len())
	return item.ev, nil
}

// Commit advances the checkpoint to the given event id and persists the
// runtime state. A persistence failure leaves the in-memory checkpoint
// advanced; the next successful write recovers.
func (q *Queue) Commit(eventID string) error {
	q.mu.Lock()
	q.lastSpoken = eventID
	matchID := q.matchID
	store := q.store
	q.mu.Unlock()

	if store == nil {
		return nil
	}
	return store.Save(matchID, eventID)
}

// Checkpoint returns the last committed event id, empty when none.
func (q *Queue) Checkpoint() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastSpoken
}

// SetMatchID records the current match. A match change clears the dedup
// set so ids from the previous match cannot shadow the new one.
func (q *Queue) SetMatchID(matchID string) {
	q.mu.Lock()
	changed := matchID != q.matchID
	if changed {
		q.matchID = matchID
		q.seen = make(map[string]struct{})
		q.seenOrder = nil
	}
	store := q.store
	lastSpoken := q.lastSpoken
	q.mu.Unlock()

	if changed && store != nil {
		_ = store.Save(matchID, lastSpoken)
	}
}

// MatchID returns the current match id.
func (q *Queue) MatchID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.matchID
}

// Depth returns the number of pending events.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Close wakes all blocked Next callers with ErrClosed. Admit rejects
// afterwards; already-pending events are discarded.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
