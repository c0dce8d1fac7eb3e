package bgp

import "sync"

// UpdateKind distinguishes the three logged pipeline events.
type UpdateKind uint8

const (
	UpdateAdd UpdateKind = iota
	UpdateReplace
	UpdateDelete
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateAdd:
		return "add"
	case UpdateReplace:
		return "replace"
	case UpdateDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// RouteUpdate is one entry in an UpdateQueue's log.
type RouteUpdate struct {
	Kind   UpdateKind
	Key    string
	OldKey string      // set for UpdateReplace only
	Route  SubnetRoute // zero value for UpdateDelete
}

// ReaderID is an opaque cursor into an UpdateQueue. Each reader advances
// independently; the queue retires an entry only once every live reader
// has moved past it.
type ReaderID uint64

// UpdateQueue is an append-only log of route additions, replacements
// and deletions. A triggered-update producer (such as
// a RibOut with an attached queue) appends; any number of readers
// walk the log through opaque cursors, each at its own pace.
//
// A new reader starts at the current tail: it observes only updates
// appended after its creation, which is the triggered-update contract —
// preexisting state is a dump's job, not the update log's.
type UpdateQueue struct {
	mu      sync.Mutex
	base    uint64 // absolute index of entries[0]
	entries []RouteUpdate
	readers map[ReaderID]uint64 // absolute position of next unread entry
	nextID  ReaderID
}

// NewUpdateQueue returns an empty queue with no readers.
func NewUpdateQueue() *UpdateQueue {
	return &UpdateQueue{readers: make(map[ReaderID]uint64)}
}

// Append logs one update. Entries with no reader behind them are retired
// immediately, so a queue nobody reads stays empty.
func (q *UpdateQueue) Append(u RouteUpdate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, u)
	q.retireLocked()
}

// NewReader creates a cursor positioned at the queue tail.
func (q *UpdateQueue) NewReader() ReaderID {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextID
	q.nextID++
	q.readers[id] = q.base + uint64(len(q.entries))
	return id
}

// DestroyReader releases a cursor. Entries it alone was holding back are
// retired.
func (q *UpdateQueue) DestroyReader(id ReaderID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.readers, id)
	q.retireLocked()
}

// Get returns the entry under the cursor without advancing, or false when
// the reader has consumed the whole log.
func (q *UpdateQueue) Get(id ReaderID) (RouteUpdate, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pos, ok := q.readers[id]
	if !ok || pos >= q.base+uint64(len(q.entries)) {
		return RouteUpdate{}, false
	}
	return q.entries[pos-q.base], true
}

// Next advances the cursor and returns the entry now under it, or false
// when the advance reaches the tail.
func (q *UpdateQueue) Next(id ReaderID) (RouteUpdate, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pos, ok := q.readers[id]
	if !ok {
		return RouteUpdate{}, false
	}
	tail := q.base + uint64(len(q.entries))
	if pos < tail {
		pos++
		q.readers[id] = pos
		q.retireLocked()
	}
	if pos >= q.base+uint64(len(q.entries)) {
		return RouteUpdate{}, false
	}
	return q.entries[pos-q.base], true
}

// FFwd jumps the cursor to the tail, discarding everything unread. A
// periodic full-table dump makes pending triggered updates redundant;
// the producer fast-forwards rather than re-advertising them.
func (q *UpdateQueue) FFwd(id ReaderID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.readers[id]; !ok {
		return
	}
	q.readers[id] = q.base + uint64(len(q.entries))
	q.retireLocked()
}

// Flush drops every logged entry and fast-forwards all readers.
func (q *UpdateQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.base += uint64(len(q.entries))
	q.entries = q.entries[:0]
	for id := range q.readers {
		q.readers[id] = q.base
	}
}

// Pending reports how many entries the reader has yet to consume.
func (q *UpdateQueue) Pending(id ReaderID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	pos, ok := q.readers[id]
	if !ok {
		return 0
	}
	return int(q.base + uint64(len(q.entries)) - pos)
}

// Len reports how many entries the log currently retains.
func (q *UpdateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// retireLocked drops entries every live reader has passed.
func (q *UpdateQueue) retireLocked() {
	min := q.base + uint64(len(q.entries))
	for _, pos := range q.readers {
		if pos < min {
			min = pos
		}
	}
	if min > q.base {
		q.entries = append(q.entries[:0], q.entries[min-q.base:]...)
		q.base = min
	}
}
