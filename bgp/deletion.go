package bgp

import (
	"sync"
	"time"
)

// deletionJob is one peer-down's worth of pending withdrawals.
type deletionJob struct {
	rib       *RibIn
	keys      []string
	batchSize int
}

// DeletionTable drains a peer's withdrawn routes gradually on a ticker,
// rather than all at once, so a large peer's withdrawal doesn't spike
// downstream stage queues. Batch size and tick interval are
// configuration.
type DeletionTable struct {
	mu       sync.Mutex
	jobs     []*deletionJob
	interval time.Duration
	stop     chan struct{}
}

// DefaultDeletionInterval is the tick period between drained batches.
const DefaultDeletionInterval = 50 * time.Millisecond

// NewDeletionTable starts a background ticker draining enqueued jobs.
// Call Close to stop it.
func NewDeletionTable(interval time.Duration) *DeletionTable {
	if interval <= 0 {
		interval = DefaultDeletionInterval
	}
	dt := &DeletionTable{interval: interval, stop: make(chan struct{})}
	go dt.run()
	return dt
}

// Enqueue schedules keys for gradual withdrawal from rib, batchSize keys
// per tick (0 means drain a job's entirety on the very next tick).
func (dt *DeletionTable) Enqueue(rib *RibIn, keys []string, batchSize int) {
	if len(keys) == 0 {
		return
	}
	if batchSize <= 0 {
		batchSize = len(keys)
	}
	dt.mu.Lock()
	dt.jobs = append(dt.jobs, &deletionJob{rib: rib, keys: keys, batchSize: batchSize})
	dt.mu.Unlock()
}

// Pending returns the total number of keys not yet drained, for tests.
func (dt *DeletionTable) Pending() int {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	var n int
	for _, j := range dt.jobs {
		n += len(j.keys)
	}
	return n
}

func (dt *DeletionTable) run() {
	ticker := time.NewTicker(dt.interval)
	defer ticker.Stop()
	for {
		select {
		case <-dt.stop:
			return
		case <-ticker.C:
			dt.drainOneTick()
		}
	}
}

func (dt *DeletionTable) drainOneTick() {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	var remaining []*deletionJob
	for _, j := range dt.jobs {
		var n = j.batchSize
		if n > len(j.keys) {
			n = len(j.keys)
		}
		for _, key := range j.keys[:n] {
			j.rib.DeleteRoute(key)
		}
		j.keys = j.keys[n:]
		if len(j.keys) > 0 {
			remaining = append(remaining, j)
		}
	}
	dt.jobs = remaining
}

// DrainNow synchronously drains every enqueued job immediately, ignoring
// batch sizing — used by tests that want deterministic completion without
// waiting on the ticker.
func (dt *DeletionTable) DrainNow() {
	dt.mu.Lock()
	var jobs = dt.jobs
	dt.jobs = nil
	dt.mu.Unlock()

	for _, j := range jobs {
		for _, key := range j.keys {
			j.rib.DeleteRoute(key)
		}
	}
}

// Close stops the background ticker goroutine.
func (dt *DeletionTable) Close() { close(dt.stop) }
