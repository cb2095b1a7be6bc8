package autoreply

import "sync"

// DedupTracker remembers the conversation threads already answered during
// this process lifetime. It is never persisted.
type DedupTracker struct {
	mu      sync.Mutex
	threads map[string]struct{}
}

// NewDedupTracker returns an empty tracker.
func NewDedupTracker() *DedupTracker {
	return &DedupTracker{threads: make(map[string]struct{})}
}

// Seen reports whether threadID has been recorded.
func (d *DedupTracker) Seen(threadID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.threads[threadID]
	return ok
}

// Record marks threadID as answered.
func (d *DedupTracker) Record(threadID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threads[threadID] = struct{}{}
}

// Len returns the number of recorded threads.
func (d *DedupTracker) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.threads)
}
