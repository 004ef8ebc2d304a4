package report

import "sync"

// DefaultHistorySize bounds how many runs a session remembers.
const DefaultHistorySize = 50

// History keeps the most recent results of a session. When full the oldest
// result is dropped.
type History struct {
	results []*Result
	maxSize int
	mu      sync.RWMutex
}

// NewHistory creates a history holding at most maxSize results.
func NewHistory(maxSize int) *History {
	if maxSize < 1 {
		maxSize = 1
	}
	return &History{
		results: make([]*Result, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record appends r.
func (h *History) Record(r *Result) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.results) >= h.maxSize {
		h.results = h.results[1:]
	}
	h.results = append(h.results, r)
}

// Recent returns up to n results, newest first. n <= 0 returns all of them.
func (h *History) Recent(n int) []*Result {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > len(h.results) {
		n = len(h.results)
	}
	out := make([]*Result, n)
	for i := 0; i < n; i++ {
		out[i] = h.results[len(h.results)-1-i]
	}
	return out
}

// Len returns the number of results held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.results)
}

// Crashes counts the held results that did not stop normally.
func (h *History) Crashes() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, r := range h.results {
		if r.Outcome == OutcomeCrashed {
			n++
		}
	}
	return n
}
