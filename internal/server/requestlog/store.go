// Package requestlog provides an in-memory ring buffer of recent HTTP
// requests, served to the dashboard for quick inspection without a log
// aggregator.
package requestlog

import (
	"sync"
	"time"
)

// Entry represents a single HTTP request log entry.
type Entry struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	Query      string        `json:"query,omitempty"`
	Status     int           `json:"status"`
	Duration   time.Duration `json:"duration"`
	DurationMS float64       `json:"duration_ms"`
	BytesIn    int64         `json:"bytes_in"`
	BytesOut   int64         `json:"bytes_out"`
	ClientIP   string        `json:"client_ip"`
	UserAgent  string        `json:"user_agent,omitempty"`
}

// Store is a thread-safe ring buffer for request logs.
type Store struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	head     int
	count    int
}

// NewStore creates a new request log store with the given capacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Store{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Add appends a new entry, evicting the oldest once full.
func (s *Store) Add(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[s.head] = entry
	s.head = (s.head + 1) % s.capacity
	if s.count < s.capacity {
		s.count++
	}
}

// FilterOptions specifies criteria for filtering log entries.
type FilterOptions struct {
	Method    string
	Path      string
	Status    int
	MinStatus int
	MaxStatus int
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// ListResult contains the result of listing log entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// List returns log entries matching the filter options, newest first.
func (s *Store) List(opts FilterOptions) ListResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}

	var filtered []Entry
	for i := 0; i < s.count; i++ {
		idx := (s.head - 1 - i + s.capacity) % s.capacity
		entry := s.entries[idx]

		if matchesFilter(entry, opts) {
			filtered = append(filtered, entry)
		}
	}

	total := len(filtered)

	start := opts.Offset
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}

	return ListResult{
		Entries: filtered[start:end],
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}
}

func matchesFilter(entry Entry, opts FilterOptions) bool {
	if opts.Method != "" && entry.Method != opts.Method {
		return false
	}
	if opts.Path != "" && entry.Path != opts.Path {
		return false
	}
	if opts.Status != 0 && entry.Status != opts.Status {
		return false
	}
	if opts.MinStatus != 0 && entry.Status < opts.MinStatus {
		return false
	}
	if opts.MaxStatus != 0 && entry.Status > opts.MaxStatus {
		return false
	}
	if !opts.Since.IsZero() && entry.Timestamp.Before(opts.Since) {
		return false
	}
	if !opts.Until.IsZero() && entry.Timestamp.After(opts.Until) {
		return false
	}
	return true
}

// Count returns the number of entries currently in the store.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Clear removes all entries from the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make([]Entry, s.capacity)
	s.head = 0
	s.count = 0
}
