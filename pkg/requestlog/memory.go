package requestlog

import (
	"context"
	"sync"
	"time"

	"apiorch/pkg/models"
)

const DefaultMemoryCapacity = 1000

// MemorySink keeps the most recent entries in a fixed-size ring.
type MemorySink struct {
	mu      sync.RWMutex
	entries []models.RequestLogEntry
	next    int
	full    bool
}

// NewMemorySink creates a ring holding up to capacity entries.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemorySink{entries: make([]models.RequestLogEntry, capacity)}
}

func (m *MemorySink) Append(_ context.Context, entry models.RequestLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[m.next] = entry
	m.next = (m.next + 1) % len(m.entries)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Recent returns up to n entries, newest first. n <= 0 returns everything held.
func (m *MemorySink) Recent(n int) []models.RequestLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	size := m.lenLocked()
	if n <= 0 || n > size {
		n = size
	}

	out := make([]models.RequestLogEntry, 0, n)
	idx := m.next
	for i := 0; i < n; i++ {
		idx = (idx - 1 + len(m.entries)) % len(m.entries)
		out = append(out, m.entries[idx])
	}
	return out
}

// ByRequest returns every held attempt of one logical request, oldest first.
func (m *MemorySink) ByRequest(requestID string) []models.RequestLogEntry {
	all := m.Recent(0)
	out := []models.RequestLogEntry{}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].RequestID == requestID {
			out = append(out, all[i])
		}
	}
	return out
}

// Len returns how many entries the ring currently holds.
func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lenLocked()
}

func (m *MemorySink) lenLocked() int {
	if m.full {
		return len(m.entries)
	}
	return m.next
}

// Prune drops entries with a timestamp before olderThan.
func (m *MemorySink) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := m.lenLocked()
	start := 0
	if m.full {
		start = m.next
	}

	kept := make([]models.RequestLogEntry, 0, size)
	for i := 0; i < size; i++ {
		entry := m.entries[(start+i)%len(m.entries)]
		if entry.Timestamp.Before(olderThan) {
			continue
		}
		kept = append(kept, entry)
	}

	removed := int64(size - len(kept))
	ring := make([]models.RequestLogEntry, len(m.entries))
	copy(ring, kept)
	m.entries = ring
	m.next = len(kept) % len(ring)
	m.full = len(kept) == len(ring)
	return removed, nil
}
