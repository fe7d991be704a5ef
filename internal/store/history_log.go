package store

import (
	"sync"

	"randomwiki/pkg/content"
)

// MaxHistoryItems bounds how many views are kept per owner.
const MaxHistoryItems = 50

// HistoryOption mutates history log configuration.
type HistoryOption func(*HistoryLog)

// WithHistoryLimit overrides MaxHistoryItems.
func WithHistoryLimit(limit int) HistoryOption {
	return func(log *HistoryLog) {
		if limit > 0 {
			log.limit = limit
		}
	}
}

// HistoryLog keeps each owner's most recent article views, newest first.
//
// Duplicates are kept; viewing the same article twice records two entries.
type HistoryLog struct {
	limit int

	mu      sync.RWMutex
	entries map[string][]content.HistoryEntry
}

// NewHistoryLog creates an empty log bounded by MaxHistoryItems per owner.
func NewHistoryLog(options ...HistoryOption) *HistoryLog {
	log := &HistoryLog{
		limit:   MaxHistoryItems,
		entries: make(map[string][]content.HistoryEntry),
	}
	for _, option := range options {
		option(log)
	}

	return log
}

// Append records entry as owner's newest view and drops the oldest beyond the limit.
func (h *HistoryLog) Append(owner string, entry content.HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current := h.entries[owner]
	size := len(current) + 1
	if size > h.limit {
		size = h.limit
	}

	next := make([]content.HistoryEntry, 0, size)
	next = append(next, entry)
	next = append(next, current[:size-1]...)
	h.entries[owner] = next
}

// Recent returns up to limit entries for owner, newest first.
//
// A non-positive limit returns every stored entry. Unknown owners get an
// empty slice. The result is a copy.
func (h *HistoryLog) Recent(owner string, limit int) []content.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	current := h.entries[owner]
	count := len(current)
	if limit > 0 && limit < count {
		count = limit
	}

	out := make([]content.HistoryEntry, count)
	copy(out, current[:count])

	return out
}

// Len returns how many entries owner currently has.
func (h *HistoryLog) Len(owner string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.entries[owner])
}

var _ content.History = (*HistoryLog)(nil)
