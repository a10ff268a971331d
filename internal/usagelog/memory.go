package usagelog

import (
	"context"
	"sync"
)

// keeps entries in process; used when DATABASE_URL is unset and in tests
type MemoryRecorder struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

// creates a recorder that keeps at most capacity entries
func NewMemoryRecorder(capacity int) *MemoryRecorder {
	return &MemoryRecorder{capacity: capacity}
}

func (r *MemoryRecorder) Record(_ context.Context, entry *Entry) error {
	entry.stamp()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, *entry)
	if r.capacity > 0 && len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}

	return nil
}

func (r *MemoryRecorder) Recent(_ context.Context, subjectID string, limit int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry

	for i := len(r.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if r.entries[i].SubjectID == subjectID {
			out = append(out, r.entries[i])
		}
	}

	return out, nil
}

func (r *MemoryRecorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
