package memory

import "sync"

// Buffer holds the most recent turns of one session, oldest first. It is a
// bounded cache of the tail of the session's history: appending beyond
// capacity evicts from the head. All operations are in-process and never
// fail; durability is the store's job.
type Buffer struct {
	mu        sync.RWMutex
	sessionID string
	capacity  int
	records   []Record
}

// NewBuffer creates an empty buffer for the session.
func NewBuffer(sessionID string, capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		sessionID: sessionID,
		capacity:  capacity,
		records:   make([]Record, 0, capacity),
	}
}

// Append inserts a record at the tail, evicting the oldest record if the
// buffer is full.
func (b *Buffer) Append(rec Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(b.records, rec)
	if len(b.records) > b.capacity {
		// Shift rather than reslice so evicted records don't pin the array.
		n := copy(b.records, b.records[len(b.records)-b.capacity:])
		b.records = b.records[:n]
	}
}

// Snapshot returns a copy of the buffered records, oldest first. The copy
// does not reflect records appended after the call returns.
func (b *Buffer) Snapshot() []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Record, len(b.records))
	copy(out, b.records)
	return out
}

// Clear empties the buffer. The persistent store is untouched; coordinating
// both is the Manager's job.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = b.records[:0]
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// Capacity returns the configured window size.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// SessionID returns the owning session's id.
func (b *Buffer) SessionID() string {
	return b.sessionID
}
