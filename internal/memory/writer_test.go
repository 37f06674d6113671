package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	loomerr "github.com/loomchat/loom/internal/errors"
	"github.com/loomchat/loom/internal/telemetry"
)

// fakeStore records operations and can be told to fail or stall.
type fakeStore struct {
	mu       sync.Mutex
	appended []Record
	cleared  []string
	failWith error
	delay    time.Duration
}

func (f *fakeStore) Append(ctx context.Context, rec Record) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return unavailable("append record", ctx.Err())
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.appended = append(f.appended, rec)
	return nil
}

func (f *fakeStore) LoadRecent(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []Record
	for _, r := range f.appended {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) ClearSession(ctx context.Context, sessionID string) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return unavailable("clear session", ctx.Err())
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.cleared = append(f.cleared, sessionID)
	kept := f.appended[:0]
	for _, r := range f.appended {
		if r.SessionID != sessionID {
			kept = append(kept, r)
		}
	}
	f.appended = kept
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) setFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

func (f *fakeStore) appendedRecords() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]Record, len(f.appended))
	copy(cp, f.appended)
	return cp
}

func testLogger() *telemetry.Logger {
	return telemetry.NewLogger(false)
}

func TestWriter_AppliesInSubmissionOrder(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store, 64, time.Second, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		r := Record{SessionID: "s1", Role: RoleUser, Content: fmt.Sprintf("msg-%d", i), Seq: uint64(i)}
		if err := w.EnqueueAppend(r, func(error) { wg.Done() }); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
	w.Close()

	recs := store.appendedRecords()
	if len(recs) != 10 {
		t.Fatalf("expected 10 appends, got %d", len(recs))
	}
	for i, r := range recs {
		if r.Seq != uint64(i) {
			t.Errorf("position %d: expected seq %d, got %d", i, i, r.Seq)
		}
	}
}

func TestWriter_CompletionCallbackSeesError(t *testing.T) {
	store := &fakeStore{}
	store.setFailure(unavailable("append record", fmt.Errorf("disk full")))
	w := NewWriter(store, 8, time.Second, testLogger())
	defer w.Close()

	errCh := make(chan error, 1)
	if err := w.EnqueueAppend(Record{SessionID: "s1"}, func(err error) { errCh <- err }); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		if loomerr.AsCode(err) != loomerr.CodeStorageUnavailable {
			t.Errorf("expected STORAGE_UNAVAILABLE, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestWriter_TimeoutBecomesStorageUnavailable(t *testing.T) {
	store := &fakeStore{delay: 500 * time.Millisecond}
	w := NewWriter(store, 8, 50*time.Millisecond, testLogger())
	defer w.Close()

	errCh := make(chan error, 1)
	w.EnqueueAppend(Record{SessionID: "s1"}, func(err error) { errCh <- err })

	select {
	case err := <-errCh:
		if loomerr.AsCode(err) != loomerr.CodeStorageUnavailable {
			t.Errorf("expected STORAGE_UNAVAILABLE for timed-out write, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestWriter_FullQueueRejectsSynchronously(t *testing.T) {
	store := &fakeStore{delay: time.Second}
	w := NewWriter(store, 1, 5*time.Second, testLogger())
	defer w.Close()

	// First job occupies the worker, second fills the queue.
	w.EnqueueAppend(Record{SessionID: "s1", Seq: 0}, nil)
	w.EnqueueAppend(Record{SessionID: "s1", Seq: 1}, nil)

	// Eventually a submission must be rejected rather than blocking or
	// being dropped.
	var rejected bool
	for i := 0; i < 5; i++ {
		if err := w.EnqueueAppend(Record{SessionID: "s1", Seq: uint64(2 + i)}, nil); err != nil {
			if loomerr.AsCode(err) != loomerr.CodeStorageUnavailable {
				t.Fatalf("expected STORAGE_UNAVAILABLE, got %v", err)
			}
			rejected = true
			break
		}
	}
	if !rejected {
		t.Fatal("expected a rejection once the queue filled")
	}
}

func TestWriter_ClosedRejectsNewWork(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store, 8, time.Second, testLogger())
	w.Close()

	err := w.EnqueueAppend(Record{SessionID: "s1"}, nil)
	if loomerr.AsCode(err) != loomerr.CodeStorageUnavailable {
		t.Errorf("expected STORAGE_UNAVAILABLE after close, got %v", err)
	}
}

func TestWriter_CloseDrainsQueue(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store, 64, time.Second, testLogger())

	for i := 0; i < 20; i++ {
		w.EnqueueAppend(Record{SessionID: "s1", Seq: uint64(i)}, nil)
	}
	w.Close()

	if got := len(store.appendedRecords()); got != 20 {
		t.Errorf("expected all 20 writes applied before Close returned, got %d", got)
	}
}

func TestWriter_ClearRidesTheSameQueue(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store, 64, time.Second, testLogger())

	w.EnqueueAppend(Record{SessionID: "s1", Content: "before", Seq: 0}, nil)
	w.EnqueueClear("s1", nil)
	w.EnqueueAppend(Record{SessionID: "s1", Content: "after", Seq: 0}, nil)
	w.Close()

	recs := store.appendedRecords()
	if len(recs) != 1 || recs[0].Content != "after" {
		t.Errorf("clear should apply between the appends, got %v", recs)
	}
}
