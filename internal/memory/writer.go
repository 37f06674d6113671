package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	loomerr "github.com/loomchat/loom/internal/errors"
	"github.com/loomchat/loom/internal/telemetry"
)

type jobKind int

const (
	jobAppend jobKind = iota
	jobClear
)

// job is one durable store operation plus its completion callback.
type job struct {
	kind      jobKind
	rec       Record
	sessionID string
	done      func(error)
}

// Writer adapts the store's blocking I/O to the synchronous interactive
// path. Callers enqueue work and return immediately; a single background
// worker drains the queue in submission order. One worker means writes for
// a session can never reorder or race each other; per-session
// single-flight falls out of the FIFO.
//
// A full or closed queue rejects the submission synchronously with
// STORAGE_UNAVAILABLE; no operation is ever silently dropped.
type Writer struct {
	store   Store
	queue   chan job
	timeout time.Duration
	logger  *telemetry.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewWriter starts the background worker.
func NewWriter(store Store, queueSize int, timeout time.Duration, logger *telemetry.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	w := &Writer{
		store:   store,
		queue:   make(chan job, queueSize),
		timeout: timeout,
		logger:  logger,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// EnqueueAppend schedules a durable append. done is called from the worker
// goroutine with the operation's result; it must not block.
func (w *Writer) EnqueueAppend(rec Record, done func(error)) error {
	return w.submit(job{kind: jobAppend, rec: rec, sessionID: rec.SessionID, done: done})
}

// EnqueueClear schedules a durable session clear. Riding the same queue as
// appends means a clear can never overtake a still-pending append and
// resurrect rows.
func (w *Writer) EnqueueClear(sessionID string, done func(error)) error {
	return w.submit(job{kind: jobClear, sessionID: sessionID, done: done})
}

func (w *Writer) submit(j job) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return loomerr.New(loomerr.CodeStorageUnavailable, "writer is shut down")
	}
	select {
	case w.queue <- j:
		return nil
	default:
		return loomerr.New(loomerr.CodeStorageUnavailable, "durable write queue is full").
			WithSuggestion("Raise memory.queue_size or check the store medium")
	}
}

func (w *Writer) run() {
	defer w.wg.Done()

	for j := range w.queue {
		err := w.execute(j)
		if j.done != nil {
			j.done(err)
		}
	}
}

func (w *Writer) execute(j job) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var err error
	switch j.kind {
	case jobAppend:
		err = w.store.Append(ctx, j.rec)
	case jobClear:
		err = w.store.ClearSession(ctx, j.sessionID)
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		// A write that outlives its budget counts as a storage fault. It is
		// not retried here: a blind retry could reorder with a later write
		// for the same session.
		err = loomerr.Wrap(loomerr.CodeStorageUnavailable, "durable operation timed out", err)
	}
	return err
}

// QueueDepth returns the number of operations waiting to be applied.
func (w *Writer) QueueDepth() int {
	return len(w.queue)
}

// Close stops accepting work, drains the queue, and waits for the worker.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
}
