package memory

import (
	"context"
	"sync"
	"time"

	"github.com/loomchat/loom/internal/config"
	loomerr "github.com/loomchat/loom/internal/errors"
	"github.com/loomchat/loom/internal/event"
	"github.com/loomchat/loom/internal/telemetry"
)

// session is one active conversation: its window buffer plus bookkeeping
// for durability observability.
type session struct {
	buffer   *Buffer
	lastUsed time.Time
	nextSeq  uint64
	pending  int  // durable writes in flight
	failed   int  // durable writes that failed
	degraded bool // hydration failed; durable history may be incomplete
}

// Status describes a session's memory state, including the "not yet saved"
// surface the UI renders.
type Status struct {
	SessionID string `json:"session_id"`
	Turns     int    `json:"turns"`
	Capacity  int    `json:"capacity"`
	Pending   int    `json:"pending_writes"`
	Failed    int    `json:"failed_writes"`
	Degraded  bool   `json:"degraded"`
}

// Manager orchestrates one Buffer per active session against the shared
// Store. A turn is accepted the instant it enters the buffer; durability is
// eventual via the Writer. This is deliberate: the interactive path never
// waits on storage I/O, at the cost of a small loss window between
// buffer-append and durable-write completion.
type Manager struct {
	store    Store
	writer   *Writer
	capacity int
	idleTTL  time.Duration
	loadWait time.Duration

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	bus     *event.Bus

	mu       sync.Mutex
	sessions map[string]*session
	done     chan struct{}
	closed   bool
}

// NewManager starts the writer and the idle-session reaper.
func NewManager(store Store, cfg config.MemoryConfig, bus *event.Bus, logger *telemetry.Logger, metrics *telemetry.Metrics) *Manager {
	m := &Manager{
		store:    store,
		writer:   NewWriter(store, cfg.QueueSize, cfg.WriteTimeoutDuration(), logger),
		capacity: cfg.Capacity,
		idleTTL:  cfg.IdleTTLDuration(),
		loadWait: cfg.WriteTimeoutDuration(),
		logger:   logger,
		metrics:  metrics,
		bus:      bus,
		sessions: make(map[string]*session),
		done:     make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// GetOrCreate returns the session's status, creating and hydrating the
// session buffer on first reference. A store fault during hydration leaves
// the session usable with an empty buffer and the degraded flag set;
// chat availability wins over durability.
func (m *Manager) GetOrCreate(sessionID string) (Status, error) {
	if sessionID == "" {
		return Status{}, loomerr.New(loomerr.CodeSessionInvalid, "session id is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.getOrCreateLocked(sessionID)
	return m.statusLocked(sessionID, sess), nil
}

// getOrCreateLocked returns the active session, hydrating a new buffer
// from the store on first access. Caller holds m.mu.
func (m *Manager) getOrCreateLocked(sessionID string) *session {
	if sess, ok := m.sessions[sessionID]; ok {
		sess.lastUsed = time.Now()
		return sess
	}

	sess := &session{
		buffer:   NewBuffer(sessionID, m.capacity),
		lastUsed: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.loadWait)
	defer cancel()

	recs, err := m.store.LoadRecent(ctx, sessionID, m.capacity)
	if err != nil {
		// Start empty rather than failing the session, but say so.
		sess.degraded = true
		m.metrics.IncDegradedSessions()
		m.logger.Warn("Hydration failed; session starts empty",
			"session_id", sessionID, "error", err)
		m.bus.Emit(event.NewEvent(event.SessionDegraded, map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		}))
	} else {
		for _, rec := range recs {
			sess.buffer.Append(rec)
			if rec.Seq >= sess.nextSeq {
				sess.nextSeq = rec.Seq + 1
			}
		}
		m.metrics.IncHydrations()
		m.bus.Emit(event.NewEvent(event.SessionHydrated, map[string]interface{}{
			"session_id": sessionID,
			"turns":      len(recs),
		}))
	}

	m.sessions[sessionID] = sess
	m.metrics.SessionOpened()
	return sess
}

// RecordTurn accepts one turn: the record enters the session buffer
// synchronously and a durable append is scheduled. The returned error, if
// any, is a durability warning: the turn is already accepted and visible
// to Context, and callers must not roll it back.
func (m *Manager) RecordTurn(sessionID string, role Role, content, attachmentRef string) (Record, error) {
	if sessionID == "" {
		return Record{}, loomerr.New(loomerr.CodeSessionInvalid, "session id is empty")
	}
	if !role.Valid() {
		return Record{}, loomerr.New(loomerr.CodeSessionInvalid, "unknown role "+string(role))
	}

	m.mu.Lock()
	sess := m.getOrCreateLocked(sessionID)
	rec := Record{
		SessionID:     sessionID,
		Role:          role,
		Content:       content,
		CreatedAt:     time.Now(),
		Seq:           sess.nextSeq,
		AttachmentRef: attachmentRef,
	}
	sess.nextSeq++
	sess.buffer.Append(rec)
	sess.pending++
	m.mu.Unlock()

	m.metrics.IncTurnsAccepted()
	m.bus.Emit(event.NewEvent(event.TurnAccepted, map[string]interface{}{
		"session_id": sessionID,
		"role":       string(role),
		"seq":        rec.Seq,
	}))

	start := time.Now()
	err := m.writer.EnqueueAppend(rec, func(persistErr error) {
		m.onPersist(sessionID, rec, persistErr, time.Since(start))
	})
	if err != nil {
		// The writer couldn't take the work; the turn stays accepted but
		// will not reach the store. Surface that instead of dropping it
		// silently.
		m.noteFailure(sessionID)
		m.metrics.IncPersistFailures()
		m.logger.Warn("Durable write rejected", "session_id", sessionID, "error", err)
		m.bus.Emit(event.NewEvent(event.TurnPersistFailed, map[string]interface{}{
			"session_id": sessionID,
			"seq":        rec.Seq,
			"error":      err.Error(),
		}))
		return rec, err
	}

	return rec, nil
}

// onPersist is the writer's completion callback for appends.
func (m *Manager) onPersist(sessionID string, rec Record, err error, elapsed time.Duration) {
	m.mu.Lock()
	if sess, ok := m.sessions[sessionID]; ok {
		sess.pending--
		if err != nil {
			sess.failed++
		}
	}
	m.mu.Unlock()

	if err != nil {
		m.metrics.IncPersistFailures()
		m.logger.Warn("Durable write failed; turn kept in memory only",
			"session_id", sessionID, "seq", rec.Seq, "error", err)
		m.bus.Emit(event.NewEvent(event.TurnPersistFailed, map[string]interface{}{
			"session_id": sessionID,
			"seq":        rec.Seq,
			"error":      err.Error(),
		}))
		return
	}

	m.metrics.IncTurnsPersisted()
	m.metrics.RecordPersistLatency(elapsed)
	m.bus.Emit(event.NewEvent(event.TurnPersisted, map[string]interface{}{
		"session_id": sessionID,
		"seq":        rec.Seq,
	}))
}

func (m *Manager) noteFailure(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[sessionID]; ok {
		sess.pending--
		sess.failed++
	}
}

// Context returns the session's buffered turns, oldest first, for prompt
// construction. It reflects every RecordTurn call that has returned,
// whether or not the durable write has completed, and works even when the
// store is down.
func (m *Manager) Context(sessionID string) []Record {
	m.mu.Lock()
	sess := m.getOrCreateLocked(sessionID)
	m.mu.Unlock()

	return sess.buffer.Snapshot()
}

// ClearSession empties the buffer and schedules deletion of the durable
// rows. The buffer clear is unconditional, so the user-visible state is
// consistent even if the store clear fails; a failed store clear is a
// warning, not an error.
func (m *Manager) ClearSession(sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		// Materialize an empty entry instead of leaving the session cold.
		// A cold session would hydrate from the store on the next Context,
		// and the queued clear may not have deleted the rows yet.
		sess = &session{
			buffer:   NewBuffer(sessionID, m.capacity),
			lastUsed: time.Now(),
		}
		m.sessions[sessionID] = sess
		m.metrics.SessionOpened()
	}
	sess.buffer.Clear()
	sess.nextSeq = 0
	sess.lastUsed = time.Now()
	m.mu.Unlock()

	m.bus.Emit(event.NewEvent(event.SessionCleared, map[string]interface{}{
		"session_id": sessionID,
	}))

	err := m.writer.EnqueueClear(sessionID, func(clearErr error) {
		if clearErr != nil {
			m.logger.Warn("Store clear failed; stale rows remain",
				"session_id", sessionID, "error", clearErr)
		}
	})
	if err != nil {
		m.logger.Warn("Store clear rejected", "session_id", sessionID, "error", err)
		return err
	}
	return nil
}

// Destroy evicts the session's buffer without touching the store.
func (m *Manager) Destroy(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(sessionID)
}

func (m *Manager) evictLocked(sessionID string) {
	if _, ok := m.sessions[sessionID]; !ok {
		return
	}
	delete(m.sessions, sessionID)
	m.metrics.SessionClosed()
	m.bus.Emit(event.NewEvent(event.SessionEvicted, map[string]interface{}{
		"session_id": sessionID,
	}))
}

// Status reports the session's memory state, or false if it is not active.
func (m *Manager) Status(sessionID string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return Status{}, false
	}
	return m.statusLocked(sessionID, sess), true
}

func (m *Manager) statusLocked(sessionID string, sess *session) Status {
	return Status{
		SessionID: sessionID,
		Turns:     sess.buffer.Len(),
		Capacity:  sess.buffer.Capacity(),
		Pending:   sess.pending,
		Failed:    sess.failed,
		Degraded:  sess.degraded,
	}
}

// Sessions lists the status of every active session.
func (m *Manager) Sessions() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Status, 0, len(m.sessions))
	for id, sess := range m.sessions {
		out = append(out, m.statusLocked(id, sess))
	}
	return out
}

// reapLoop evicts session buffers idle past the TTL. Buffers are transient;
// the durable history survives for the next hydration.
func (m *Manager) reapLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for id, sess := range m.sessions {
				if now.Sub(sess.lastUsed) > m.idleTTL {
					m.logger.Debug("Reaping idle session", "session_id", id)
					m.evictLocked(id)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Close stops the reaper and drains every pending durable write. The store
// itself is owned by the caller and stays open.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.done)
	m.writer.Close()
}
