package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore persists conversation records as one append-only JSONL file per
// session. It trades the sqlite driver's indexed scans for zero native
// dependencies; suitable for small installs and tests.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the store directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// sessionPath maps a session id to a filesystem-safe file name. Unsafe
// characters are replaced and an fnv hash keeps distinct ids distinct.
func (s *FileStore) sessionPath(sessionID string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, sessionID)
	if len(clean) > 64 {
		clean = clean[:64]
	}
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return filepath.Join(s.dir, fmt.Sprintf("%s_%08x.jsonl", clean, h.Sum32()))
}

// Append durably writes one record.
func (s *FileStore) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return unavailable("append record", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.sessionPath(rec.SessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return unavailable("open session file", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return unavailable("encode record", err)
	}
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		return unavailable("append record", err)
	}
	if err := f.Sync(); err != nil {
		return unavailable("sync session file", err)
	}
	return nil
}

// LoadRecent returns up to limit most-recent records in ascending order.
func (s *FileStore) LoadRecent(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("load recent records", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.sessionPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // no history yet
		}
		return nil, unavailable("open session file", err)
	}
	defer f.Close()

	var recs []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, unavailable("decode record", err)
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, unavailable("read session file", err)
	}

	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs, nil
}

// ClearSession deletes the session's file. Clearing a nonexistent session
// succeeds silently.
func (s *FileStore) ClearSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("clear session", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.sessionPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return unavailable("clear session", err)
	}
	return nil
}

// Close is a no-op; files are opened per operation.
func (s *FileStore) Close() error {
	return nil
}
