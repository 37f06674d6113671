package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "github.com/mattn/go-sqlite3"

	loomerr "github.com/loomchat/loom/internal/errors"
)

// Table names come from config, so they must be plain identifiers before
// being spliced into statements.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStore persists conversation records in a SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteStore opens (or creates) the SQLite database at path.
func NewSQLiteStore(path, table string) (*SQLiteStore, error) {
	if !identPattern.MatchString(table) {
		return nil, loomerr.New(loomerr.CodeConfigInvalid,
			fmt.Sprintf("invalid table name %q", table))
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	s := &SQLiteStore{db: db, table: table}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		attachment_ref TEXT,
		seq INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_%[1]s_session ON %[1]s(session_id);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_session_created ON %[1]s(session_id, created_at);
	`, s.table)
	_, err := s.db.Exec(schema)
	return err
}

// Append durably writes one record.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	ts := rec.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	var attachment *string
	if rec.AttachmentRef != "" {
		attachment = &rec.AttachmentRef
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (session_id, role, content, attachment_ref, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.table), rec.SessionID, string(rec.Role), rec.Content, attachment, rec.Seq, ts)
	if err != nil {
		return unavailable("append record", err)
	}
	return nil
}

// LoadRecent returns up to limit most-recent records in ascending order.
func (s *SQLiteStore) LoadRecent(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT session_id, role, content, attachment_ref, seq, created_at
		FROM %s
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, s.table), sessionID, limit)
	if err != nil {
		return nil, unavailable("load recent records", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var role string
		var attachment sql.NullString
		if err := rows.Scan(&rec.SessionID, &role, &rec.Content, &attachment, &rec.Seq, &rec.CreatedAt); err != nil {
			return nil, unavailable("scan record", err)
		}
		rec.Role = Role(role)
		if attachment.Valid {
			rec.AttachmentRef = attachment.String
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("load recent records", err)
	}

	// Reverse so oldest is first (we queried DESC for LIMIT).
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}

	return recs, nil
}

// ClearSession deletes all records for the session.
func (s *SQLiteStore) ClearSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", s.table), sessionID)
	if err != nil {
		return unavailable("clear session", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
