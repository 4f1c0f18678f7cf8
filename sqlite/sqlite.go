// Package sqlite persists the session registry in an embedded SQLite
// database, rewriting only the session each change touches.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/margin"
	_ "modernc.org/sqlite"
)

// FileName is the database file name inside the data directory.
const FileName = "sessions.db"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	document_ref TEXT NOT NULL,
	name         TEXT NOT NULL,
	seed_context TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	token_count INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_session ON messages (session_id, seq);
`

// Interface compliance check.
var _ margin.Backend = (*DB)(nil)

// DB is a margin.Backend over a SQLite database.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// coherent.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db, path: path}, nil
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// ReadRegistry implements margin.Backend.
func (d *DB) ReadRegistry(ctx context.Context) (*margin.Registry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, document_ref, name, seed_context, created_at, updated_at FROM sessions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []margin.Session
	index := make(map[string]int)
	for rows.Next() {
		var s margin.Session
		var created, updated string
		if err := rows.Scan(&s.ID, &s.DocumentRef, &s.Name, &s.SeedContext, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if s.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("session %s: %w", s.ID, err)
		}
		if s.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("session %s: %w", s.ID, err)
		}
		index[s.ID] = len(sessions)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	if err := d.readMessages(ctx, sessions, index); err != nil {
		return nil, err
	}

	reg := margin.NewRegistry()
	for _, s := range sessions {
		reg.Insert(s)
	}
	return reg, nil
}

func (d *DB) readMessages(ctx context.Context, sessions []margin.Session, index map[string]int) error {
	rows, err := d.db.QueryContext(ctx,
		`SELECT session_id, role, content, created_at, token_count FROM messages ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sessionID, role, created string
		var m margin.Message
		if err := rows.Scan(&sessionID, &role, &m.Content, &created, &m.TokenCount); err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		i, ok := index[sessionID]
		if !ok {
			continue
		}
		m.Role = margin.Role(role)
		if !m.Role.Valid() {
			return fmt.Errorf("session %s: unknown role %q", sessionID, role)
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return fmt.Errorf("session %s: %w", sessionID, err)
		}
		sessions[i].Messages = append(sessions[i].Messages, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate messages: %w", err)
	}
	return nil
}

// WriteRegistry implements margin.Backend by bringing the rows of the
// changed session in line with reg in a single transaction. Sessions absent
// from reg are removed, so a change replayed after later mutations is
// harmless.
func (d *DB) WriteRegistry(ctx context.Context, reg *margin.Registry, change margin.Change) error {
	switch change.Op {
	case margin.ChangeCreate, margin.ChangeRename, margin.ChangeAppend, margin.ChangeDelete:
	default:
		return fmt.Errorf("unknown change %q", change.Op)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if s := reg.Lookup(change.DocumentRef, change.SessionID); s != nil && change.Op != margin.ChangeDelete {
		if err := upsertSession(ctx, tx, s); err != nil {
			return err
		}
		if err := syncMessages(ctx, tx, s); err != nil {
			return err
		}
	} else if err := deleteSession(ctx, tx, change.SessionID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsertSession(ctx context.Context, tx *sql.Tx, s *margin.Session) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO sessions (id, document_ref, name, seed_context, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		s.ID, s.DocumentRef, s.Name, s.SeedContext, formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// syncMessages inserts the messages of s the database does not hold yet.
// Messages are append-only, so the stored rows are a prefix of s.Messages;
// anything else is rewritten from scratch.
func syncMessages(ctx context.Context, tx *sql.Tx, s *margin.Session) error {
	var stored int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, s.ID).Scan(&stored); err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	if stored > len(s.Messages) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, s.ID); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		stored = 0
	}
	for _, m := range s.Messages[stored:] {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, content, created_at, token_count) VALUES (?, ?, ?, ?, ?)`,
			s.ID, string(m.Role), m.Content, formatTime(m.CreatedAt), m.TokenCount); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	return nil
}

func deleteSession(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
