package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

type DB struct {
	conn *sql.DB
}

func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	conn, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	queries := []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_tag_file_id START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS seq_unresolved_id START 1;`,

		`CREATE TABLE IF NOT EXISTS tag_files (
			id INTEGER PRIMARY KEY DEFAULT nextval('seq_tag_file_id'),
			role TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			entries INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			loaded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS unresolved (
			id INTEGER PRIMARY KEY DEFAULT nextval('seq_unresolved_id'),
			role TEXT NOT NULL,
			document TEXT NOT NULL,
			symbol TEXT NOT NULL,
			occurrences INTEGER NOT NULL,
			last_seen_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(role, document, symbol)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_unresolved_role ON unresolved (role)`,
	}

	for _, q := range queries {
		if _, err := db.conn.Exec(q); err != nil {
			return fmt.Errorf("executing %q: %w", q, err)
		}
	}
	return nil
}

// --- Tag file operations ---

// TagFile records the last successful load of a role's tag file.
type TagFile struct {
	ID          int
	Role        string
	Source      string
	ContentHash string
	Entries     int
	Skipped     int
	LoadedAt    time.Time
}

func (db *DB) UpsertTagFile(role, source, contentHash string, entries, skipped int) error {
	_, err := db.conn.Exec(
		`INSERT INTO tag_files (role, source, content_hash, entries, skipped) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (role) DO UPDATE SET
			source = EXCLUDED.source,
			content_hash = EXCLUDED.content_hash,
			entries = EXCLUDED.entries,
			skipped = EXCLUDED.skipped,
			loaded_at = CURRENT_TIMESTAMP`,
		role, source, contentHash, entries, skipped,
	)
	if err != nil {
		return fmt.Errorf("upserting tag file for %s: %w", role, err)
	}
	return nil
}

// GetTagFile returns the recorded load for role, or nil if there is none.
func (db *DB) GetTagFile(role string) (*TagFile, error) {
	var tf TagFile
	err := db.conn.QueryRow(
		`SELECT id, role, source, content_hash, entries, skipped, loaded_at FROM tag_files WHERE role = ?`,
		role,
	).Scan(&tf.ID, &tf.Role, &tf.Source, &tf.ContentHash, &tf.Entries, &tf.Skipped, &tf.LoadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tf, nil
}

func (db *DB) ListTagFiles() ([]TagFile, error) {
	rows, err := db.conn.Query(
		`SELECT id, role, source, content_hash, entries, skipped, loaded_at FROM tag_files ORDER BY role`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []TagFile
	for rows.Next() {
		var tf TagFile
		if err := rows.Scan(&tf.ID, &tf.Role, &tf.Source, &tf.ContentHash, &tf.Entries, &tf.Skipped, &tf.LoadedAt); err != nil {
			return nil, err
		}
		files = append(files, tf)
	}
	return files, rows.Err()
}

// --- Unresolved reference operations ---

// Unresolved is a reference that did not resolve the last time a document
// was rewritten.
type Unresolved struct {
	ID          int
	Role        string
	Document    string
	Symbol      string
	Occurrences int
	LastSeenAt  time.Time
}

// RecordUnresolved notes that symbol appeared occurrences times in
// document without resolving. The latest count replaces any earlier one.
func (db *DB) RecordUnresolved(role, document, symbol string, occurrences int) error {
	_, err := db.conn.Exec(
		`INSERT INTO unresolved (role, document, symbol, occurrences) VALUES (?, ?, ?, ?)
		 ON CONFLICT (role, document, symbol) DO UPDATE SET
			occurrences = EXCLUDED.occurrences,
			last_seen_at = CURRENT_TIMESTAMP`,
		role, document, symbol, occurrences,
	)
	if err != nil {
		return fmt.Errorf("recording unresolved %s:%s: %w", role, symbol, err)
	}
	return nil
}

// ReplaceUnresolved atomically replaces every record for document with
// refs. An empty refs clears the document.
func (db *DB) ReplaceUnresolved(document string, refs []Unresolved) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM unresolved WHERE document = ?`, document); err != nil {
		return fmt.Errorf("clearing unresolved for %s: %w", document, err)
	}
	for _, r := range refs {
		if _, err := tx.Exec(
			`INSERT INTO unresolved (role, document, symbol, occurrences) VALUES (?, ?, ?, ?)`,
			r.Role, document, r.Symbol, r.Occurrences,
		); err != nil {
			return fmt.Errorf("inserting unresolved %s:%s: %w", r.Role, r.Symbol, err)
		}
	}
	return tx.Commit()
}

// ListUnresolved returns unresolved references, most frequent first.
// An empty role lists every role.
func (db *DB) ListUnresolved(role string) ([]Unresolved, error) {
	query := `SELECT id, role, document, symbol, occurrences, last_seen_at FROM unresolved`
	var args []any
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, role)
	}
	query += ` ORDER BY occurrences DESC, role, symbol, document`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Unresolved
	for rows.Next() {
		var u Unresolved
		if err := rows.Scan(&u.ID, &u.Role, &u.Document, &u.Symbol, &u.Occurrences, &u.LastSeenAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ClearUnresolved deletes records matching role and document; an empty
// value matches everything. It returns the number of rows removed.
func (db *DB) ClearUnresolved(role, document string) (int64, error) {
	res, err := db.conn.Exec(
		`DELETE FROM unresolved WHERE (? = '' OR role = ?) AND (? = '' OR document = ?)`,
		role, role, document, document,
	)
	if err != nil {
		return 0, fmt.Errorf("clearing unresolved: %w", err)
	}
	return res.RowsAffected()
}
