// Package store keeps the document index, per-file statuses and build history
// in SQLite so several owners can share one database.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"procdocs/config"
	"procdocs/index"
	"procdocs/store/migrations"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the SQLite-backed index.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	dirEntries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range dirEntries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Entries ====================

// ReplaceEntries rewrites all of owner's entries in one transaction. Readers
// see either the previous set or the new one.
func (s *Store) ReplaceEntries(ctx context.Context, owner string, entries []index.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE owner = ?", owner); err != nil {
		return fmt.Errorf("clearing entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (owner, seq, title, format, source, body, char_count, size, grp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, title) DO UPDATE SET
			seq = excluded.seq,
			format = excluded.format,
			source = excluded.source,
			body = excluded.body,
			char_count = excluded.char_count,
			size = excluded.size,
			grp = excluded.grp
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, owner, i, e.Title, e.Format, e.Source,
			e.Body, e.CharCount, e.Size, e.Group); err != nil {
			return fmt.Errorf("saving entry %s: %w", e.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// UpsertEntry inserts or updates a single document. New titles are appended
// after the existing ones; known titles keep their position.
func (s *Store) UpsertEntry(ctx context.Context, owner string, e index.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var next int
	row := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), -1) + 1 FROM entries WHERE owner = ?", owner)
	if err := row.Scan(&next); err != nil {
		return fmt.Errorf("reading sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (owner, seq, title, format, source, body, char_count, size, grp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, title) DO UPDATE SET
			format = excluded.format,
			source = excluded.source,
			body = excluded.body,
			char_count = excluded.char_count,
			size = excluded.size,
			grp = excluded.grp
	`, owner, next, e.Title, e.Format, e.Source, e.Body, e.CharCount, e.Size, e.Group)
	if err != nil {
		return fmt.Errorf("saving entry %s: %w", e.Title, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// DeleteEntry removes one document. ErrNotFound when it was not indexed.
func (s *Store) DeleteEntry(ctx context.Context, owner, title string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE owner = ? AND title = ?", owner, title)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Entries returns owner's entries in insertion order.
func (s *Store) Entries(ctx context.Context, owner string) ([]index.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title, format, source, body, char_count, size, grp
		FROM entries WHERE owner = ?
		ORDER BY seq
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []index.Entry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e index.Entry
		if err := rows.Scan(&e.Title, &e.Format, &e.Source, &e.Body,
			&e.CharCount, &e.Size, &e.Group); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Entry returns one document by title.
func (s *Store) Entry(ctx context.Context, owner, title string) (*index.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT title, format, source, body, char_count, size, grp
		FROM entries WHERE owner = ? AND title = ?
	`, owner, title)

	var e index.Entry
	if err := row.Scan(&e.Title, &e.Format, &e.Source, &e.Body,
		&e.CharCount, &e.Size, &e.Group); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning entry: %w", err)
	}
	return &e, nil
}

// ==================== File statuses ====================

// SaveStatuses replaces owner's file statuses with the outcomes of one build.
// Rows for paths the build did not report are removed.
func (s *Store) SaveStatuses(ctx context.Context, owner, buildID string, statuses []index.FileStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO file_status (owner, path, format, tier, status, chars, error, build_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, path) DO UPDATE SET
			format = excluded.format,
			tier = excluded.tier,
			status = excluded.status,
			chars = excluded.chars,
			error = excluded.error,
			build_id = excluded.build_id,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixNano()
	for _, st := range statuses {
		if _, err := stmt.ExecContext(ctx, owner, st.Path, st.Format, string(st.Tier),
			string(st.Status), st.Chars, st.Error, buildID, now); err != nil {
			return fmt.Errorf("saving status %s: %w", st.Path, err)
		}
	}

	// files the build no longer saw are gone from the tree
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM file_status WHERE owner = ? AND build_id <> ?`, owner, buildID); err != nil {
		return fmt.Errorf("pruning statuses: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Statuses returns owner's file statuses ordered by path. A non-empty filter
// restricts the result to one status.
func (s *Store) Statuses(ctx context.Context, owner string, filter index.Status) ([]index.FileStatus, error) {
	query := `SELECT path, format, tier, status, chars, error FROM file_status WHERE owner = ?`
	args := []any{owner}
	if filter != "" {
		query += " AND status = ?"
		args = append(args, string(filter))
	}
	query += " ORDER BY path"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying statuses: %w", err)
	}
	defer rows.Close()

	var out []index.FileStatus
	for rows.Next() {
		var st index.FileStatus
		var tier, status string
		if err := rows.Scan(&st.Path, &st.Format, &tier, &status, &st.Chars, &st.Error); err != nil {
			return nil, fmt.Errorf("scanning status: %w", err)
		}
		st.Tier = config.Tier(tier)
		st.Status = index.Status(status)
		out = append(out, st)
	}
	return out, rows.Err()
}

// ==================== Builds ====================

// Build is one recorded build run.
type Build struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Root        string    `json:"root"`
	Artifact    string    `json:"artifact"`
	Processed   int       `json:"processed"`
	Indexed     int       `json:"indexed"`
	Empty       int       `json:"empty"`
	Unsupported int       `json:"unsupported"`
	Failed      int       `json:"failed"`
	Unchanged   bool      `json:"unchanged"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// RecordBuild stores the summary of res.
func (s *Store) RecordBuild(ctx context.Context, owner string, res *index.BuildResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO builds (id, owner, root, artifact, processed, indexed, empty, unsupported, failed, unchanged, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, res.ID, owner, res.Root, res.Artifact, res.Processed, res.Indexed, res.Empty,
		res.Unsupported, res.Failed, boolToInt(res.Unchanged),
		res.StartedAt.UnixNano(), res.FinishedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("recording build: %w", err)
	}
	return nil
}

// Builds returns up to limit of owner's builds, newest first. limit <= 0
// returns all of them.
func (s *Store) Builds(ctx context.Context, owner string, limit int) ([]Build, error) {
	query := `
		SELECT id, owner, root, artifact, processed, indexed, empty, unsupported, failed, unchanged, started_at, finished_at
		FROM builds WHERE owner = ?
		ORDER BY finished_at DESC, rowid DESC`
	args := []any{owner}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying builds: %w", err)
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, *b)
	}
	return builds, rows.Err()
}

// LastBuild returns owner's most recent build or ErrNotFound.
func (s *Store) LastBuild(ctx context.Context, owner string) (*Build, error) {
	builds, err := s.Builds(ctx, owner, 1)
	if err != nil {
		return nil, err
	}
	if len(builds) == 0 {
		return nil, ErrNotFound
	}
	return &builds[0], nil
}

// Sync persists a finished build: entries, statuses and the run summary.
func (s *Store) Sync(ctx context.Context, owner string, res *index.BuildResult) error {
	if err := s.ReplaceEntries(ctx, owner, res.Entries); err != nil {
		return err
	}
	if err := s.SaveStatuses(ctx, owner, res.ID, res.Files); err != nil {
		return err
	}
	return s.RecordBuild(ctx, owner, res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(row scanner) (*Build, error) {
	var b Build
	var unchanged int
	var started, finished int64
	if err := row.Scan(&b.ID, &b.Owner, &b.Root, &b.Artifact, &b.Processed, &b.Indexed,
		&b.Empty, &b.Unsupported, &b.Failed, &unchanged, &started, &finished); err != nil {
		return nil, fmt.Errorf("scanning build: %w", err)
	}
	b.Unchanged = unchanged != 0
	b.StartedAt = time.Unix(0, started).UTC()
	b.FinishedAt = time.Unix(0, finished).UTC()
	return &b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
