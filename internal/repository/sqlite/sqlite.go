// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the server builds without CGo and
// cross-compiles like any other Go binary.
//
// CONCURRENCY:
// SQLite allows one writer at a time. Every write in this package is a single
// statement, so a vote is one UPDATE ... RETURNING that SQLite serializes
// against every other writer. busy_timeout makes a second writer wait for the
// lock instead of failing immediately; if the wait runs out the error is
// surfaced as a retryable domain error (see classify).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/repository"
)

// compile-time check that *DB satisfies every repository contract
var _ repository.Store = (*DB)(nil)

// busyTimeoutMS bounds how long a writer waits for the SQLite write lock.
const busyTimeoutMS = 5000

// timeLayout is fixed width so that lexical order of the stored text equals
// chronological order. ORDER BY created_at relies on this.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/forum.db"  → file-based database (persistent)
//   - ":memory:"       → in-memory database (tests)
//
// An in-memory database exists per connection, so the pool is pinned to a
// single connection in that case.
func New(dbPath string) (*DB, error) {
	memory := dbPath == ":memory:"

	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers run while the single writer holds the lock.
	if !memory {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// dsn appends per-connection pragmas. modernc applies every _pragma query
// parameter to each new connection the pool opens, which plain PRAGMA
// statements would not do.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", dbPath, sep, busyTimeoutMS)
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it safe to run
// on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS posts (
			id           TEXT PRIMARY KEY,
			title        TEXT NOT NULL,
			tag          TEXT NOT NULL DEFAULT '',
			body         TEXT NOT NULL DEFAULT '',
			author_email TEXT NOT NULL,
			author_name  TEXT NOT NULL DEFAULT '',
			up_vote      INTEGER NOT NULL DEFAULT 0 CHECK (up_vote >= 0),
			down_vote    INTEGER NOT NULL DEFAULT 0 CHECK (down_vote >= 0),
			created_at   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);
		CREATE INDEX IF NOT EXISTS idx_posts_author_email ON posts(author_email);
	`)
	if err != nil {
		return fmt.Errorf("creating posts table: %w", err)
	}

	// author_photo arrived after the first release; add it in place.
	if err := db.addColumnIfNotExists("posts", "author_photo", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding author_photo to posts: %w", err)
	}

	// Tag search matches against a copy folded in Go.
	if err := db.addColumnIfNotExists("posts", "tag_folded", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding tag_folded to posts: %w", err)
	}
	if err := db.backfillFolded("posts", "tag"); err != nil {
		return fmt.Errorf("backfilling tag_folded: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS comments (
			id            TEXT PRIMARY KEY,
			post_title    TEXT NOT NULL,
			body          TEXT NOT NULL,
			author_email  TEXT NOT NULL,
			reported      INTEGER NOT NULL DEFAULT 0,
			report_reason TEXT NOT NULL DEFAULT '',
			reported_by   TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_comments_post_title ON comments(post_title);
		CREATE INDEX IF NOT EXISTS idx_comments_reported ON comments(reported);
	`)
	if err != nil {
		return fmt.Errorf("creating comments table: %w", err)
	}

	// email is UNIQUE: sign-in inserts with ON CONFLICT(email) DO NOTHING.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL DEFAULT '',
			photo_url  TEXT NOT NULL DEFAULT '',
			role       TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('member', 'admin')),
			badge      TEXT NOT NULL DEFAULT 'bronze' CHECK (badge IN ('bronze', 'gold')),
			created_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}
	if err := db.addColumnIfNotExists("users", "name_folded", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding name_folded to users: %w", err)
	}
	if err := db.backfillFolded("users", "name"); err != nil {
		return fmt.Errorf("backfilling name_folded: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS payments (
			id             TEXT PRIMARY KEY,
			email          TEXT NOT NULL,
			amount         INTEGER NOT NULL CHECK (amount > 0),
			transaction_id TEXT NOT NULL UNIQUE,
			created_at     TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating payments table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Databases created before the column existed pick it up on next start.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// backfillFolded fills <column>_folded for rows written before the folded
// column existed. Rows with an empty source need nothing.
func (db *DB) backfillFolded(table, column string) error {
	folded := column + "_folded"
	rows, err := db.conn.Query(fmt.Sprintf(
		`SELECT id, %s FROM %s WHERE %s = '' AND %s <> ''`, column, table, folded, column))
	if err != nil {
		return err
	}
	pending := map[string]string{}
	for rows.Next() {
		var id, v string
		if err := rows.Scan(&id, &v); err != nil {
			rows.Close()
			return err
		}
		pending[id] = fold(v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for id, v := range pending {
		if _, err := db.conn.Exec(fmt.Sprintf(`UPDATE %s SET %s = ? WHERE id = ?`, table, folded), v, id); err != nil {
			return err
		}
	}
	return nil
}

// fold is the case folding substring search compares under. SQLite's
// lower() only folds ASCII.
func fold(s string) string {
	return strings.ToLower(s)
}

// classify turns driver failures into domain errors. A lock wait that ran
// past busy_timeout becomes Conflict and a deadline becomes Transient.
// Everything else is wrapped as is and ends up as a 500.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isBusy(err) {
		return apperror.Contention(op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Transient(op, err)
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}

// isBusy reports SQLITE_BUSY or SQLITE_LOCKED, including their extended codes.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// limitClause renders LIMIT/OFFSET. SQLite needs a LIMIT for OFFSET to
// apply, and -1 means unbounded.
func limitClause(opts repository.ListOptions) (string, []any) {
	switch {
	case opts.Limit > 0:
		return " LIMIT ? OFFSET ?", []any{opts.Limit, max(opts.Offset, 0)}
	case opts.Offset > 0:
		return " LIMIT -1 OFFSET ?", []any{opts.Offset}
	default:
		return "", nil
	}
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
