// Package postgres implements repository.Store on PostgreSQL through a pgx
// connection pool. The server selects it when DATABASE_URL is set.
//
// The queries mirror repository/sqlite statement for statement. The vote
// transition is the same single UPDATE ... RETURNING: Postgres takes a row
// lock for the duration of the statement, so concurrent votes on one post
// queue behind each other and every SET expression sees the committed row.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// Options tunes the pool. Zero values leave pgx defaults in place.
type Options struct {
	MaxConns       int32
	ConnectTimeout time.Duration
}

type DB struct {
	pool *pgxpool.Pool
}

// New connects to dsn, verifies the connection and creates the schema.
func New(ctx context.Context, dsn string, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	cfg.ConnConfig.StatementCacheCapacity = 256

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	tag          TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL DEFAULT '',
	author_email TEXT NOT NULL,
	author_name  TEXT NOT NULL DEFAULT '',
	author_photo TEXT NOT NULL DEFAULT '',
	up_vote      INTEGER NOT NULL DEFAULT 0 CHECK (up_vote >= 0),
	down_vote    INTEGER NOT NULL DEFAULT 0 CHECK (down_vote >= 0),
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);
CREATE INDEX IF NOT EXISTS idx_posts_author_email ON posts(author_email);

CREATE TABLE IF NOT EXISTS comments (
	id            TEXT PRIMARY KEY,
	post_title    TEXT NOT NULL,
	body          TEXT NOT NULL,
	author_email  TEXT NOT NULL,
	reported      BOOLEAN NOT NULL DEFAULT FALSE,
	report_reason TEXT NOT NULL DEFAULT '',
	reported_by   TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_comments_post_title ON comments(post_title);

CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	photo_url  TEXT NOT NULL DEFAULT '',
	role       TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('member', 'admin')),
	badge      TEXT NOT NULL DEFAULT 'bronze' CHECK (badge IN ('bronze', 'gold')),
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS payments (
	id             TEXT PRIMARY KEY,
	email          TEXT NOT NULL,
	amount         BIGINT NOT NULL CHECK (amount > 0),
	transaction_id TEXT NOT NULL UNIQUE,
	created_at     TIMESTAMPTZ NOT NULL
);`

func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Postgres SQLSTATEs that mean "another transaction got in the way".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
)

func isContention(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeQueryCanceled
}

// classify turns driver failures into domain errors, same policy as the
// sqlite store.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isContention(err) {
		return apperror.Contention(op, err)
	}
	if isUnavailable(err) {
		return apperror.Transient(op, err)
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}

// args accumulates positional parameters and hands out $n placeholders.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

func limitClause(a *args, opts repository.ListOptions) string {
	var b strings.Builder
	if opts.Limit > 0 {
		b.WriteString(" LIMIT " + a.add(opts.Limit))
	}
	if opts.Offset > 0 {
		b.WriteString(" OFFSET " + a.add(opts.Offset))
	}
	return b.String()
}
