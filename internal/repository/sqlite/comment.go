package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/model"
	"github.com/sakif/forum/internal/repository"
)

const commentColumns = `id, post_title, body, author_email, reported, report_reason, reported_by, created_at`

func scanComment(s rowScanner) (*model.Comment, error) {
	var (
		c       model.Comment
		created string
	)
	if err := s.Scan(
		&c.ID, &c.PostTitle, &c.Body, &c.AuthorEmail,
		&c.Reported, &c.ReportReason, &c.ReportedBy, &created,
	); err != nil {
		return nil, err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = t
	return &c, nil
}

func (db *DB) CreateComment(ctx context.Context, c *model.Comment) error {
	c.ID = xid.New().String()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.Reported, c.ReportReason, c.ReportedBy = false, "", ""

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO comments (id, post_title, body, author_email, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.PostTitle, c.Body, c.AuthorEmail, formatTime(c.CreatedAt),
	)
	if err != nil {
		return classify("creating comment", err)
	}
	return nil
}

func (db *DB) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	c, err := scanComment(db.conn.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, classify(fmt.Sprintf("getting comment %s", id), err)
	}
	return c, nil
}

func (db *DB) queryComments(ctx context.Context, op, query string, args ...any) ([]model.Comment, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// ListCommentsByTitle returns the comments of the post titled title, oldest first.
func (db *DB) ListCommentsByTitle(ctx context.Context, title string) ([]model.Comment, error) {
	return db.queryComments(ctx, "listing comments",
		`SELECT `+commentColumns+` FROM comments WHERE post_title = ? ORDER BY created_at ASC, id ASC`,
		title)
}

// CountCommentsByTitles counts comments for a batch of titles in one
// GROUP BY query.
func (db *DB) CountCommentsByTitles(ctx context.Context, titles []string) (map[string]int, error) {
	counts := make(map[string]int, len(titles))
	if len(titles) == 0 {
		return counts, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(titles)), ",")
	args := make([]any, len(titles))
	for i, t := range titles {
		args[i] = t
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT post_title, COUNT(*) FROM comments
		 WHERE post_title IN (`+placeholders+`)
		 GROUP BY post_title`, args...)
	if err != nil {
		return nil, classify("counting comments", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			title string
			n     int
		)
		if err := rows.Scan(&title, &n); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment count: %w", err)
		}
		counts[title] = n
	}
	if err := rows.Err(); err != nil {
		return nil, classify("counting comments", err)
	}
	return counts, nil
}

// ReportComment flags a comment for moderation. Reporting an already
// reported comment overwrites the reason and reporter.
func (db *DB) ReportComment(ctx context.Context, id, reporter, reason string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE comments SET reported = 1, report_reason = ?, reported_by = ? WHERE id = ?`,
		reason, reporter, id)
	if err != nil {
		return classify(fmt.Sprintf("reporting comment %s", id), err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("comment", id)
	}
	return nil
}

func (db *DB) ListReportedComments(ctx context.Context, opts repository.ListOptions) ([]model.Comment, error) {
	limit, args := limitClause(opts)
	return db.queryComments(ctx, "listing reported comments",
		`SELECT `+commentColumns+` FROM comments WHERE reported = 1 ORDER BY created_at DESC, id DESC`+limit,
		args...)
}

func (db *DB) DeleteComment(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return classify(fmt.Sprintf("deleting comment %s", id), err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("comment", id)
	}
	return nil
}

func (db *DB) CountComments(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments`).Scan(&n); err != nil {
		return 0, classify("counting comments", err)
	}
	return n, nil
}
