package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/model"
	"github.com/sakif/forum/internal/repository"
)

const commentColumns = `id, post_title, body, author_email, reported, report_reason, reported_by, created_at`

func scanComment(row pgx.Row) (*model.Comment, error) {
	var c model.Comment
	if err := row.Scan(&c.ID, &c.PostTitle, &c.Body, &c.AuthorEmail,
		&c.Reported, &c.ReportReason, &c.ReportedBy, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (db *DB) CreateComment(ctx context.Context, c *model.Comment) error {
	c.ID = xid.New().String()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.CreatedAt = c.CreatedAt.UTC().Truncate(time.Microsecond)
	c.Reported, c.ReportReason, c.ReportedBy = false, "", ""

	_, err := db.pool.Exec(ctx,
		`INSERT INTO comments (id, post_title, body, author_email, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.PostTitle, c.Body, c.AuthorEmail, c.CreatedAt)
	return classify("creating comment", err)
}

func (db *DB) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	c, err := scanComment(db.pool.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, classify(fmt.Sprintf("getting comment %s", id), err)
	}
	return c, nil
}

func (db *DB) queryComments(ctx context.Context, op, query string, a ...any) ([]model.Comment, error) {
	rows, err := db.pool.Query(ctx, query, a...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning comment row: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func (db *DB) ListCommentsByTitle(ctx context.Context, title string) ([]model.Comment, error) {
	return db.queryComments(ctx, "listing comments",
		`SELECT `+commentColumns+` FROM comments WHERE post_title = $1 ORDER BY created_at ASC, id ASC`, title)
}

// CountCommentsByTitles sends the whole title set as one text[] parameter.
func (db *DB) CountCommentsByTitles(ctx context.Context, titles []string) (map[string]int, error) {
	counts := make(map[string]int, len(titles))
	if len(titles) == 0 {
		return counts, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT post_title, COUNT(*) FROM comments WHERE post_title = ANY($1) GROUP BY post_title`, titles)
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
			return nil, fmt.Errorf("postgres: scanning comment count: %w", err)
		}
		counts[title] = n
	}
	if err := rows.Err(); err != nil {
		return nil, classify("counting comments", err)
	}
	return counts, nil
}

func (db *DB) ReportComment(ctx context.Context, id, reporter, reason string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE comments SET reported = TRUE, report_reason = $1, reported_by = $2 WHERE id = $3`,
		reason, reporter, id)
	if err != nil {
		return classify(fmt.Sprintf("reporting comment %s", id), err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("comment", id)
	}
	return nil
}

func (db *DB) ListReportedComments(ctx context.Context, opts repository.ListOptions) ([]model.Comment, error) {
	var a args
	limit := limitClause(&a, opts)
	return db.queryComments(ctx, "listing reported comments",
		`SELECT `+commentColumns+` FROM comments WHERE reported ORDER BY created_at DESC, id DESC`+limit, a...)
}

func (db *DB) DeleteComment(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return classify(fmt.Sprintf("deleting comment %s", id), err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("comment", id)
	}
	return nil
}

func (db *DB) CountComments(ctx context.Context) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM comments`).Scan(&n); err != nil {
		return 0, classify("counting comments", err)
	}
	return n, nil
}
