package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/model"
	"github.com/sakif/forum/internal/repository"
)

const postColumns = `id, title, tag, body, author_email, author_name, author_photo, up_vote, down_vote, created_at`

var voteStatements = map[model.VoteDirection]string{
	model.VoteUp: `UPDATE posts
		SET up_vote   = up_vote + 1,
		    down_vote = CASE WHEN down_vote > 0 THEN down_vote - 1 ELSE down_vote END
		WHERE id = $1
		RETURNING ` + postColumns,
	model.VoteDown: `UPDATE posts
		SET down_vote = down_vote + 1,
		    up_vote   = CASE WHEN up_vote > 0 THEN up_vote - 1 ELSE up_vote END
		WHERE id = $1
		RETURNING ` + postColumns,
}

func scanPost(row pgx.Row) (*model.Post, error) {
	var p model.Post
	err := row.Scan(
		&p.ID, &p.Title, &p.Tag, &p.Body,
		&p.AuthorEmail, &p.AuthorName, &p.AuthorPhoto,
		&p.UpVote, &p.DownVote, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (db *DB) CreatePost(ctx context.Context, post *model.Post) error {
	post.ID = xid.New().String()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	post.CreatedAt = post.CreatedAt.UTC().Truncate(time.Microsecond)
	post.UpVote, post.DownVote = 0, 0

	_, err := db.pool.Exec(ctx,
		`INSERT INTO posts (id, title, tag, body, author_email, author_name, author_photo, up_vote, down_vote, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, $8)`,
		post.ID, post.Title, post.Tag, post.Body,
		post.AuthorEmail, post.AuthorName, post.AuthorPhoto, post.CreatedAt,
	)
	return classify("creating post", err)
}

func (db *DB) GetPost(ctx context.Context, id string) (*model.Post, error) {
	p, err := scanPost(db.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("post", id)
		}
		return nil, classify(fmt.Sprintf("getting post %s", id), err)
	}
	return p, nil
}

func postFilter(a *args, q repository.PostQuery) string {
	var conds []string
	if q.Tag != "" {
		conds = append(conds, "strpos(lower(tag), lower("+a.add(q.Tag)+")) > 0")
	}
	if q.AuthorEmail != "" {
		conds = append(conds, "author_email = "+a.add(q.AuthorEmail))
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func orderBy(mode model.SortMode) string {
	switch mode {
	case model.SortRanked:
		return " ORDER BY (up_vote - down_vote) DESC, created_at DESC, id DESC"
	default:
		return " ORDER BY created_at DESC, id DESC"
	}
}

func (db *DB) ListPosts(ctx context.Context, q repository.PostQuery) ([]model.Post, error) {
	var a args
	query := `SELECT ` + postColumns + ` FROM posts` + postFilter(&a, q) + orderBy(q.Sort) + limitClause(&a, q.ListOptions)

	rows, err := db.pool.Query(ctx, query, a...)
	if err != nil {
		return nil, classify("listing posts", err)
	}
	defer rows.Close()

	posts := make([]model.Post, 0, max(q.Limit, 0))
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning post row: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("listing posts", err)
	}
	return posts, nil
}

func (db *DB) CountPosts(ctx context.Context, q repository.PostQuery) (int, error) {
	var a args
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`+postFilter(&a, q), a...).Scan(&n); err != nil {
		return 0, classify("counting posts", err)
	}
	return n, nil
}

func (db *DB) ApplyVote(ctx context.Context, id string, dir model.VoteDirection) (*model.Post, error) {
	stmt, ok := voteStatements[dir]
	if !ok {
		return nil, apperror.ValidationFailed("direction", fmt.Sprintf("unknown vote direction %q", dir))
	}

	p, err := scanPost(db.pool.QueryRow(ctx, stmt, id))
	if err != nil {
		return nil, voteError(id, err)
	}
	return p, nil
}

// voteError maps a failed vote UPDATE. A missing row is NotFound; lock
// contention and the rest go through classify with the driver error kept.
func voteError(id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound("post", id)
	}
	return classify(fmt.Sprintf("voting on post %s", id), err)
}

func (db *DB) DeletePost(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return classify(fmt.Sprintf("deleting post %s", id), err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("post", id)
	}
	return nil
}
