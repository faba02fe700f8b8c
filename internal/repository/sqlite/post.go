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

const postColumns = `id, title, tag, body, author_email, author_name, author_photo, up_vote, down_vote, created_at`

// voteStatements holds the vote transition for each direction.
//
// ONE STATEMENT, NO READ-THEN-WRITE:
// Every right-hand side in a SET clause sees the row as it was before the
// UPDATE, so "cancel one opposing vote if there is one, then add one" is
// decided and applied against the current row inside a single write. Two
// concurrent votes on the same post are serialized by the write lock, and
// neither can observe the other's half-applied state.
//
// The CASE only ever decrements a counter that is strictly positive, which
// together with the CHECK constraints keeps both counters non-negative.
var voteStatements = map[model.VoteDirection]string{
	model.VoteUp: `UPDATE posts
		SET up_vote   = up_vote + 1,
		    down_vote = CASE WHEN down_vote > 0 THEN down_vote - 1 ELSE down_vote END
		WHERE id = ?
		RETURNING ` + postColumns,
	model.VoteDown: `UPDATE posts
		SET down_vote = down_vote + 1,
		    up_vote   = CASE WHEN up_vote > 0 THEN up_vote - 1 ELSE up_vote END
		WHERE id = ?
		RETURNING ` + postColumns,
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(s rowScanner) (*model.Post, error) {
	var (
		p       model.Post
		created string
	)
	if err := s.Scan(
		&p.ID, &p.Title, &p.Tag, &p.Body,
		&p.AuthorEmail, &p.AuthorName, &p.AuthorPhoto,
		&p.UpVote, &p.DownVote, &created,
	); err != nil {
		return nil, err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = t
	return &p, nil
}

// CreatePost inserts a new post. ID is always generated here; CreatedAt is
// set to now unless the caller already filled it in. Counters start at 0
// regardless of what the caller passed.
func (db *DB) CreatePost(ctx context.Context, post *model.Post) error {
	post.ID = xid.New().String()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	post.CreatedAt = post.CreatedAt.UTC()
	post.UpVote, post.DownVote = 0, 0

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO posts (id, title, tag, tag_folded, body, author_email, author_name, author_photo, up_vote, down_vote, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)`,
		post.ID,
		post.Title,
		post.Tag,
		fold(post.Tag),
		post.Body,
		post.AuthorEmail,
		post.AuthorName,
		post.AuthorPhoto,
		formatTime(post.CreatedAt),
	)
	if err != nil {
		return classify("creating post", err)
	}
	return nil
}

// GetPost retrieves a single post by its ID.
func (db *DB) GetPost(ctx context.Context, id string) (*model.Post, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`, id)

	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("post", id)
		}
		return nil, classify(fmt.Sprintf("getting post %s", id), err)
	}
	return post, nil
}

// postFilter renders the WHERE clause shared by ListPosts and CountPosts so
// the two can never disagree about which posts match.
func postFilter(q repository.PostQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if q.Tag != "" {
		conds = append(conds, "instr(tag_folded, ?) > 0")
		args = append(args, fold(q.Tag))
	}
	if q.AuthorEmail != "" {
		conds = append(conds, "author_email = ?")
		args = append(args, q.AuthorEmail)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderBy is the single dispatch point for SortMode.
func orderBy(mode model.SortMode) string {
	switch mode {
	case model.SortRanked:
		return " ORDER BY (up_vote - down_vote) DESC, created_at DESC, id DESC"
	default:
		return " ORDER BY created_at DESC, id DESC"
	}
}

// ListPosts returns the posts matching q in q.Sort order, windowed by
// q.ListOptions.
func (db *DB) ListPosts(ctx context.Context, q repository.PostQuery) ([]model.Post, error) {
	where, args := postFilter(q)
	limit, limitArgs := limitClause(q.ListOptions)
	args = append(args, limitArgs...)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts`+where+orderBy(q.Sort)+limit, args...)
	if err != nil {
		return nil, classify("listing posts", err)
	}
	defer rows.Close()

	posts := make([]model.Post, 0, max(q.Limit, 0))
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning post row: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating posts", err)
	}
	return posts, nil
}

// CountPosts counts the posts matching q's filters.
func (db *DB) CountPosts(ctx context.Context, q repository.PostQuery) (int, error) {
	where, args := postFilter(q)

	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`+where, args...).Scan(&n); err != nil {
		return 0, classify("counting posts", err)
	}
	return n, nil
}

// ApplyVote runs the vote transition for dir and returns the updated post.
// A lock wait that outlasts busy_timeout comes back as Conflict.
func (db *DB) ApplyVote(ctx context.Context, id string, dir model.VoteDirection) (*model.Post, error) {
	stmt, ok := voteStatements[dir]
	if !ok {
		return nil, apperror.ValidationFailed("direction", fmt.Sprintf("unknown vote direction %q", dir))
	}

	post, err := scanPost(db.conn.QueryRowContext(ctx, stmt, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("post", id)
		}
		return nil, classify(fmt.Sprintf("voting on post %s", id), err)
	}
	return post, nil
}

// DeletePost removes a post. Its comments are left in place; they are
// joined by title, not owned by the post.
func (db *DB) DeletePost(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return classify(fmt.Sprintf("deleting post %s", id), err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("post", id)
	}
	return nil
}
