package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/model"
	"github.com/sakif/forum/internal/repository"
)

const userColumns = `id, email, name, photo_url, role, badge, created_at`

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u       model.User
		created string
	)
	if err := s.Scan(&u.ID, &u.Email, &u.Name, &u.PhotoURL, &u.Role, &u.Badge, &created); err != nil {
		return nil, err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = t
	return &u, nil
}

// InsertUserIfAbsent inserts the user unless the email is already taken.
//
// ON CONFLICT(email) DO NOTHING makes the check and the insert one
// statement, so two first sign-ins racing on the same email still produce
// exactly one row. RowsAffected tells us which of the two won.
func (db *DB) InsertUserIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	candidate := *user
	candidate.ID = xid.New().String()
	candidate.CreatedAt = time.Now().UTC()
	if candidate.Role == "" {
		candidate.Role = model.RoleMember
	}
	if candidate.Badge == "" {
		candidate.Badge = model.BadgeBronze
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, name, name_folded, photo_url, role, badge, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO NOTHING`,
		candidate.ID,
		candidate.Email,
		candidate.Name,
		fold(candidate.Name),
		candidate.PhotoURL,
		candidate.Role,
		candidate.Badge,
		formatTime(candidate.CreatedAt),
	)
	if err != nil {
		return false, classify(fmt.Sprintf("inserting user %s", user.Email), err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	*user = candidate
	return true, nil
}

func (db *DB) getUser(ctx context.Context, column, value string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, classify(fmt.Sprintf("getting user %s", value), err)
	}
	return u, nil
}

// GetUserByEmail returns apperror.ErrNotFound if no user has that email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, "email", email)
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "id", id)
}

func userFilter(q repository.UserQuery) (string, []any) {
	if q.Search == "" {
		return "", nil
	}
	needle := fold(q.Search)
	return ` WHERE instr(name_folded, ?) > 0 OR instr(lower(email), ?) > 0`,
		[]any{needle, needle}
}

func (db *DB) ListUsers(ctx context.Context, q repository.UserQuery) ([]model.User, error) {
	where, args := userFilter(q)
	limit, limitArgs := limitClause(q.ListOptions)
	args = append(args, limitArgs...)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users`+where+` ORDER BY created_at DESC, id DESC`+limit, args...)
	if err != nil {
		return nil, classify("listing users", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("listing users", err)
	}
	return users, nil
}

func (db *DB) CountUsers(ctx context.Context, q repository.UserQuery) (int, error) {
	where, args := userFilter(q)
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&n); err != nil {
		return 0, classify("counting users", err)
	}
	return n, nil
}

func (db *DB) SetUserRole(ctx context.Context, id string, role model.Role) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, role, id)
	if err != nil {
		return classify(fmt.Sprintf("setting role of user %s", id), err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// SetUserBadge is an idempotent set: applying the same badge twice succeeds.
func (db *DB) SetUserBadge(ctx context.Context, email string, badge model.BadgeTier) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE users SET badge = ? WHERE email = ?`, badge, email)
	if err != nil {
		return classify(fmt.Sprintf("setting badge of user %s", email), err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("user", email)
	}
	return nil
}
