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

const userColumns = `id, email, name, photo_url, role, badge, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PhotoURL, &u.Role, &u.Badge, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (db *DB) InsertUserIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	candidate := *user
	candidate.ID = xid.New().String()
	candidate.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	if candidate.Role == "" {
		candidate.Role = model.RoleMember
	}
	if candidate.Badge == "" {
		candidate.Badge = model.BadgeBronze
	}

	tag, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, photo_url, role, badge, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (email) DO NOTHING`,
		candidate.ID, candidate.Email, candidate.Name, candidate.PhotoURL,
		string(candidate.Role), string(candidate.Badge), candidate.CreatedAt,
	)
	if err != nil {
		return false, classify(fmt.Sprintf("inserting user %s", user.Email), err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	*user = candidate
	return true, nil
}

func (db *DB) getUser(ctx context.Context, column, value string) (*model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, classify(fmt.Sprintf("getting user %s", value), err)
	}
	return u, nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, "email", email)
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "id", id)
}

func userFilter(a *args, q repository.UserQuery) string {
	if q.Search == "" {
		return ""
	}
	p := a.add(q.Search)
	return " WHERE strpos(lower(name), lower(" + p + ")) > 0 OR strpos(lower(email), lower(" + p + ")) > 0"
}

func (db *DB) ListUsers(ctx context.Context, q repository.UserQuery) ([]model.User, error) {
	var a args
	query := `SELECT ` + userColumns + ` FROM users` + userFilter(&a, q) +
		` ORDER BY created_at DESC, id DESC` + limitClause(&a, q.ListOptions)

	rows, err := db.pool.Query(ctx, query, a...)
	if err != nil {
		return nil, classify("listing users", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("listing users", err)
	}
	return users, nil
}

func (db *DB) CountUsers(ctx context.Context, q repository.UserQuery) (int, error) {
	var a args
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+userFilter(&a, q), a...).Scan(&n); err != nil {
		return 0, classify("counting users", err)
	}
	return n, nil
}

func (db *DB) SetUserRole(ctx context.Context, id string, role model.Role) error {
	tag, err := db.pool.Exec(ctx, `UPDATE users SET role = $1 WHERE id = $2`, string(role), id)
	if err != nil {
		return classify(fmt.Sprintf("setting role of user %s", id), err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func (db *DB) SetUserBadge(ctx context.Context, email string, badge model.BadgeTier) error {
	tag, err := db.pool.Exec(ctx, `UPDATE users SET badge = $1 WHERE email = $2`, string(badge), email)
	if err != nil {
		return classify(fmt.Sprintf("setting badge of user %s", email), err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", email)
	}
	return nil
}

func (db *DB) CreatePayment(ctx context.Context, p *model.Payment) error {
	p.ID = xid.New().String()
	p.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	tag, err := db.pool.Exec(ctx,
		`INSERT INTO payments (id, email, amount, transaction_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (transaction_id) DO NOTHING`,
		p.ID, p.Email, p.Amount, p.TransactionID, p.CreatedAt)
	if err != nil {
		return classify("recording payment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.Conflict("payment", p.TransactionID)
	}
	return nil
}

func (db *DB) CountPayments(ctx context.Context) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments`).Scan(&n); err != nil {
		return 0, classify("counting payments", err)
	}
	return n, nil
}
