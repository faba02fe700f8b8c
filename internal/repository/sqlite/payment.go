package sqlite

import (
	"context"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/model"
)

// CreatePayment records a payment. A transaction ID that was already
// recorded is a Conflict; the existing row is kept.
func (db *DB) CreatePayment(ctx context.Context, p *model.Payment) error {
	p.ID = xid.New().String()
	p.CreatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO payments (id, email, amount, transaction_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(transaction_id) DO NOTHING`,
		p.ID, p.Email, p.Amount, p.TransactionID, formatTime(p.CreatedAt),
	)
	if err != nil {
		return classify("recording payment", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.Conflict("payment", p.TransactionID)
	}
	return nil
}

func (db *DB) CountPayments(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments`).Scan(&n); err != nil {
		return 0, classify("counting payments", err)
	}
	return n, nil
}
