package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sakif/forum/internal/access"
	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/model"
	"github.com/sakif/forum/internal/repository"
)

const maxTransactionIDLength = 200

// PaymentService records captured payments. Card processing happens with
// the payment provider in the browser; the server only sees the resulting
// transaction id.
type PaymentService struct {
	payments repository.PaymentRepository
	users    repository.UserRepository
	gate     *Gate
	logger   *slog.Logger
}

func NewPaymentService(payments repository.PaymentRepository, users repository.UserRepository, gate *Gate, logger *slog.Logger) *PaymentService {
	return &PaymentService{payments: payments, users: users, gate: gate, logger: logger}
}

// Record upgrades the caller to the gold badge and stores the payment.
//
// The badge is set first. It is idempotent, so a replayed transaction id
// leaves the user gold and fails with apperror.ErrConflict on the insert.
// A caller with no user record gets apperror.ErrNotFound and nothing is
// stored.
func (s *PaymentService) Record(ctx context.Context, callerEmail string, amount int64, transactionID string) (*model.Payment, error) {
	p, err := s.gate.Check(ctx, callerEmail, access.OpRecordPayment)
	if err != nil {
		return nil, err
	}
	transactionID = strings.TrimSpace(transactionID)
	switch {
	case amount <= 0:
		return nil, apperror.ValidationFailed("amount", "amount must be positive")
	case transactionID == "":
		return nil, apperror.ValidationFailed("transactionId", "transaction id is required")
	case len(transactionID) > maxTransactionIDLength:
		return nil, apperror.ValidationFailed("transactionId", "transaction id is too long")
	}

	if err := s.users.SetUserBadge(ctx, p.Email, model.BadgeGold); err != nil {
		return nil, err
	}

	payment := &model.Payment{Email: p.Email, Amount: amount, TransactionID: transactionID}
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	s.logger.Info("payment recorded",
		slog.String("id", payment.ID),
		slog.String("email", payment.Email),
		slog.Int64("amount", payment.Amount),
	)
	return payment, nil
}
