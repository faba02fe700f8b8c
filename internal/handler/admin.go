package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/forum/internal/service"
)

// AdminHandler serves payments and the admin dashboard.
type AdminHandler struct {
	payments *service.PaymentService
	stats    *service.StatsService
	logger   *slog.Logger
}

func NewAdminHandler(payments *service.PaymentService, stats *service.StatsService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{payments: payments, stats: stats, logger: logger}
}

type paymentRequest struct {
	Amount        int64  `json:"amount" validate:"gt=0"`
	TransactionID string `json:"transactionId" validate:"required,max=200"`
}

// HandleRecordPayment: POST /payments with {"amount": 1000, "transactionId": "pi_..."}
//
// Amount is in minor currency units. A transaction id that was already
// recorded gets 409.
func (h *AdminHandler) HandleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.payments.Record(r.Context(), callerEmail(r), req.Amount, req.TransactionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleStats: GET /admin-stats (admin)
func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.stats.Stats(r.Context(), callerEmail(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
