// Package handler contains the HTTP handlers for the forum API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming HTTP request (path params, query, JSON body)
//  2. Call the service layer with the caller's verified email
//  3. Write the HTTP response (status code, headers, JSON body)
//
// Handlers do not decide who may do what or how a vote moves a counter.
// They translate HTTP into service calls and service errors back into
// status codes (see writeError).
package handler

import (
	"log/slog"
	"net/http"
)

// HealthHandler answers GET / so load balancers and humans can see the
// process is up. It does not touch the store.
type HealthHandler struct {
	logger *slog.Logger
}

func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte("forum server is running\n")); err != nil {
		h.logger.Debug("health: write failed", slog.String("error", err.Error()))
	}
}
