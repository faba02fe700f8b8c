package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/forum/internal/service"
)

// CommentHandler serves comments and the moderation queue.
type CommentHandler struct {
	comments *service.CommentService
	logger   *slog.Logger
}

func NewCommentHandler(comments *service.CommentService, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{comments: comments, logger: logger}
}

type createCommentRequest struct {
	PostTitle string `json:"postTitle" validate:"required,max=200"`
	Body      string `json:"body" validate:"required,max=2000"`
}

// HandleCreate: POST /comment with {"postTitle": "...", "body": "..."}
func (h *CommentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.comments.Create(r.Context(), callerEmail(r), req.PostTitle, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"insertedId": c.ID})
}

// HandleListByTitle: GET /comment/{title}
//
// The title is a path segment, so clients must escape "/" as %2F.
func (h *CommentHandler) HandleListByTitle(w http.ResponseWriter, r *http.Request) {
	comments, err := h.comments.ListByTitle(r.Context(), pathParam(r, "title"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(comments))
}

type reportRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// HandleReport: POST /comment/report/{id} with {"reason": "spam"}
func (h *CommentHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.comments.Report(r.Context(), callerEmail(r), pathParam(r, "id"), req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"modifiedCount": 1})
}

// HandleListReports: GET /reports?page=&size= (admin)
func (h *CommentHandler) HandleListReports(w http.ResponseWriter, r *http.Request) {
	paging, err := pagingFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	reports, err := h.comments.ListReports(r.Context(), callerEmail(r), paging)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(reports))
}

// HandleResolveReport: DELETE /reports/{id} (admin). Removes the comment.
func (h *CommentHandler) HandleResolveReport(w http.ResponseWriter, r *http.Request) {
	if err := h.comments.ResolveReport(r.Context(), callerEmail(r), pathParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deletedCount": 1})
}
