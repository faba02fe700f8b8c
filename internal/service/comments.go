package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/forum/internal/access"
	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/model"
	"github.com/sakif/forum/internal/repository"
)

const (
	MaxCommentLength = 2000
	MaxReasonLength  = 500
)

// CommentService manages comments and the moderation queue.
//
// Comments attach to a post by title. Nothing checks that a post with that
// title exists, and deleting a post leaves its comments behind.
type CommentService struct {
	comments repository.CommentRepository
	gate     *Gate
	logger   *slog.Logger
}

func NewCommentService(comments repository.CommentRepository, gate *Gate, logger *slog.Logger) *CommentService {
	return &CommentService{comments: comments, gate: gate, logger: logger}
}

func (s *CommentService) Create(ctx context.Context, callerEmail, postTitle, body string) (*model.Comment, error) {
	p, err := s.gate.Check(ctx, callerEmail, access.OpCreateComment)
	if err != nil {
		return nil, err
	}

	c := &model.Comment{
		PostTitle:   strings.TrimSpace(postTitle),
		Body:        strings.TrimSpace(body),
		AuthorEmail: p.Email,
	}
	switch {
	case c.PostTitle == "":
		return nil, apperror.ValidationFailed("postTitle", "post title is required")
	case utf8.RuneCountInString(c.PostTitle) > MaxTitleLength:
		return nil, apperror.ValidationFailed("postTitle",
			fmt.Sprintf("post title must be %d characters or less", MaxTitleLength))
	case c.Body == "":
		return nil, apperror.ValidationFailed("body", "comment body is required")
	case utf8.RuneCountInString(c.Body) > MaxCommentLength:
		return nil, apperror.ValidationFailed("body",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}

	if err := s.comments.CreateComment(ctx, c); err != nil {
		return nil, fmt.Errorf("creating comment: %w", err)
	}
	s.logger.Info("comment created",
		slog.String("id", c.ID),
		slog.String("post_title", c.PostTitle),
		slog.String("author", c.AuthorEmail),
	)
	return c, nil
}

func (s *CommentService) ListByTitle(ctx context.Context, title string) ([]model.Comment, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "post title is required")
	}
	comments, err := s.comments.ListCommentsByTitle(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	return comments, nil
}

// Report flags a comment for moderation. Reporting an already reported
// comment replaces the reason and reporter.
func (s *CommentService) Report(ctx context.Context, callerEmail, id, reason string) error {
	p, err := s.gate.Check(ctx, callerEmail, access.OpReportComment)
	if err != nil {
		return err
	}
	id, err = validateID("id", id)
	if err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperror.ValidationFailed("reason", "a reason is required")
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return apperror.ValidationFailed("reason",
			fmt.Sprintf("reason must be %d characters or less", MaxReasonLength))
	}

	if err := s.comments.ReportComment(ctx, id, p.Email, reason); err != nil {
		return err
	}
	s.logger.Info("comment reported", slog.String("id", id), slog.String("by", p.Email))
	return nil
}

// ListReports returns reported comments, newest first. Admin only.
func (s *CommentService) ListReports(ctx context.Context, callerEmail string, paging *Paging) ([]model.Comment, error) {
	if _, err := s.gate.Check(ctx, callerEmail, access.OpListReports); err != nil {
		return nil, err
	}
	opts, err := paging.options()
	if err != nil {
		return nil, err
	}
	reports, err := s.comments.ListReportedComments(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return reports, nil
}

// ResolveReport accepts a report by deleting the comment. Admin only.
// Only comments in the moderation queue can be resolved; any other id is
// NotFound.
func (s *CommentService) ResolveReport(ctx context.Context, callerEmail, id string) error {
	p, err := s.gate.Check(ctx, callerEmail, access.OpResolveReport)
	if err != nil {
		return err
	}
	id, err = validateID("id", id)
	if err != nil {
		return err
	}
	c, err := s.comments.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if !c.Reported {
		return apperror.NotFound("report", id)
	}
	if err := s.comments.DeleteComment(ctx, id); err != nil {
		return err
	}
	s.logger.Info("reported comment removed", slog.String("id", id), slog.String("by", p.Email))
	return nil
}
