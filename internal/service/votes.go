package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/metrics"
	"github.com/sakif/forum/internal/model"
	"github.com/sakif/forum/internal/repository"
)

// VoteService applies net-score votes.
//
// A vote moves one unit toward its direction: it first cancels an opposing
// vote if there is one, otherwise it adds a vote. The store does this as a
// single conditional update, so two concurrent votes on the same post are
// both applied and neither counter can go below zero.
//
// Votes are anonymous and not deduplicated. The same caller may vote any
// number of times.
type VoteService struct {
	posts  repository.PostRepository
	cache  PostCache
	logger *slog.Logger
}

func NewVoteService(posts repository.PostRepository, cache PostCache, logger *slog.Logger) *VoteService {
	if cache == nil {
		cache = noCache{}
	}
	return &VoteService{posts: posts, cache: cache, logger: logger}
}

// Apply performs one vote on post id and returns the post after the update.
// Lock contention in the store surfaces as apperror.ErrConflict and is not
// retried here.
func (s *VoteService) Apply(ctx context.Context, id string, dir model.VoteDirection) (*model.Post, error) {
	if !dir.Valid() {
		return nil, apperror.ValidationFailed("direction", fmt.Sprintf("unknown vote direction %q", dir))
	}
	id, err := validateID("id", id)
	if err != nil {
		metrics.Votes.WithLabelValues(string(dir), "invalid").Inc()
		return nil, err
	}

	post, err := s.posts.ApplyVote(ctx, id, dir)
	metrics.Votes.WithLabelValues(string(dir), voteResult(err)).Inc()
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Warn("vote failed",
				slog.String("id", id),
				slog.String("direction", string(dir)),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	invalidatePost(ctx, s.cache, s.logger, id)

	s.logger.Debug("vote applied",
		slog.String("id", id),
		slog.String("direction", string(dir)),
		slog.Int("up", post.UpVote),
		slog.Int("down", post.DownVote),
	)
	return post, nil
}

func voteResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperror.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return "conflict"
	case errors.Is(err, apperror.ErrTransient):
		return "unavailable"
	default:
		return "error"
	}
}
