package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/forum/internal/access"
	"github.com/sakif/forum/internal/model"
	"github.com/sakif/forum/internal/repository"
)

// StatsService builds the admin dashboard numbers.
type StatsService struct {
	users    repository.UserRepository
	posts    repository.PostRepository
	comments repository.CommentRepository
	payments repository.PaymentRepository
	gate     *Gate
}

func NewStatsService(store repository.Store, gate *Gate) *StatsService {
	return &StatsService{users: store, posts: store, comments: store, payments: store, gate: gate}
}

// Stats runs the four counts concurrently. Admin only.
func (s *StatsService) Stats(ctx context.Context, callerEmail string) (*model.AdminStats, error) {
	if _, err := s.gate.Check(ctx, callerEmail, access.OpViewAdminStats); err != nil {
		return nil, err
	}

	var st model.AdminStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		st.Users, err = s.users.CountUsers(gctx, repository.UserQuery{})
		return err
	})
	g.Go(func() (err error) {
		st.Posts, err = s.posts.CountPosts(gctx, repository.PostQuery{})
		return err
	})
	g.Go(func() (err error) {
		st.Comments, err = s.comments.CountComments(gctx)
		return err
	})
	g.Go(func() (err error) {
		st.Payments, err = s.payments.CountPayments(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collecting admin stats: %w", err)
	}
	return &st, nil
}
