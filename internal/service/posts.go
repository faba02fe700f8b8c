// Package service contains the business logic layer of the forum.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, authorizes, orchestrates
//	Repository (Data layer)  → reads/writes the database
//
// Services accept primitives and small input structs, never *http.Request,
// and return apperror kinds, never status codes. The handler package does
// the translation in one place.
//
// DEPENDENCY INJECTION:
// Every service takes repository interfaces, not *sqlite.DB or
// *postgres.DB. main wires a concrete store; tests wire the in-memory fake
// in fake_store_test.go.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/forum/internal/access"
	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/metrics"
	"github.com/sakif/forum/internal/model"
	"github.com/sakif/forum/internal/repository"
)

// Validation limits, in characters.
const (
	MaxTitleLength = 200
	MaxTagLength   = 50
	MaxBodyLength  = 10000
)

// PostCache is the cache-aside store for single posts. cache.PostCache
// implements it; a nil PostCache passed to NewPostService disables caching.
//
// GetPost returns a nil post on a miss, together with a generation that
// SetPost uses to drop the fill if the post was invalidated in between.
type PostCache interface {
	GetPost(ctx context.Context, id string) (*model.Post, int64, error)
	SetPost(ctx context.Context, p *model.Post, gen int64) error
	InvalidatePost(ctx context.Context, id string) error
}

type noCache struct{}

func (noCache) GetPost(context.Context, string) (*model.Post, int64, error) { return nil, 0, nil }
func (noCache) SetPost(context.Context, *model.Post, int64) error           { return nil }
func (noCache) InvalidatePost(context.Context, string) error                { return nil }

// PostService is the query and ranking engine plus post lifecycle.
type PostService struct {
	posts     repository.PostRepository
	comments  repository.CommentRepository
	users     repository.UserRepository
	gate      *Gate
	cache     PostCache
	chunkSize int
	logger    *slog.Logger
}

// PostServiceOptions carries the tunables. Zero values pick defaults.
type PostServiceOptions struct {
	Cache PostCache
	// EnrichChunkSize is the number of distinct titles per comment-count query.
	EnrichChunkSize int
}

const defaultEnrichChunkSize = 25

func NewPostService(
	posts repository.PostRepository,
	comments repository.CommentRepository,
	users repository.UserRepository,
	gate *Gate,
	logger *slog.Logger,
	opts PostServiceOptions,
) *PostService {
	s := &PostService{
		posts:     posts,
		comments:  comments,
		users:     users,
		gate:      gate,
		cache:     opts.Cache,
		chunkSize: opts.EnrichChunkSize,
		logger:    logger,
	}
	if s.cache == nil {
		s.cache = noCache{}
	}
	if s.chunkSize <= 0 {
		s.chunkSize = defaultEnrichChunkSize
	}
	return s
}

// CreatePostInput is a new post as submitted. AuthorEmail may be left empty;
// when set it must equal the caller's verified email.
type CreatePostInput struct {
	Title       string
	Tag         string
	Body        string
	AuthorEmail string
	AuthorName  string
	AuthorPhoto string
}

// Create validates and stores a post authored by callerEmail.
func (s *PostService) Create(ctx context.Context, callerEmail string, in CreatePostInput) (*model.Post, error) {
	p, err := s.gate.Check(ctx, callerEmail, access.OpCreatePost)
	if err != nil {
		return nil, err
	}
	if in.AuthorEmail != "" && !strings.EqualFold(in.AuthorEmail, p.Email) {
		return nil, apperror.Forbidden("posts can only be created under your own email")
	}

	post := &model.Post{
		Title:       strings.TrimSpace(in.Title),
		Tag:         strings.TrimSpace(in.Tag),
		Body:        in.Body,
		AuthorEmail: p.Email,
		AuthorName:  strings.TrimSpace(in.AuthorName),
		AuthorPhoto: strings.TrimSpace(in.AuthorPhoto),
	}
	if err := validatePost(post); err != nil {
		return nil, err
	}

	if err := s.posts.CreatePost(ctx, post); err != nil {
		s.logger.Error("failed to create post",
			slog.String("author", post.AuthorEmail),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating post: %w", err)
	}

	s.logger.Info("post created",
		slog.String("id", post.ID),
		slog.String("author", post.AuthorEmail),
		slog.String("tag", post.Tag),
	)
	return post, nil
}

func validatePost(p *model.Post) error {
	if p.Title == "" {
		return apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(p.Title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if p.Tag == "" {
		return apperror.ValidationFailed("tag", "tag is required")
	}
	if utf8.RuneCountInString(p.Tag) > MaxTagLength {
		return apperror.ValidationFailed("tag",
			fmt.Sprintf("tag must be %d characters or less", MaxTagLength))
	}
	if utf8.RuneCountInString(p.Body) > MaxBodyLength {
		return apperror.ValidationFailed("body",
			fmt.Sprintf("body must be %d characters or less", MaxBodyLength))
	}
	return nil
}

// Get returns one post, reading through the cache when one is configured.
// Cache failures are logged and fall through to the store.
func (s *PostService) Get(ctx context.Context, id string) (*model.Post, error) {
	id, err := validateID("id", id)
	if err != nil {
		return nil, err
	}

	cached, gen, err := s.cache.GetPost(ctx, id)
	fill := err == nil
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn("post cache read failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	case cached != nil:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	default:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	post, err := s.posts.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	// Without a generation the fill could not be checked against an
	// invalidation, so a failed read skips it.
	if !fill {
		return post, nil
	}
	if err := s.cache.SetPost(ctx, post, gen); err != nil {
		s.logger.Warn("post cache write failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	}
	return post, nil
}

// ListPostsInput is one listing request. Search is a case-insensitive
// substring of the tag. A nil Paging returns the whole filtered set.
type ListPostsInput struct {
	Search string
	Sort   model.SortMode
	Paging *Paging
}

// List returns one page of posts in the requested order, each with the
// number of comments filed under its title.
func (s *PostService) List(ctx context.Context, in ListPostsInput) ([]model.PostSummary, error) {
	opts, err := in.Paging.options()
	if err != nil {
		return nil, err
	}
	start := time.Now()

	posts, err := s.posts.ListPosts(ctx, repository.PostQuery{
		Tag:         strings.TrimSpace(in.Search),
		Sort:        in.Sort,
		ListOptions: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}

	summaries, err := s.enrich(ctx, posts)
	if err != nil {
		return nil, fmt.Errorf("counting comments: %w", err)
	}

	metrics.ListDuration.WithLabelValues(in.Sort.String()).Observe(time.Since(start).Seconds())
	return summaries, nil
}

// Count returns how many posts match search, ignoring pagination.
func (s *PostService) Count(ctx context.Context, search string) (int, error) {
	n, err := s.posts.CountPosts(ctx, repository.PostQuery{Tag: strings.TrimSpace(search)})
	if err != nil {
		return 0, fmt.Errorf("counting posts: %w", err)
	}
	return n, nil
}

// ListByAuthor returns every post by email, newest first.
func (s *PostService) ListByAuthor(ctx context.Context, email string) ([]model.Post, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "author email is required")
	}
	posts, err := s.posts.ListPosts(ctx, repository.PostQuery{
		AuthorEmail: email,
		Sort:        model.SortRecency,
	})
	if err != nil {
		return nil, fmt.Errorf("listing posts by author: %w", err)
	}
	return posts, nil
}

// Badge reads the user's badge tier and post count concurrently. The two
// reads are independent, so the pair is not a consistent snapshot.
func (s *PostService) Badge(ctx context.Context, email string) (*model.Badge, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	var (
		user  *model.User
		count int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.users.GetUserByEmail(gctx, email)
		return err
	})
	g.Go(func() error {
		var err error
		count, err = s.posts.CountPosts(gctx, repository.PostQuery{AuthorEmail: email})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tier := user.Badge
	if tier == "" {
		tier = model.BadgeBronze
	}
	return &model.Badge{Email: email, Badge: tier, PostCount: count}, nil
}

// Delete removes a post. Only its author or an admin may do so.
func (s *PostService) Delete(ctx context.Context, callerEmail, id string) error {
	p, err := s.gate.Check(ctx, callerEmail, access.OpDeletePost)
	if err != nil {
		return err
	}
	id, err = validateID("id", id)
	if err != nil {
		return err
	}

	post, err := s.posts.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if !strings.EqualFold(post.AuthorEmail, p.Email) && !p.IsAdmin() {
		return apperror.Forbidden("only the author or an admin may delete this post")
	}

	if err := s.posts.DeletePost(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)

	s.logger.Info("post deleted",
		slog.String("id", id),
		slog.String("by", p.Email),
		slog.Bool("admin", p.IsAdmin()),
	)
	return nil
}

func (s *PostService) invalidate(ctx context.Context, id string) {
	invalidatePost(ctx, s.cache, s.logger, id)
}

func invalidatePost(ctx context.Context, c PostCache, logger *slog.Logger, id string) {
	if err := c.InvalidatePost(ctx, id); err != nil {
		logger.Warn("post cache invalidation failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	}
}

// validateID trims id and checks it is a well-formed identifier.
func validateID(field, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	if _, err := xid.FromString(id); err != nil {
		return "", apperror.ValidationFailed(field, fmt.Sprintf("%s %q is not a valid identifier", field, id))
	}
	return id, nil
}
