// Package repository declares the storage contracts the service layer
// depends on. Two implementations exist: repository/sqlite (default) and
// repository/postgres. Method names are unique across interfaces because a
// single *DB value implements all of them.
package repository

import (
	"context"

	"github.com/sakif/forum/internal/model"
)

// ListOptions is a LIMIT/OFFSET window. Limit <= 0 means no limit.
type ListOptions struct {
	Limit  int
	Offset int
}

// PostQuery describes one listing request. Tag is a case-insensitive
// substring filter; AuthorEmail is an exact match. Empty strings disable
// the respective filter.
type PostQuery struct {
	Tag         string
	AuthorEmail string
	Sort        model.SortMode
	ListOptions
}

type PostRepository interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id string) (*model.Post, error)
	ListPosts(ctx context.Context, q PostQuery) ([]model.Post, error)
	// CountPosts applies the same Tag and AuthorEmail filters as ListPosts
	// and ignores Sort and ListOptions.
	CountPosts(ctx context.Context, q PostQuery) (int, error)
	// ApplyVote performs the vote transition as one conditional update and
	// returns the post as it is after the update.
	ApplyVote(ctx context.Context, id string, dir model.VoteDirection) (*model.Post, error)
	DeletePost(ctx context.Context, id string) error
}

type CommentRepository interface {
	CreateComment(ctx context.Context, c *model.Comment) error
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	ListCommentsByTitle(ctx context.Context, title string) ([]model.Comment, error)
	// CountCommentsByTitles returns comment counts keyed by title. Titles
	// with no comments are absent from the map.
	CountCommentsByTitles(ctx context.Context, titles []string) (map[string]int, error)
	ReportComment(ctx context.Context, id, reporter, reason string) error
	ListReportedComments(ctx context.Context, opts ListOptions) ([]model.Comment, error)
	DeleteComment(ctx context.Context, id string) error
	CountComments(ctx context.Context) (int, error)
}

// UserQuery filters users by a case-insensitive substring of name or email.
type UserQuery struct {
	Search string
	ListOptions
}

type UserRepository interface {
	// InsertUserIfAbsent inserts user unless a user with the same email
	// exists. It reports whether a row was created; when it was not, user
	// is left untouched.
	InsertUserIfAbsent(ctx context.Context, user *model.User) (bool, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context, q UserQuery) ([]model.User, error)
	CountUsers(ctx context.Context, q UserQuery) (int, error)
	SetUserRole(ctx context.Context, id string, role model.Role) error
	SetUserBadge(ctx context.Context, email string, badge model.BadgeTier) error
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, p *model.Payment) error
	CountPayments(ctx context.Context) (int, error)
}

// Store is everything the server needs from a backend.
type Store interface {
	PostRepository
	CommentRepository
	UserRepository
	PaymentRepository
	Close() error
}
