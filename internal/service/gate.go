package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/forum/internal/access"
	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/model"
	"github.com/sakif/forum/internal/repository"
)

// RoleLookup is the one query the gate needs from the user store.
type RoleLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Gate resolves a verified email into an access.Principal and authorizes it.
//
// The role is read from the users table on every call. A token only proves
// who the caller is; what they may do is whatever the table says right now.
type Gate struct {
	users RoleLookup
}

func NewGate(users RoleLookup) *Gate {
	return &Gate{users: users}
}

// Check authorizes email for op and returns the resolved principal, which
// is nil for an anonymous caller on an open operation.
//
// Operations open to anyone skip the role lookup. A verified email with no
// user record is treated as a member.
func (g *Gate) Check(ctx context.Context, email string, op access.Operation) (*access.Principal, error) {
	if email == "" {
		return nil, access.Authorize(nil, op)
	}
	p := &access.Principal{Email: email, Role: model.RoleMember}
	if access.Required(op) == access.TierAnyone {
		return p, nil
	}

	u, err := g.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		p.Role = u.Role
	case errors.Is(err, apperror.ErrNotFound):
	default:
		return nil, fmt.Errorf("resolving role for %s: %w", op, err)
	}

	if err := access.Authorize(p, op); err != nil {
		return nil, err
	}
	return p, nil
}

// Paging is a 1-indexed page request. A nil *Paging means "everything".
type Paging struct {
	Page int
	Size int // 0 means DefaultPageSize
}

const (
	DefaultPageSize = 5
	MaxPageSize     = 100
)

// options turns p into a LIMIT/OFFSET window.
func (p *Paging) options() (repository.ListOptions, error) {
	if p == nil {
		return repository.ListOptions{}, nil
	}
	if p.Page < 1 {
		return repository.ListOptions{}, apperror.ValidationFailed("page", "page must be a positive integer")
	}
	size := p.Size
	switch {
	case size == 0:
		size = DefaultPageSize
	case size < 0:
		return repository.ListOptions{}, apperror.ValidationFailed("size", "size must be a positive integer")
	case size > MaxPageSize:
		return repository.ListOptions{}, apperror.ValidationFailed("size",
			fmt.Sprintf("size must be %d or less", MaxPageSize))
	}
	return repository.ListOptions{Limit: size, Offset: (p.Page - 1) * size}, nil
}
