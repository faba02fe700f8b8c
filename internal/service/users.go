package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/forum/internal/access"
	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/model"
	"github.com/sakif/forum/internal/repository"
)

// validate checks single values that have a well-known format. The
// handler package validates request bodies with its own instance.
var validate = validator.New(validator.WithRequiredStructEnabled())

// normalizeEmail lowercases and trims so the unique key is stable across
// sign-in paths.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkEmail(email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if err := validate.Var(email, "email"); err != nil {
		return apperror.ValidationFailed("email", fmt.Sprintf("%q is not a valid email address", email))
	}
	return nil
}

type UserService struct {
	users  repository.UserRepository
	gate   *Gate
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, gate *Gate, logger *slog.Logger) *UserService {
	return &UserService{users: users, gate: gate, logger: logger}
}

type RegisterUserInput struct {
	Email    string
	Name     string
	PhotoURL string
}

// RegisterResult reports whether Register created a row. When Created is
// false the user already existed and User is nil.
type RegisterResult struct {
	User    *model.User
	Created bool
}

// Register inserts a user keyed by email unless one exists. Calling it
// again with the same email is a no-op, not an error.
func (s *UserService) Register(ctx context.Context, in RegisterUserInput) (*RegisterResult, error) {
	email := normalizeEmail(in.Email)
	if err := checkEmail(email); err != nil {
		return nil, err
	}

	u := &model.User{
		Email:    email,
		Name:     strings.TrimSpace(in.Name),
		PhotoURL: strings.TrimSpace(in.PhotoURL),
		Role:     model.RoleMember,
		Badge:    model.BadgeBronze,
	}
	created, err := s.users.InsertUserIfAbsent(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("registering user: %w", err)
	}
	if !created {
		return &RegisterResult{}, nil
	}

	s.logger.Info("user registered", slog.String("id", u.ID), slog.String("email", u.Email))
	return &RegisterResult{User: u, Created: true}, nil
}

// Get returns the user with the given email.
func (s *UserService) Get(ctx context.Context, email string) (*model.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	return s.users.GetUserByEmail(ctx, email)
}

// List returns users matching search (name or email substring) and the
// total number of matches. Admin only.
func (s *UserService) List(ctx context.Context, callerEmail, search string, paging *Paging) ([]model.User, int, error) {
	if _, err := s.gate.Check(ctx, callerEmail, access.OpListUsers); err != nil {
		return nil, 0, err
	}
	opts, err := paging.options()
	if err != nil {
		return nil, 0, err
	}

	q := repository.UserQuery{Search: strings.TrimSpace(search), ListOptions: opts}
	users, err := s.users.ListUsers(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	total, err := s.users.CountUsers(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}
	return users, total, nil
}

// SetRole changes a user's role. Admin only. An admin may demote
// themselves; the change applies from their next request.
func (s *UserService) SetRole(ctx context.Context, callerEmail, userID string, role model.Role) error {
	p, err := s.gate.Check(ctx, callerEmail, access.OpSetRole)
	if err != nil {
		return err
	}
	userID, err = validateID("id", userID)
	if err != nil {
		return err
	}
	if !role.Valid() {
		return apperror.ValidationFailed("role", fmt.Sprintf("role must be %q or %q", model.RoleMember, model.RoleAdmin))
	}

	if err := s.users.SetUserRole(ctx, userID, role); err != nil {
		return err
	}
	s.logger.Info("user role changed",
		slog.String("user_id", userID),
		slog.String("role", string(role)),
		slog.String("by", p.Email),
	)
	return nil
}

// UpgradeBadge sets the user's badge to gold. Repeating it is harmless.
func (s *UserService) UpgradeBadge(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	return s.users.SetUserBadge(ctx, email, model.BadgeGold)
}
