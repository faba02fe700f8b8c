package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/auth"
	"github.com/sakif/forum/internal/model"
	"github.com/sakif/forum/internal/repository"
)

// AuthService turns a GitHub sign-in into a forum session.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                   ↘ TokenService (JWT)
//
// It does not set cookies or read requests. Those are HTTP concerns and
// stay in the handler.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{users: users, tokens: tokens, logger: logger}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegisterGitHub registers the GitHub user by email on first sign-in
// and issues a token whose subject is that email.
//
// An existing user keeps the name, photo and role already on file. The
// insert and the existence check are one statement in the store, so two
// simultaneous first sign-ins still create one user.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, errors.New("service/auth: GitHub user must not be nil")
	}
	email := normalizeEmail(ghUser.Email)
	if err := checkEmail(email); err != nil {
		return nil, err
	}

	candidate := &model.User{
		Email:    email,
		Name:     ghUser.DisplayName(),
		PhotoURL: ghUser.AvatarURL,
		Role:     model.RoleMember,
		Badge:    model.BadgeBronze,
	}
	created, err := s.users.InsertUserIfAbsent(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("service/auth: registering %s: %w", email, err)
	}

	user := candidate
	if !created {
		if user, err = s.users.GetUserByEmail(ctx, email); err != nil {
			return nil, fmt.Errorf("service/auth: loading %s: %w", email, err)
		}
	}

	token, err := s.tokens.Generate(user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", user.Email, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("user_id", user.ID),
		slog.String("login", ghUser.Login),
		slog.Bool("new_user", created),
	)
	return &AuthResult{User: user, Token: token}, nil
}

// Me returns the record of the signed-in caller.
func (s *AuthService) Me(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, apperror.Unauthorized("sign in to view your profile")
	}
	return s.users.GetUserByEmail(ctx, email)
}
