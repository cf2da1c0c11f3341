// Package auth handles registration, login and bearer-token validation.
// It is the boundary that supplies the optional viewer id the rest of the
// system keys off: a missing id means anonymous.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dglav/reddit-clone-server/internal/domain"
	"github.com/dglav/reddit-clone-server/internal/repository"
	"github.com/dglav/reddit-clone-server/pkg/config"
	"github.com/dglav/reddit-clone-server/pkg/crypto"
	jwtpkg "github.com/dglav/reddit-clone-server/pkg/jwt"
)

// ErrInvalidCredentials covers both unknown accounts and bad passwords.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Service handles authentication workflows.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	cfg    config.APIConfig
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, logger: logger, cfg: cfg}
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresIn    time.Duration `json:"expiresIn"`
}

// FieldError is one structured validation or conflict entry, addressed to
// the input field it concerns.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Register validates input and creates an account. Validation problems and
// the duplicate-account conflict come back as field errors; only genuinely
// unexpected storage failures surface as the generic unknown entry.
func (s Service) Register(ctx context.Context, username, email, password string) (*domain.User, TokenPair, []FieldError) {
	if fieldErrs := validateRegister(username, email, password); len(fieldErrs) > 0 {
		return nil, TokenPair{}, fieldErrs
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		s.logger.Error("password hash failed", "error", err)
		return nil, TokenPair{}, unknownError()
	}

	user := &domain.User{Username: username, Email: email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, TokenPair{}, []FieldError{{Field: "username", Message: "that username already exists"}}
		}
		s.logger.Error("user create failed", "username", username, "error", err)
		return nil, TokenPair{}, unknownError()
	}

	tokens, err := s.issueTokens(user.ID)
	if err != nil {
		s.logger.Error("token issue failed", "user_id", user.ID, "error", err)
		return nil, TokenPair{}, unknownError()
	}
	s.logger.Info("user registered", "user_id", user.ID, "username", username)
	return user, tokens, nil
}

// Login authenticates by username or email and returns tokens. Unknown
// account and wrong password are indistinguishable to the caller.
func (s Service) Login(ctx context.Context, usernameOrEmail, password string) (*domain.User, TokenPair, error) {
	user, err := s.users.GetUserByLogin(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	tokens, err := s.issueTokens(user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, tokens, nil
}

// Authorize validates a bearer token and returns the account behind it.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, error) {
	claims, err := jwtpkg.Parse(token, s.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s Service) issueTokens(userID int64) (TokenPair, error) {
	access, err := jwtpkg.GenerateToken(userID, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := jwtpkg.GenerateToken(userID, s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.cfg.AccessTokenTTL}, nil
}

func unknownError() []FieldError {
	return []FieldError{{Field: "unknown", Message: "an unknown error has occurred"}}
}
