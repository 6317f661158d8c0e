package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-desk/internal/auth"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/repository"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

// AuthService exchanges directory credentials for access tokens.
type AuthService struct {
	users    repository.UserRepository
	hasher   auth.Hasher
	tokenMgr *auth.TokenManager
}

// NewAuthService builds the service.
func NewAuthService(users repository.UserRepository, hasher auth.Hasher, tokens *auth.TokenManager) *AuthService {
	return &AuthService{users: users, hasher: hasher, tokenMgr: tokens}
}

// Login authenticates an active user and issues a token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.User, *domain.Token, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, nil, apperrors.NewValidationError("username and password required", nil)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, nil, apperrors.MapError(err)
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if !user.Active {
		return nil, nil, apperrors.NewUnauthorized("user inactive")
	}

	token, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, nil, apperrors.NewInternalError(err)
	}
	return user, token, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
