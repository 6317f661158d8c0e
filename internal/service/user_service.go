package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/auth"
	"github.com/spec-kit/ticket-desk/internal/cache"
	"github.com/spec-kit/ticket-desk/internal/config"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/persistence"
	"github.com/spec-kit/ticket-desk/internal/repository"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

const (
	invalidateAttempts = 3
	invalidateBackoff  = 20 * time.Millisecond
)

// UserService is the user directory: it owns user records and refuses to
// drop users that still report tickets.
type UserService struct {
	users      repository.UserRepository
	tickets    repository.TicketRepository
	hasher     auth.Hasher
	usernames  cache.UsernameCache
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// UserDependencies bundles collaborators for the user directory.
type UserDependencies struct {
	UserRepo      repository.UserRepository
	TicketRepo    repository.TicketRepository
	Hasher        auth.Hasher
	UsernameCache cache.UsernameCache
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
}

// UserCreateInput describes a new directory entry. Active defaults to true.
type UserCreateInput struct {
	Username string
	Password string
	Roles    []string
	Active   *bool
}

// UserUpdateInput replaces username, roles and active flag. Password is
// re-hashed only when non-empty.
type UserUpdateInput struct {
	ID       string
	Username string
	Roles    []string
	Active   *bool
	Password string
}

// NewUserService constructs the service.
func NewUserService(deps UserDependencies) *UserService {
	usernames := deps.UsernameCache
	if usernames == nil {
		usernames = cache.NopUsernameCache{}
	}
	return &UserService{
		users:      deps.UserRepo,
		tickets:    deps.TicketRepo,
		hasher:     deps.Hasher,
		usernames:  usernames,
		dispatcher: deps.Dispatcher,
		logger:     loggerOrNop(deps.Logger),
	}
}

// ListUsers returns every user with the password hash cleared.
func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(users) == 0 {
		return nil, apperrors.NewNotFound("No users found", nil)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// CreateUser hashes the password and stores a new user.
func (s *UserService) CreateUser(ctx context.Context, input UserCreateInput) (string, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" || !validRoles(input.Roles) {
		return "", apperrors.NewValidationError("Please provide all required fields", nil)
	}

	duplicate, err := s.findByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if duplicate != nil {
		return "", userExists(username)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return "", apperrors.NewInternalError(fmt.Errorf("hash password: %w", err))
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: hash,
		Roles:        input.Roles,
		Active:       true,
	}
	if input.Active != nil {
		user.Active = *input.Active
	}
	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case persistence.IsUniqueViolation(err):
			return "", userExists(username)
		case persistence.IsConstraintRejection(err):
			return "", apperrors.NewValidationError("Invalid user data received", nil)
		}
		return "", apperrors.MapError(err)
	}

	publishEvent(ctx, s.dispatcher, s.logger, userEvent(events.EventUserCreated, user))
	return fmt.Sprintf("User %s created", user.Username), nil
}

// UpdateUser overwrites username, roles and active flag. Renaming to the
// user's own current username is allowed.
func (s *UserService) UpdateUser(ctx context.Context, input UserUpdateInput) (string, error) {
	username := strings.TrimSpace(input.Username)
	if input.ID == "" || username == "" || !validRoles(input.Roles) || input.Active == nil {
		return "", apperrors.NewValidationError("Please provide all required fields", nil)
	}

	user, err := s.users.GetByID(ctx, input.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", userNotFound(input.ID)
		}
		return "", apperrors.MapError(err)
	}

	duplicate, err := s.findByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if duplicate != nil && duplicate.ID != user.ID {
		return "", userExists(username)
	}

	user.Username = username
	user.Roles = input.Roles
	user.Active = *input.Active
	if input.Password != "" {
		hash, err := s.hasher.Hash(input.Password)
		if err != nil {
			return "", apperrors.NewInternalError(fmt.Errorf("hash password: %w", err))
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return "", userNotFound(input.ID)
		case persistence.IsUniqueViolation(err):
			return "", userExists(username)
		case persistence.IsConstraintRejection(err):
			return "", apperrors.NewValidationError("Invalid user data received", nil)
		}
		return "", apperrors.MapError(err)
	}
	s.invalidateUsername(ctx, user.ID)

	publishEvent(ctx, s.dispatcher, s.logger, userEvent(events.EventUserUpdated, user))
	return fmt.Sprintf("%s updated", user.Username), nil
}

// DeleteUser removes a user unless a ticket names them as reporter. Tickets
// that merely have the user as assignee do not block deletion.
func (s *UserService) DeleteUser(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", apperrors.NewValidationError("User ID Required", nil)
	}

	reporting, err := s.tickets.ExistsByReporter(ctx, id)
	if err != nil {
		return "", apperrors.MapError(err)
	}
	if reporting {
		return "", hasTickets(id)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", userNotFound(id)
		}
		return "", apperrors.MapError(err)
	}

	if err := s.users.Delete(ctx, user.ID); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return "", userNotFound(id)
		case persistence.IsConstraintRejection(err):
			// a ticket was filed for the user after the guard ran
			return "", hasTickets(id)
		}
		return "", apperrors.MapError(err)
	}
	s.invalidateUsername(ctx, user.ID)

	publishEvent(ctx, s.dispatcher, s.logger, userEvent(events.EventUserDeleted, user))
	return fmt.Sprintf("Username %s with ID %s deleted", user.Username, user.ID), nil
}

// BootstrapAdmin creates the configured administrator when the directory is
// empty. It reports whether a user was created.
func (s *UserService) BootstrapAdmin(ctx context.Context, cfg config.BootstrapConfig) (bool, error) {
	if !cfg.Enabled() {
		return false, nil
	}
	count, err := s.users.Count(ctx)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	if count > 0 {
		return false, nil
	}
	if _, err := s.CreateUser(ctx, UserCreateInput{
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
		Roles:    cfg.AdminRoles,
	}); err != nil {
		return false, err
	}
	s.logger.Info("bootstrapped admin user", zap.String("username", cfg.AdminUsername))
	return true, nil
}

func (s *UserService) findByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// invalidateUsername runs after the store write has committed, so it is
// retried before giving up.
func (s *UserService) invalidateUsername(ctx context.Context, id string) {
	var err error
	for attempt := 1; attempt <= invalidateAttempts; attempt++ {
		if err = s.usernames.Invalidate(ctx, id); err == nil {
			return
		}
		s.logger.Warn("username cache invalidation failed",
			zap.String("user_id", id), zap.Int("attempt", attempt), zap.Error(err))
		if attempt == invalidateAttempts {
			break
		}
		select {
		case <-ctx.Done():
			s.logger.Error("username cache left stale", zap.String("user_id", id), zap.Error(ctx.Err()))
			return
		case <-time.After(time.Duration(attempt) * invalidateBackoff):
		}
	}
	s.logger.Error("username cache left stale", zap.String("user_id", id), zap.Error(err))
}

func validRoles(roles []string) bool {
	if len(roles) == 0 {
		return false
	}
	for _, role := range roles {
		if strings.TrimSpace(role) == "" {
			return false
		}
	}
	return true
}

func userExists(username string) error {
	return apperrors.NewConflict("User already exists", map[string]any{"username": username})
}

func userNotFound(id string) error {
	return apperrors.NewNotFound("User not found", map[string]any{"id": id})
}

func hasTickets(id string) error {
	return apperrors.NewConflict("User has assigned tickets", map[string]any{"id": id})
}

func userEvent(eventType events.EventType, user *domain.User) events.Event {
	return events.Event{
		Type:      eventType,
		SubjectID: user.ID,
		Payload: events.UserPayload{
			Username: user.Username,
			Roles:    user.Roles,
			Active:   user.Active,
		},
	}
}
