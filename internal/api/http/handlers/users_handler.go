package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-desk/internal/api/dto"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/service"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

// UsersHandler exposes user directory endpoints.
type UsersHandler struct {
	users UserDirectory
}

// NewUsersHandler constructs handler.
func NewUsersHandler(users UserDirectory) *UsersHandler {
	return &UsersHandler{users: users}
}

// ListUsers GET /users.
func (h *UsersHandler) ListUsers(c *fiber.Ctx) error {
	users, err := h.users.ListUsers(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, userResponse(&users[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateUser POST /users.
func (h *UsersHandler) CreateUser(c *fiber.Ctx) error {
	var req dto.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.users.CreateUser(c.UserContext(), service.UserCreateInput{
		Username: req.Username,
		Password: req.Password,
		Roles:    req.Roles,
		Active:   req.Active,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.MessageResponse{Message: msg})
}

// UpdateUser PATCH /users.
func (h *UsersHandler) UpdateUser(c *fiber.Ctx) error {
	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.users.UpdateUser(c.UserContext(), service.UserUpdateInput{
		ID:       req.ID,
		Username: req.Username,
		Roles:    req.Roles,
		Active:   req.Active,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: msg})
}

// DeleteUser DELETE /users.
func (h *UsersHandler) DeleteUser(c *fiber.Ctx) error {
	var req dto.DeleteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.users.DeleteUser(c.UserContext(), req.ID)
	if err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: msg})
}

func userResponse(user *domain.User) dto.UserResponse {
	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}
	return dto.UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Roles:     roles,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
