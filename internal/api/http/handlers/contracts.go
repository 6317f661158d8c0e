package handlers

import (
	"context"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/service"
)

// UserDirectory is the subset of service.UserService the handlers call.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	CreateUser(ctx context.Context, input service.UserCreateInput) (string, error)
	UpdateUser(ctx context.Context, input service.UserUpdateInput) (string, error)
	DeleteUser(ctx context.Context, id string) (string, error)
}

// TicketRegistry is the subset of service.TicketService the handlers call.
type TicketRegistry interface {
	ListTickets(ctx context.Context) ([]domain.TicketView, error)
	GetTicket(ctx context.Context, id string) (*domain.TicketView, error)
	CreateTicket(ctx context.Context, input service.TicketCreateInput) (*domain.Ticket, string, error)
	UpdateTicket(ctx context.Context, input service.TicketUpdateInput) (string, error)
	DeleteTicket(ctx context.Context, id string) (string, error)
}

// Authenticator exchanges credentials for a token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*domain.User, *domain.Token, error)
}

var (
	_ UserDirectory  = (*service.UserService)(nil)
	_ TicketRegistry = (*service.TicketService)(nil)
	_ Authenticator  = (*service.AuthService)(nil)
)
