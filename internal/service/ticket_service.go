package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/ticket-desk/internal/cache"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/persistence"
	"github.com/spec-kit/ticket-desk/internal/repository"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

// ErrReporterUnresolved means a stored ticket names a reporter that is no
// longer in the directory. Reads treat this as a broken invariant.
var ErrReporterUnresolved = errors.New("ticket reporter could not be resolved")

const defaultJoinConcurrency = 8

// TicketService is the ticket registry.
type TicketService struct {
	tickets         repository.TicketRepository
	users           repository.UserRepository
	usernames       cache.UsernameCache
	dispatcher      events.Dispatcher
	logger          *zap.Logger
	joinConcurrency int
}

// TicketDependencies bundles collaborators for the ticket registry.
type TicketDependencies struct {
	TicketRepo      repository.TicketRepository
	UserRepo        repository.UserRepository
	UsernameCache   cache.UsernameCache
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
	JoinConcurrency int
}

// TicketCreateInput describes ticket creation payload. Status and Type fall
// back to domain defaults when blank.
type TicketCreateInput struct {
	ReporterID string
	AssigneeID *string
	Title      string
	Body       string
	Status     string
	Type       string
	Category   string
}

// TicketUpdateInput replaces every mutable ticket field at once.
type TicketUpdateInput struct {
	ID         string
	ReporterID string
	AssigneeID string
	Title      string
	Body       string
	Status     string
	Type       string
	Category   string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	usernames := deps.UsernameCache
	if usernames == nil {
		usernames = cache.NopUsernameCache{}
	}
	concurrency := deps.JoinConcurrency
	if concurrency <= 0 {
		concurrency = defaultJoinConcurrency
	}
	return &TicketService{
		tickets:         deps.TicketRepo,
		users:           deps.UserRepo,
		usernames:       usernames,
		dispatcher:      deps.Dispatcher,
		logger:          loggerOrNop(deps.Logger),
		joinConcurrency: concurrency,
	}
}

// ListTickets returns every ticket joined with reporter and assignee
// usernames. Lookups run concurrently; output keeps store order.
func (s *TicketService) ListTickets(ctx context.Context) ([]domain.TicketView, error) {
	tickets, err := s.tickets.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(tickets) == 0 {
		return nil, apperrors.NewNotFound("No tickets found", nil)
	}

	views := make([]domain.TicketView, len(tickets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.joinConcurrency)
	for i := range tickets {
		i := i
		g.Go(func() error {
			view, err := s.view(gctx, tickets[i])
			if err != nil {
				return err
			}
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.MapError(err)
	}
	return views, nil
}

// GetTicket returns one ticket with the same join rules as ListTickets.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.TicketView, error) {
	if id == "" {
		return nil, apperrors.NewValidationError("Ticket ID Required", nil)
	}
	ticket, err := s.getTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	view, err := s.view(ctx, *ticket)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &view, nil
}

// CreateTicket stores a ticket; the store assigns its number.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, string, error) {
	ticket := &domain.Ticket{
		ReporterID: strings.TrimSpace(input.ReporterID),
		AssigneeID: normalizeOptionalID(input.AssigneeID),
		Title:      strings.TrimSpace(input.Title),
		Body:       strings.TrimSpace(input.Body),
		Status:     strings.TrimSpace(input.Status),
		Type:       strings.TrimSpace(input.Type),
		Category:   strings.TrimSpace(input.Category),
	}
	if ticket.ReporterID == "" || ticket.Title == "" || ticket.Body == "" || ticket.Category == "" {
		return nil, "", apperrors.NewValidationError("Please provide all required fields", nil)
	}
	if ticket.Status == "" {
		ticket.Status = domain.DefaultTicketStatus
	}
	if ticket.Type == "" {
		ticket.Type = domain.DefaultTicketType
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		if persistence.IsConstraintRejection(err) {
			return nil, "", apperrors.NewValidationError("Invalid ticket data received", nil)
		}
		return nil, "", apperrors.MapError(err)
	}

	publishEvent(ctx, s.dispatcher, s.logger, ticketEvent(events.EventTicketCreated, ticket))
	return ticket, fmt.Sprintf("Ticket #%d created", ticket.TicketNumber), nil
}

// UpdateTicket overwrites reporter, assignee, title, body, status, type and
// category. A request missing any of them changes nothing.
func (s *TicketService) UpdateTicket(ctx context.Context, input TicketUpdateInput) (string, error) {
	fields := []string{input.ID, input.ReporterID, input.Title, input.Body, input.Status, input.Type, input.Category, input.AssigneeID}
	for _, field := range fields {
		if strings.TrimSpace(field) == "" {
			return "", apperrors.NewValidationError("Please provide all required fields", nil)
		}
	}

	ticket, err := s.getTicket(ctx, input.ID)
	if err != nil {
		return "", err
	}

	assignee := strings.TrimSpace(input.AssigneeID)
	ticket.ReporterID = strings.TrimSpace(input.ReporterID)
	ticket.AssigneeID = &assignee
	ticket.Title = strings.TrimSpace(input.Title)
	ticket.Body = strings.TrimSpace(input.Body)
	ticket.Status = strings.TrimSpace(input.Status)
	ticket.Type = strings.TrimSpace(input.Type)
	ticket.Category = strings.TrimSpace(input.Category)

	if err := s.tickets.Update(ctx, ticket); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return "", ticketNotFound(input.ID)
		case persistence.IsConstraintRejection(err):
			return "", apperrors.NewValidationError("Invalid ticket data received", nil)
		}
		return "", apperrors.MapError(err)
	}

	publishEvent(ctx, s.dispatcher, s.logger, ticketEvent(events.EventTicketUpdated, ticket))
	return fmt.Sprintf("Ticket #%d updated", ticket.TicketNumber), nil
}

// DeleteTicket removes a ticket regardless of its status.
func (s *TicketService) DeleteTicket(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", apperrors.NewValidationError("Ticket ID Required", nil)
	}

	ticket, err := s.getTicket(ctx, id)
	if err != nil {
		return "", err
	}
	if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ticketNotFound(id)
		}
		return "", apperrors.MapError(err)
	}

	publishEvent(ctx, s.dispatcher, s.logger, ticketEvent(events.EventTicketDeleted, ticket))
	return fmt.Sprintf("Ticket #%d deleted", ticket.TicketNumber), nil
}

func (s *TicketService) getTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ticketNotFound(id)
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// view joins usernames onto a ticket. A missing reporter is an error; a
// missing assignee leaves AssigneeUsername nil. Assignees are read from the
// store directly since they may be deleted while still referenced.
func (s *TicketService) view(ctx context.Context, ticket domain.Ticket) (domain.TicketView, error) {
	view := domain.TicketView{Ticket: ticket}

	reporter, ok, err := s.resolveUsername(ctx, ticket.ReporterID)
	if err != nil {
		return view, err
	}
	if !ok {
		return view, fmt.Errorf("%w: ticket #%d reporter %s", ErrReporterUnresolved, ticket.TicketNumber, ticket.ReporterID)
	}
	view.ReporterUsername = reporter

	if ticket.AssigneeID != nil {
		user, err := s.lookupUser(ctx, *ticket.AssigneeID)
		if err != nil {
			return view, err
		}
		if user != nil {
			view.AssigneeUsername = &user.Username
		}
	}
	return view, nil
}

// resolveUsername reads through the username cache.
func (s *TicketService) resolveUsername(ctx context.Context, userID string) (string, bool, error) {
	if name, ok, err := s.usernames.Get(ctx, userID); err != nil {
		s.logger.Warn("username cache read failed", zap.String("user_id", userID), zap.Error(err))
	} else if ok {
		return name, true, nil
	}

	user, err := s.lookupUser(ctx, userID)
	if err != nil || user == nil {
		return "", false, err
	}

	if err := s.usernames.Set(ctx, user.ID, user.Username); err != nil {
		s.logger.Warn("username cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return user.Username, true, nil
}

// lookupUser returns nil when the user does not exist.
func (s *TicketService) lookupUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func normalizeOptionalID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func ticketNotFound(id string) error {
	return apperrors.NewNotFound("Ticket not found", map[string]any{"id": id})
}

func ticketEvent(eventType events.EventType, ticket *domain.Ticket) events.Event {
	return events.Event{
		Type:      eventType,
		SubjectID: ticket.ID,
		Payload: events.TicketPayload{
			TicketNumber: ticket.TicketNumber,
			ReporterID:   ticket.ReporterID,
			AssigneeID:   ticket.AssigneeID,
			Title:        ticket.Title,
			Status:       ticket.Status,
			Category:     ticket.Category,
		},
	}
}
