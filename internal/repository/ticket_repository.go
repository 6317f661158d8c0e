package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
//
// Create allocates TicketNumber from the ticket_number_seq sequence; callers
// never supply it.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context) ([]domain.Ticket, error)
	ExistsByReporter(ctx context.Context, userID string) (bool, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, reporter_id, assignee_id, title, body, status, type, category, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (reporter_id, assignee_id, title, body, status, type, category)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, ticket_number, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.ReporterID,
		ticket.AssigneeID,
		ticket.Title,
		ticket.Body,
		ticket.Status,
		ticket.Type,
		ticket.Category,
	).Scan(&ticket.ID, &ticket.TicketNumber, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	if err := checkID(ticket.ID); err != nil {
		return err
	}
	const query = `
        UPDATE tickets SET reporter_id=$1, assignee_id=$2, title=$3, body=$4,
            status=$5, type=$6, category=$7, updated_at=NOW()
        WHERE id=$8
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.ReporterID,
		ticket.AssigneeID,
		ticket.Title,
		ticket.Body,
		ticket.Status,
		ticket.Type,
		ticket.Category,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	ticket, err := scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) List(ctx context.Context) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY ticket_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) ExistsByReporter(ctx context.Context, userID string) (bool, error) {
	if checkID(userID) != nil {
		return false, nil
	}
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE reporter_id=$1)`, userID).Scan(&exists)
	return exists, err
}

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var ticket domain.Ticket
	err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.ReporterID,
		&ticket.AssigneeID,
		&ticket.Title,
		&ticket.Body,
		&ticket.Status,
		&ticket.Type,
		&ticket.Category,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	return ticket, err
}
