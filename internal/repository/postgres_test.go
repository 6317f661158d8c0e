package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/persistence"
	"github.com/spec-kit/ticket-desk/internal/repository"
	"github.com/spec-kit/ticket-desk/internal/service"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

// newTestPool migrates a throwaway schema in TICKETDESK_TEST_DATABASE_URL
// and returns a pool bound to it. Tests skip when the variable is unset.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TICKETDESK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TICKETDESK_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(admin.Close)

	schema := "ticketdesk_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect schema: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := persistence.RunMigrations(ctx, pool, "../../migrations", zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func createUser(t *testing.T, users repository.UserRepository, username string) *domain.User {
	t.Helper()
	user := &domain.User{Username: username, PasswordHash: "hash", Roles: []string{"clerk"}, Active: true}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("create %s: %v", username, err)
	}
	return user
}

func newTicket(reporterID string) *domain.Ticket {
	return &domain.Ticket{
		ReporterID: reporterID,
		Title:      "Printer jam",
		Body:       "Floor 3",
		Status:     domain.DefaultTicketStatus,
		Type:       domain.DefaultTicketType,
		Category:   "Hardware",
	}
}

func TestTicketNumbersFromSequence(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	users := repository.NewUserRepository(pool)
	tickets := repository.NewTicketRepository(pool)
	alice := createUser(t, users, "alice")

	first := newTicket(alice.ID)
	if err := tickets.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.TicketNumber != 0 {
		t.Fatalf("expected first ticket number 0, got %d", first.TicketNumber)
	}
	if err := tickets.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	second := newTicket(alice.ID)
	if err := tickets.Create(ctx, second); err != nil {
		t.Fatalf("create: %v", err)
	}
	if second.TicketNumber != 1 {
		t.Fatalf("expected number 1 after a delete, got %d", second.TicketNumber)
	}

	list, err := tickets.List(ctx)
	if err != nil || len(list) != 1 || list[0].ID != second.ID {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}
}

func TestStoreRejections(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	users := repository.NewUserRepository(pool)
	tickets := repository.NewTicketRepository(pool)
	alice := createUser(t, users, "alice")

	dup := &domain.User{Username: "alice", PasswordHash: "h", Roles: []string{"clerk"}, Active: true}
	if err := users.Create(ctx, dup); !persistence.IsUniqueViolation(err) {
		t.Errorf("duplicate username: expected unique violation, got %v", err)
	}

	noRoles := &domain.User{Username: "empty", PasswordHash: "h", Roles: []string{}, Active: true}
	if err := users.Create(ctx, noRoles); !persistence.IsConstraintRejection(err) {
		t.Errorf("empty roles: expected check violation, got %v", err)
	}

	if err := tickets.Create(ctx, newTicket("not-a-uuid")); !persistence.IsConstraintRejection(err) {
		t.Errorf("malformed reporter: expected rejection, got %v", err)
	}
	if err := tickets.Create(ctx, newTicket(uuid.NewString())); !persistence.IsConstraintRejection(err) {
		t.Errorf("unknown reporter: expected foreign key rejection, got %v", err)
	}

	ticket := newTicket(alice.ID)
	if err := tickets.Create(ctx, ticket); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := users.Delete(ctx, alice.ID); !persistence.IsConstraintRejection(err) {
		t.Errorf("deleting a reporter: expected foreign key rejection, got %v", err)
	}
}

func TestMissingRowsAndMalformedIDs(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	users := repository.NewUserRepository(pool)
	tickets := repository.NewTicketRepository(pool)

	for _, id := range []string{"0", uuid.NewString()} {
		if _, err := tickets.GetByID(ctx, id); !errors.Is(err, pgx.ErrNoRows) {
			t.Errorf("GetByID(%q): expected ErrNoRows, got %v", id, err)
		}
		if err := tickets.Delete(ctx, id); !errors.Is(err, pgx.ErrNoRows) {
			t.Errorf("Delete(%q): expected ErrNoRows, got %v", id, err)
		}
		if _, err := users.GetByID(ctx, id); !errors.Is(err, pgx.ErrNoRows) {
			t.Errorf("users.GetByID(%q): expected ErrNoRows, got %v", id, err)
		}
	}
}

func TestExistsByReporter(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	users := repository.NewUserRepository(pool)
	tickets := repository.NewTicketRepository(pool)
	alice := createUser(t, users, "alice")
	bob := createUser(t, users, "bob")

	ticket := newTicket(alice.ID)
	ticket.AssigneeID = &bob.ID
	if err := tickets.Create(ctx, ticket); err != nil {
		t.Fatalf("create: %v", err)
	}

	cases := map[string]bool{alice.ID: true, bob.ID: false, "garbage": false}
	for id, want := range cases {
		got, err := tickets.ExistsByReporter(ctx, id)
		if err != nil {
			t.Fatalf("ExistsByReporter(%q): %v", id, err)
		}
		if got != want {
			t.Errorf("ExistsByReporter(%q) = %v, want %v", id, got, want)
		}
	}

	if err := users.Delete(ctx, bob.ID); err != nil {
		t.Fatalf("assignee delete should succeed: %v", err)
	}
	stored, err := tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.AssigneeID == nil || *stored.AssigneeID != bob.ID {
		t.Fatalf("dangling assignee reference not kept: %+v", stored.AssigneeID)
	}
}

func TestTicketServiceAgainstPostgres(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	users := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	tickets := service.NewTicketService(service.TicketDependencies{TicketRepo: ticketRepo, UserRepo: users})
	alice := createUser(t, users, "alice")

	for _, reporter := range []string{"alice", uuid.NewString()} {
		_, _, err := tickets.CreateTicket(ctx, service.TicketCreateInput{
			ReporterID: reporter, Title: "t", Body: "b", Category: "c",
		})
		if apperrors.KindOf(err) != apperrors.CodeValidation {
			t.Errorf("reporter %q: expected validation error, got %v", reporter, err)
		}
	}

	created, msg, err := tickets.CreateTicket(ctx, service.TicketCreateInput{
		ReporterID: alice.ID, Title: "Printer jam", Body: "Floor 3", Category: "Hardware",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if msg != fmt.Sprintf("Ticket #%d created", created.TicketNumber) {
		t.Errorf("unexpected message %q", msg)
	}

	views, err := tickets.ListTickets(ctx)
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(views) != 1 || views[0].ReporterUsername != "alice" {
		t.Fatalf("unexpected views %+v", views)
	}
}
