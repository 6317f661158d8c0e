package service_test

import (
	"context"
	"testing"

	"github.com/spec-kit/ticket-desk/internal/auth"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/service"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

type fixture struct {
	store   *fakeStore
	hasher  *fakeHasher
	cache   *fakeUsernameCache
	events  *recordingDispatcher
	users   *service.UserService
	tickets *service.TicketService
	auth    *service.AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newFakeStore()
	f := &fixture{
		store:  store,
		hasher: &fakeHasher{},
		cache:  newFakeUsernameCache(),
		events: &recordingDispatcher{},
	}
	f.users = service.NewUserService(service.UserDependencies{
		UserRepo:      fakeUserRepo{store},
		TicketRepo:    fakeTicketRepo{store},
		Hasher:        f.hasher,
		UsernameCache: f.cache,
		Dispatcher:    f.events,
	})
	f.tickets = service.NewTicketService(service.TicketDependencies{
		TicketRepo:      fakeTicketRepo{store},
		UserRepo:        fakeUserRepo{store},
		UsernameCache:   f.cache,
		Dispatcher:      f.events,
		JoinConcurrency: 4,
	})
	f.auth = service.NewAuthService(fakeUserRepo{store}, f.hasher, auth.NewTokenManager("test-secret", 5))
	return f
}

func (f *fixture) mustCreateUser(t *testing.T, username string, roles ...string) domain.User {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{"clerk"}
	}
	if _, err := f.users.CreateUser(context.Background(), service.UserCreateInput{
		Username: username,
		Password: "pw-" + username,
		Roles:    roles,
	}); err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	user, err := fakeUserRepo{f.store}.GetByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("GetByUsername(%s): %v", username, err)
	}
	return *user
}

func (f *fixture) mustCreateTicket(t *testing.T, reporterID string, assigneeID *string) *domain.Ticket {
	t.Helper()
	ticket, _, err := f.tickets.CreateTicket(context.Background(), service.TicketCreateInput{
		ReporterID: reporterID,
		AssigneeID: assigneeID,
		Title:      "Printer jam",
		Body:       "Floor 3",
		Category:   "Hardware",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	return ticket
}

func expectKind(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if got := apperrors.KindOf(err); got != code {
		t.Fatalf("expected %s error, got %s (%v)", code, got, err)
	}
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }
