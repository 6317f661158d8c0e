package service_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/repository"
)

// fakeStore mimics the Postgres schema: unique usernames, a reporter
// foreign key, uuid ids and a ticket number sequence starting at 0.
type fakeStore struct {
	mu      sync.Mutex
	users   map[string]domain.User
	tickets map[string]domain.Ticket
	nextSeq int64

	createUserErr error
	listTickets   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string]domain.User),
		tickets: make(map[string]domain.Ticket),
	}
}

func pgError(code string) error {
	return &pgconn.PgError{Code: code}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// putTicket stores a ticket without any reference checks.
func (s *fakeStore) putTicket(t domain.Ticket) domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = uuid.NewString()
	t.TicketNumber = s.nextSeq
	s.nextSeq++
	s.tickets[t.ID] = t
	return t
}

func (s *fakeStore) ticket(id string) (domain.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	return t, ok
}

func (s *fakeStore) user(id string) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *fakeStore) removeUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

type fakeUserRepo struct{ s *fakeStore }

var _ repository.UserRepository = fakeUserRepo{}

func (r fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.createUserErr != nil {
		return r.s.createUserErr
	}
	if len(user.Roles) == 0 {
		return pgError("23514")
	}
	for _, u := range r.s.users {
		if u.Username == user.Username {
			return pgError("23505")
		}
	}
	now := time.Now()
	user.ID = uuid.NewString()
	user.CreatedAt, user.UpdatedAt = now, now
	stored := *user
	stored.Roles = append([]string(nil), user.Roles...)
	r.s.users[user.ID] = stored
	return nil
}

func (r fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	for _, u := range r.s.users {
		if u.Username == user.Username && u.ID != user.ID {
			return pgError("23505")
		}
	}
	user.UpdatedAt = time.Now()
	r.s.users[user.ID] = *user
	return nil
}

func (r fakeUserRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return pgx.ErrNoRows
	}
	for _, t := range r.s.tickets {
		if t.ReporterID == id {
			return pgError("23503")
		}
	}
	delete(r.s.users, id)
	return nil
}

func (r fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (r fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r fakeUserRepo) List(_ context.Context) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r fakeUserRepo) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.users)), nil
}

type fakeTicketRepo struct{ s *fakeStore }

var _ repository.TicketRepository = fakeTicketRepo{}

func (r fakeTicketRepo) checkRefs(t *domain.Ticket) error {
	if !validID(t.ReporterID) || (t.AssigneeID != nil && !validID(*t.AssigneeID)) {
		return pgError("22P02")
	}
	if _, ok := r.s.users[t.ReporterID]; !ok {
		return pgError("23503")
	}
	return nil
}

func (r fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.checkRefs(ticket); err != nil {
		return err
	}
	now := time.Now()
	ticket.ID = uuid.NewString()
	ticket.TicketNumber = r.s.nextSeq
	r.s.nextSeq++
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	r.s.tickets[ticket.ID] = *ticket
	return nil
}

func (r fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	if err := r.checkRefs(ticket); err != nil {
		return err
	}
	ticket.UpdatedAt = time.Now()
	r.s.tickets[ticket.ID] = *ticket
	return nil
}

func (r fakeTicketRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.s.tickets, id)
	return nil
}

func (r fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (r fakeTicketRepo) List(_ context.Context) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.listTickets != nil {
		return nil, r.s.listTickets
	}
	out := make([]domain.Ticket, 0, len(r.s.tickets))
	for _, t := range r.s.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketNumber < out[j].TicketNumber })
	return out, nil
}

func (r fakeTicketRepo) ExistsByReporter(_ context.Context, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tickets {
		if t.ReporterID == userID {
			return true, nil
		}
	}
	return false, nil
}

// fakeHasher prefixes instead of hashing and counts calls.
type fakeHasher struct {
	mu    sync.Mutex
	calls int
}

func (h *fakeHasher) Hash(password string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return "hashed:" + password, nil
}

func (h *fakeHasher) Compare(hashed, plain string) error {
	if hashed != "hashed:"+plain {
		return pgx.ErrNoRows
	}
	return nil
}

func (h *fakeHasher) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// fakeUsernameCache follows the Redis cache contract: Invalidate blocks
// later Sets for the same id.
type fakeUsernameCache struct {
	mu          sync.Mutex
	entries     map[string]string
	invalidated map[string]bool
	hits        int

	// invalidateFailures makes the next n Invalidate calls fail.
	invalidateFailures int
	invalidateCalls    int
}

func newFakeUsernameCache() *fakeUsernameCache {
	return &fakeUsernameCache{entries: make(map[string]string), invalidated: make(map[string]bool)}
}

func (c *fakeUsernameCache) Get(_ context.Context, id string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.entries[id]
	if ok {
		c.hits++
	}
	return name, ok, nil
}

func (c *fakeUsernameCache) Set(_ context.Context, id, username string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invalidated[id] {
		return nil
	}
	c.entries[id] = username
	return nil
}

func (c *fakeUsernameCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateCalls++
	if c.invalidateFailures > 0 {
		c.invalidateFailures--
		return errors.New("redis: connection reset")
	}
	delete(c.entries, id)
	c.invalidated[id] = true
	return nil
}

func (c *fakeUsernameCache) has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// seed stores an entry regardless of invalidation markers.
func (c *fakeUsernameCache) seed(id, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = username
}

func (c *fakeUsernameCache) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidateCalls
}

// pausingUserRepo holds the first GetByID for one id after the row has been
// read, until release is closed.
type pausingUserRepo struct {
	repository.UserRepository
	id      string
	once    *sync.Once
	reached chan struct{}
	release chan struct{}
}

func newPausingUserRepo(inner repository.UserRepository, id string) pausingUserRepo {
	return pausingUserRepo{
		UserRepository: inner,
		id:             id,
		once:           &sync.Once{},
		reached:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (r pausingUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := r.UserRepository.GetByID(ctx, id)
	if id == r.id {
		r.once.Do(func() {
			close(r.reached)
			<-r.release
		})
	}
	return user, err
}

// recordingDispatcher keeps every published event type.
type recordingDispatcher struct {
	mu    sync.Mutex
	types []events.EventType
}

func (d *recordingDispatcher) Publish(_ context.Context, e events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.types = append(d.types, e.Type)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) joined() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	parts := make([]string, len(d.types))
	for i, t := range d.types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}
