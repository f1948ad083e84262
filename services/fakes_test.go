package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/bracketry/tournament-platform/models"
	"github.com/bracketry/tournament-platform/repositories"
)

// fakeClock отдаёт фиксированное время, управляемое тестом.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// spyNotifier записывает события, разосланные после коммита.
type spyNotifier struct {
	mu       sync.Mutex
	statuses []models.TournamentStatus
	counts   []int
}

func (n *spyNotifier) TournamentStatusChanged(tournamentID int, status models.TournamentStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, status)
}

func (n *spyNotifier) ParticipantCountChanged(tournamentID int, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.counts = append(n.counts, count)
}

func (n *spyNotifier) Statuses() []models.TournamentStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.TournamentStatus, len(n.statuses))
	copy(out, n.statuses)
	return out
}

func (n *spyNotifier) Counts() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]int, len(n.counts))
	copy(out, n.counts)
	return out
}

// fakeTxToken помечает вызовы, идущие изнутри WithinTx. Сами методы
// SQLExecutor фейком не используются.
type fakeTxToken struct{}

func (fakeTxToken) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	panic("fakeTxToken: ExecContext must not be called")
}

func (fakeTxToken) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	panic("fakeTxToken: QueryContext must not be called")
}

func (fakeTxToken) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	panic("fakeTxToken: QueryRowContext must not be called")
}

// fakeStore — in-memory замена Postgres для сервисных тестов. Мьютекс
// сериализует WithinTx целиком, эмулируя блокировку строки турнира; при
// ошибке внутри транзакции состояние откатывается к снимку.
type fakeStore struct {
	mu sync.Mutex

	tournaments   map[int]*models.Tournament
	registrations map[int]*models.Registration

	nextTournamentID   int
	nextRegistrationID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tournaments:        make(map[int]*models.Tournament),
		registrations:      make(map[int]*models.Registration),
		nextTournamentID:   1,
		nextRegistrationID: 1,
	}
}

// lock берёт мьютекс, если вызов пришёл не изнутри транзакции.
func (s *fakeStore) lock(exec repositories.SQLExecutor) func() {
	if exec != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *fakeStore) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapTournaments := make(map[int]*models.Tournament, len(s.tournaments))
	for id, t := range s.tournaments {
		cp := *t
		snapTournaments[id] = &cp
	}
	snapRegistrations := make(map[int]*models.Registration, len(s.registrations))
	for id, reg := range s.registrations {
		cp := *reg
		snapRegistrations[id] = &cp
	}
	snapTournamentID := s.nextTournamentID
	snapRegistrationID := s.nextRegistrationID

	if err := fn(fakeTxToken{}); err != nil {
		s.tournaments = snapTournaments
		s.registrations = snapRegistrations
		s.nextTournamentID = snapTournamentID
		s.nextRegistrationID = snapRegistrationID
		return err
	}
	return nil
}

func (s *fakeStore) addTournament(t models.Tournament) *models.Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.nextTournamentID
		s.nextTournamentID++
	} else if t.ID >= s.nextTournamentID {
		s.nextTournamentID = t.ID + 1
	}
	stored := t
	s.tournaments[stored.ID] = &stored
	return &stored
}

func (s *fakeStore) tournamentByID(id int) models.Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tournaments[id]
}

func (s *fakeStore) registrationCount(tournamentID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, reg := range s.registrations {
		if reg.TournamentID == tournamentID {
			count++
		}
	}
	return count
}

func (s *fakeStore) activeRegistrationCount(tournamentID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, reg := range s.registrations {
		if reg.TournamentID == tournamentID && reg.Status == models.RegistrationActive {
			count++
		}
	}
	return count
}

// fakeTournamentRepo реализует repositories.TournamentRepository поверх
// общего fakeStore.
type fakeTournamentRepo struct {
	store *fakeStore
}

func (r *fakeTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	defer r.store.lock(nil)()
	t.ID = r.store.nextTournamentID
	r.store.nextTournamentID++
	t.CreatedAt = time.Now()
	stored := *t
	r.store.tournaments[stored.ID] = &stored
	return nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	defer r.store.lock(nil)()
	return r.store.getTournament(id)
}

func (r *fakeTournamentRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	defer r.store.lock(exec)()
	return r.store.getTournament(id)
}

func (s *fakeStore) getTournament(id int) (*models.Tournament, error) {
	t, ok := s.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, int, error) {
	defer r.store.lock(nil)()
	var all []models.Tournament
	for _, t := range r.store.tournaments {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		all = append(all, *t)
	}
	total := len(all)
	if filter.Offset > len(all) {
		return []models.Tournament{}, total, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all, total, nil
}

func (r *fakeTournamentRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	defer r.store.lock(exec)()
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	return nil
}

func (r *fakeTournamentRepo) IncrementParticipants(ctx context.Context, exec repositories.SQLExecutor, id int, delta int) error {
	defer r.store.lock(exec)()
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	next := t.CurrentParticipants + delta
	if next < 0 {
		return repositories.ErrTournamentCountUnderflow
	}
	if delta > 0 && t.MaxParticipants != nil && next > *t.MaxParticipants {
		return repositories.ErrTournamentCapacityExceeded
	}
	t.CurrentParticipants = next
	return nil
}

func (r *fakeTournamentRepo) ListDueForStatusUpdate(ctx context.Context, currentTime time.Time) ([]*models.Tournament, error) {
	defer r.store.lock(nil)()
	var due []*models.Tournament
	for _, t := range r.store.tournaments {
		switch t.Status {
		case models.StatusUpcoming:
			if !currentTime.Before(t.StartDate) {
				cp := *t
				due = append(due, &cp)
			}
		case models.StatusOngoing:
			if !currentTime.Before(t.EndDate) {
				cp := *t
				due = append(due, &cp)
			}
		}
	}
	return due, nil
}

// fakeRegistrationRepo реализует repositories.RegistrationRepository поверх
// общего fakeStore.
type fakeRegistrationRepo struct {
	store *fakeStore
}

func (r *fakeRegistrationRepo) InsertActive(ctx context.Context, exec repositories.SQLExecutor, reg *models.Registration) error {
	defer r.store.lock(exec)()
	for _, existing := range r.store.registrations {
		if existing.TournamentID == reg.TournamentID &&
			existing.UserID == reg.UserID &&
			existing.Status == models.RegistrationActive {
			return repositories.ErrRegistrationDuplicateActive
		}
	}
	reg.ID = r.store.nextRegistrationID
	r.store.nextRegistrationID++
	reg.Status = models.RegistrationActive
	stored := *reg
	r.store.registrations[stored.ID] = &stored
	return nil
}

func (r *fakeRegistrationRepo) FindActive(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int) (*models.Registration, error) {
	defer r.store.lock(exec)()
	for _, reg := range r.store.registrations {
		if reg.TournamentID == tournamentID && reg.UserID == userID && reg.Status == models.RegistrationActive {
			cp := *reg
			return &cp, nil
		}
	}
	return nil, repositories.ErrRegistrationNotFound
}

func (r *fakeRegistrationRepo) Withdraw(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	defer r.store.lock(exec)()
	reg, ok := r.store.registrations[id]
	if !ok {
		return repositories.ErrRegistrationNotFound
	}
	if reg.Status != models.RegistrationActive {
		return repositories.ErrRegistrationNotActive
	}
	reg.Status = models.RegistrationWithdrawn
	return nil
}

func (r *fakeRegistrationRepo) GetByID(ctx context.Context, id int) (*models.Registration, error) {
	defer r.store.lock(nil)()
	reg, ok := r.store.registrations[id]
	if !ok {
		return nil, repositories.ErrRegistrationNotFound
	}
	cp := *reg
	return &cp, nil
}

func (r *fakeRegistrationRepo) UpdateSeed(ctx context.Context, id int, seed *int) error {
	defer r.store.lock(nil)()
	reg, ok := r.store.registrations[id]
	if !ok {
		return repositories.ErrRegistrationNotFound
	}
	reg.Seed = seed
	return nil
}

func (r *fakeRegistrationRepo) ListByTournament(ctx context.Context, tournamentID int, statusFilter *models.RegistrationStatus, limit, offset int) ([]*models.Registration, int, error) {
	defer r.store.lock(nil)()
	var all []*models.Registration
	for _, reg := range r.store.registrations {
		if reg.TournamentID != tournamentID {
			continue
		}
		if statusFilter != nil && reg.Status != *statusFilter {
			continue
		}
		cp := *reg
		all = append(all, &cp)
	}
	total := len(all)
	if offset > len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *fakeRegistrationRepo) ListCompletedByUser(ctx context.Context, userID int) ([]*models.Registration, error) {
	defer r.store.lock(nil)()
	var out []*models.Registration
	for _, reg := range r.store.registrations {
		if reg.UserID != userID {
			continue
		}
		t, ok := r.store.tournaments[reg.TournamentID]
		if !ok || t.Status != models.StatusCompleted {
			continue
		}
		cp := *reg
		out = append(out, &cp)
	}
	return out, nil
}
