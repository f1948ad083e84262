package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bracketry/tournament-platform/models"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type registrationFixture struct {
	store    *fakeStore
	clock    *fakeClock
	notifier *spyNotifier
	service  RegistrationService
}

func newRegistrationFixture(t *testing.T, allowWithdrawWhileOngoing bool) *registrationFixture {
	t.Helper()
	store := newFakeStore()
	clock := newFakeClock(testNow)
	notifier := &spyNotifier{}
	service := NewRegistrationService(
		store,
		&fakeTournamentRepo{store: store},
		&fakeRegistrationRepo{store: store},
		notifier,
		clock,
		nil,
		allowWithdrawWhileOngoing,
	)
	return &registrationFixture{
		store:    store,
		clock:    clock,
		notifier: notifier,
		service:  service,
	}
}

func upcomingTournament(organizerID int, maxParticipants *int, deadline *time.Time) models.Tournament {
	return models.Tournament{
		Name:                 "Summer Open",
		OrganizerID:          organizerID,
		StartDate:            testNow.Add(24 * time.Hour),
		EndDate:              testNow.Add(48 * time.Hour),
		RegistrationDeadline: deadline,
		MaxParticipants:      maxParticipants,
		Status:               models.StatusUpcoming,
	}
}

func intPtr(v int) *int { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func TestRegister_Success(t *testing.T) {
	f := newRegistrationFixture(t, true)
	tournament := f.store.addTournament(upcomingTournament(1, intPtr(16), nil))

	reg, err := f.service.Register(context.Background(), tournament.ID, 42)
	require.NoError(t, err)
	require.NotNil(t, reg)

	assert.NotZero(t, reg.ID)
	assert.Equal(t, 42, reg.UserID)
	assert.Equal(t, tournament.ID, reg.TournamentID)
	assert.Equal(t, models.RegistrationActive, reg.Status)
	assert.Equal(t, testNow, reg.RegisteredAt)

	assert.Equal(t, 1, f.store.tournamentByID(tournament.ID).CurrentParticipants)
	assert.Equal(t, []int{1}, f.notifier.Counts())
}

func TestRegister_TournamentNotFound(t *testing.T) {
	f := newRegistrationFixture(t, true)

	_, err := f.service.Register(context.Background(), 404, 42)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestRegister_AlreadyRegistered(t *testing.T) {
	f := newRegistrationFixture(t, true)
	tournament := f.store.addTournament(upcomingTournament(1, nil, nil))

	_, err := f.service.Register(context.Background(), tournament.ID, 42)
	require.NoError(t, err)

	_, err = f.service.Register(context.Background(), tournament.ID, 42)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	// Повторная попытка не плодит строк и не трогает счётчик.
	assert.Equal(t, 1, f.store.registrationCount(tournament.ID))
	assert.Equal(t, 1, f.store.tournamentByID(tournament.ID).CurrentParticipants)
}

func TestRegister_CapacityEnforced(t *testing.T) {
	f := newRegistrationFixture(t, true)
	tournament := f.store.addTournament(upcomingTournament(1, intPtr(2), nil))

	_, err := f.service.Register(context.Background(), tournament.ID, 1)
	require.NoError(t, err)
	_, err = f.service.Register(context.Background(), tournament.ID, 2)
	require.NoError(t, err)

	_, err = f.service.Register(context.Background(), tournament.ID, 3)
	assert.ErrorIs(t, err, ErrTournamentFull)

	assert.Equal(t, 2, f.store.tournamentByID(tournament.ID).CurrentParticipants)
	assert.Equal(t, 2, f.store.registrationCount(tournament.ID))
}

func TestRegister_DeadlineBoundary(t *testing.T) {
	deadline := testNow
	f := newRegistrationFixture(t, true)
	tournament := f.store.addTournament(upcomingTournament(1, nil, timePtr(deadline)))

	// Ровно в дедлайн регистрация ещё открыта.
	_, err := f.service.Register(context.Background(), tournament.ID, 1)
	require.NoError(t, err)

	// Любой момент после дедлайна — уже нет.
	f.clock.Set(deadline.Add(time.Second))
	_, err = f.service.Register(context.Background(), tournament.ID, 2)
	assert.ErrorIs(t, err, ErrRegistrationClosed)
}

func TestRegister_AfterStartDateRejected(t *testing.T) {
	f := newRegistrationFixture(t, true)
	tournament := f.store.addTournament(upcomingTournament(1, nil, nil))

	f.clock.Set(tournament.StartDate.Add(time.Minute))

	_, err := f.service.Register(context.Background(), tournament.ID, 1)
	assert.ErrorIs(t, err, ErrTournamentClosed)
	assert.Equal(t, 0, f.store.registrationCount(tournament.ID))
}

func TestRegister_CancelledRejected(t *testing.T) {
	f := newRegistrationFixture(t, true)
	tournament := upcomingTournament(1, nil, nil)
	tournament.Status = models.StatusCancelled
	stored := f.store.addTournament(tournament)

	_, err := f.service.Register(context.Background(), stored.ID, 1)
	assert.ErrorIs(t, err, ErrTournamentClosed)
}

func TestRegister_ConcurrentRespectsCapacity(t *testing.T) {
	const (
		capacity = 3
		callers  = 10
	)

	f := newRegistrationFixture(t, true)
	tournament := f.store.addTournament(upcomingTournament(1, intPtr(capacity), nil))

	var wg sync.WaitGroup
	results := make([]error, callers)
	for userID := 1; userID <= callers; userID++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			_, err := f.service.Register(context.Background(), tournament.ID, userID)
			results[userID-1] = err
		}(userID)
	}
	wg.Wait()

	admitted, rejected := 0, 0
	for _, err := range results {
		if err == nil {
			admitted++
			continue
		}
		require.ErrorIs(t, err, ErrTournamentFull)
		rejected++
	}
	assert.Equal(t, capacity, admitted)
	assert.Equal(t, callers-capacity, rejected)
	assert.Equal(t, capacity, f.store.tournamentByID(tournament.ID).CurrentParticipants)
	assert.Equal(t, capacity, f.store.activeRegistrationCount(tournament.ID))
}

func TestUnregister_Success(t *testing.T) {
	f := newRegistrationFixture(t, true)
	tournament := f.store.addTournament(upcomingTournament(1, nil, nil))

	_, err := f.service.Register(context.Background(), tournament.ID, 42)
	require.NoError(t, err)

	err = f.service.Unregister(context.Background(), tournament.ID, 42)
	require.NoError(t, err)

	assert.Equal(t, 0, f.store.tournamentByID(tournament.ID).CurrentParticipants)
	assert.Equal(t, 0, f.store.activeRegistrationCount(tournament.ID))
	// Строка остаётся в леджере как история.
	assert.Equal(t, 1, f.store.registrationCount(tournament.ID))
	assert.Equal(t, []int{1, 0}, f.notifier.Counts())
}

func TestUnregister_NotRegistered(t *testing.T) {
	f := newRegistrationFixture(t, true)
	tournament := f.store.addTournament(upcomingTournament(1, nil, nil))

	err := f.service.Unregister(context.Background(), tournament.ID, 42)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestUnregister_AfterWithdrawIsNotRegistered(t *testing.T) {
	f := newRegistrationFixture(t, true)
	tournament := f.store.addTournament(upcomingTournament(1, nil, nil))

	_, err := f.service.Register(context.Background(), tournament.ID, 42)
	require.NoError(t, err)
	require.NoError(t, f.service.Unregister(context.Background(), tournament.ID, 42))

	err = f.service.Unregister(context.Background(), tournament.ID, 42)
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.Equal(t, 0, f.store.tournamentByID(tournament.ID).CurrentParticipants)
}

func TestUnregister_TerminalTournament(t *testing.T) {
	for _, status := range []models.TournamentStatus{models.StatusCompleted, models.StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			f := newRegistrationFixture(t, true)
			tournament := upcomingTournament(1, nil, nil)
			tournament.Status = status
			stored := f.store.addTournament(tournament)

			err := f.service.Unregister(context.Background(), stored.ID, 42)
			assert.ErrorIs(t, err, ErrTournamentClosed)
		})
	}
}

func TestUnregister_OngoingPolicy(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		f := newRegistrationFixture(t, true)
		tournament := f.store.addTournament(upcomingTournament(1, nil, nil))

		_, err := f.service.Register(context.Background(), tournament.ID, 42)
		require.NoError(t, err)

		f.clock.Set(tournament.StartDate.Add(time.Minute))
		require.NoError(t, f.service.Unregister(context.Background(), tournament.ID, 42))
		assert.Equal(t, models.StatusOngoing, f.store.tournamentByID(tournament.ID).Status)
		assert.Equal(t, 0, f.store.tournamentByID(tournament.ID).CurrentParticipants)
	})

	t.Run("forbidden", func(t *testing.T) {
		f := newRegistrationFixture(t, false)
		tournament := f.store.addTournament(upcomingTournament(1, nil, nil))

		_, err := f.service.Register(context.Background(), tournament.ID, 42)
		require.NoError(t, err)

		f.clock.Set(tournament.StartDate.Add(time.Minute))
		err = f.service.Unregister(context.Background(), tournament.ID, 42)
		assert.ErrorIs(t, err, ErrTournamentClosed)
		assert.Equal(t, 1, f.store.tournamentByID(tournament.ID).CurrentParticipants)
	})
}

func TestReregisterAfterWithdraw(t *testing.T) {
	f := newRegistrationFixture(t, true)
	tournament := f.store.addTournament(upcomingTournament(1, nil, nil))

	first, err := f.service.Register(context.Background(), tournament.ID, 42)
	require.NoError(t, err)
	require.NoError(t, f.service.Unregister(context.Background(), tournament.ID, 42))

	second, err := f.service.Register(context.Background(), tournament.ID, 42)
	require.NoError(t, err)

	// Повторная регистрация — новая строка леджера, история снятия остаётся.
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, f.store.registrationCount(tournament.ID))
	assert.Equal(t, 1, f.store.activeRegistrationCount(tournament.ID))
	assert.Equal(t, 1, f.store.tournamentByID(tournament.ID).CurrentParticipants)
}

func TestListByTournament_NotFound(t *testing.T) {
	f := newRegistrationFixture(t, true)

	_, _, _, err := f.service.ListByTournament(context.Background(), 404, nil, 1, 10)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestListByTournament_Paginates(t *testing.T) {
	f := newRegistrationFixture(t, true)
	tournament := f.store.addTournament(upcomingTournament(1, nil, nil))

	for userID := 1; userID <= 5; userID++ {
		_, err := f.service.Register(context.Background(), tournament.ID, userID)
		require.NoError(t, err)
	}

	items, total, pages, err := f.service.ListByTournament(context.Background(), tournament.ID, nil, 1, 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 5, total)
	assert.Equal(t, 3, pages)
}

func TestUpdateRegistration_SeedByOrganizer(t *testing.T) {
	const organizerID = 7

	f := newRegistrationFixture(t, true)
	tournament := f.store.addTournament(upcomingTournament(organizerID, nil, nil))

	reg, err := f.service.Register(context.Background(), tournament.ID, 42)
	require.NoError(t, err)

	updated, err := f.service.UpdateRegistration(context.Background(), reg.ID, organizerID, UpdateRegistrationInput{Seed: intPtr(3)})
	require.NoError(t, err)
	require.NotNil(t, updated.Seed)
	assert.Equal(t, 3, *updated.Seed)
}

func TestUpdateRegistration_ForbiddenForNonOrganizer(t *testing.T) {
	f := newRegistrationFixture(t, true)
	tournament := f.store.addTournament(upcomingTournament(7, nil, nil))

	reg, err := f.service.Register(context.Background(), tournament.ID, 42)
	require.NoError(t, err)

	_, err = f.service.UpdateRegistration(context.Background(), reg.ID, 42, UpdateRegistrationInput{Seed: intPtr(1)})
	assert.ErrorIs(t, err, ErrForbiddenOperation)
}
