package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bracketry/tournament-platform/models"
	"github.com/bracketry/tournament-platform/repositories"
	"golang.org/x/sync/errgroup"
)

// Сколько турниров свип обновляет параллельно. Блокировки построчные,
// поэтому турниры не мешают друг другу.
const sweepConcurrency = 4

type CreateTournamentInput struct {
	Name                 string     `json:"name"`
	Description          *string    `json:"description"`
	Location             *string    `json:"location"`
	StartDate            time.Time  `json:"start_date"`
	EndDate              time.Time  `json:"end_date"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
	MaxParticipants      *int       `json:"max_participants"`
}

type TournamentListFilter struct {
	Status  *models.TournamentStatus
	Page    int
	PerPage int
}

type TournamentService interface {
	CreateTournament(ctx context.Context, organizerID int, input CreateTournamentInput) (*models.Tournament, error)
	GetTournamentByID(ctx context.Context, id int) (*models.Tournament, error)
	ListTournaments(ctx context.Context, filter TournamentListFilter) ([]models.Tournament, int, int, error)
	TransitionStatus(ctx context.Context, tournamentID, currentUserID int, newStatus models.TournamentStatus) (*models.Tournament, error)
	AutoUpdateTournamentStatusesByDates(ctx context.Context) error
}

type tournamentService struct {
	tx             repositories.TxRunner
	tournamentRepo repositories.TournamentRepository
	notifier       TournamentNotifier
	clock          Clock
	logger         *slog.Logger
}

func NewTournamentService(
	tx repositories.TxRunner,
	tournamentRepo repositories.TournamentRepository,
	notifier TournamentNotifier,
	clock Clock,
	logger *slog.Logger,
) TournamentService {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &tournamentService{
		tx:             tx,
		tournamentRepo: tournamentRepo,
		notifier:       notifier,
		clock:          clock,
		logger:         logger,
	}
}

// Переходы, доступные оператору. Переходы по времени дополнительно требуют,
// чтобы соответствующий момент уже наступил (см. TransitionStatus).
var allowedTransitions = map[models.TournamentStatus][]models.TournamentStatus{
	models.StatusUpcoming: {models.StatusOngoing, models.StatusCancelled},
	models.StatusOngoing:  {models.StatusCompleted, models.StatusCancelled},
}

func isValidTournamentStatus(status models.TournamentStatus) bool {
	switch status {
	case models.StatusUpcoming, models.StatusOngoing, models.StatusCompleted, models.StatusCancelled:
		return true
	}
	return false
}

func (s *tournamentService) CreateTournament(ctx context.Context, organizerID int, input CreateTournamentInput) (*models.Tournament, error) {
	if input.Name == "" {
		return nil, ErrTournamentNameRequired
	}
	if !input.EndDate.After(input.StartDate) {
		return nil, ErrTournamentInvalidDateRange
	}
	if input.RegistrationDeadline != nil && input.RegistrationDeadline.After(input.StartDate) {
		return nil, ErrTournamentInvalidRegDate
	}
	if input.MaxParticipants != nil && *input.MaxParticipants <= 0 {
		return nil, ErrTournamentInvalidCapacity
	}

	t := &models.Tournament{
		Name:                 input.Name,
		Description:          input.Description,
		Location:             input.Location,
		OrganizerID:          organizerID,
		StartDate:            input.StartDate,
		EndDate:              input.EndDate,
		RegistrationDeadline: input.RegistrationDeadline,
		MaxParticipants:      input.MaxParticipants,
		Status:               models.StatusUpcoming,
	}
	if err := s.tournamentRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTournamentByID освежает дозревший по времени статус прямо на чтении,
// чтобы ответ не зависел от того, успел ли отработать фоновый свип.
func (s *tournamentService) GetTournamentByID(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	if _, due := statusByTime(t, s.clock.Now()); due {
		if refreshErr := s.refreshStatus(ctx, t.ID); refreshErr != nil {
			return nil, refreshErr
		}
		if t, err = s.tournamentRepo.GetByID(ctx, id); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (s *tournamentService) ListTournaments(ctx context.Context, filter TournamentListFilter) ([]models.Tournament, int, int, error) {
	page, perPage := normalizePage(filter.Page, filter.PerPage)
	items, total, err := s.tournamentRepo.List(ctx, repositories.ListTournamentsFilter{
		Status: filter.Status,
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	})
	if err != nil {
		return nil, 0, 0, err
	}
	return items, total, totalPages(total, perPage), nil
}

func (s *tournamentService) TransitionStatus(ctx context.Context, tournamentID, currentUserID int, newStatus models.TournamentStatus) (*models.Tournament, error) {
	if !isValidTournamentStatus(newStatus) {
		return nil, ErrTournamentInvalidStatus
	}

	var (
		result   *models.Tournament
		statuses []models.TournamentStatus // персистнутые переходы, в порядке применения
	)

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return fmt.Errorf("failed to load tournament %d: %w", tournamentID, err)
		}
		if t.OrganizerID != currentUserID {
			return ErrForbiddenOperation
		}

		now := s.clock.Now()
		changed, err := applyDueTransition(ctx, exec, s.tournamentRepo, t, now)
		if err != nil {
			return err
		}
		if changed {
			statuses = append(statuses, t.Status)
			// Дозревший переход мог совпасть с запрошенным: операторский
			// вызов "начать турнир" в момент now >= start_date.
			if t.Status == newStatus {
				result = t
				return nil
			}
		}

		if err := s.checkTransition(t, newStatus, now); err != nil {
			return err
		}
		if err := s.tournamentRepo.UpdateStatus(ctx, exec, t.ID, newStatus); err != nil {
			return err
		}
		t.Status = newStatus
		statuses = append(statuses, newStatus)
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		for _, status := range statuses {
			s.notifier.TournamentStatusChanged(tournamentID, status)
		}
	}
	return result, nil
}

func (s *tournamentService) checkTransition(t *models.Tournament, newStatus models.TournamentStatus, now time.Time) error {
	transitionErr := fmt.Errorf("%w: %s -> %s", ErrTournamentInvalidStatusTransition, t.Status, newStatus)

	allowed := false
	for _, candidate := range allowedTransitions[t.Status] {
		if candidate == newStatus {
			allowed = true
			break
		}
	}
	if !allowed {
		return transitionErr
	}
	// Ongoing наступает не раньше start_date; досрочное завершение и отмена
	// остаются за оператором.
	if newStatus == models.StatusOngoing && now.Before(t.StartDate) {
		return transitionErr
	}
	return nil
}

// AutoUpdateTournamentStatusesByDates — фоновый свип: подтягивает статусы
// турниров, до которых давно не дотрагивались запросы. Корректность допуска
// от него не зависит.
func (s *tournamentService) AutoUpdateTournamentStatusesByDates(ctx context.Context) error {
	due, err := s.tournamentRepo.ListDueForStatusUpdate(ctx, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to list tournaments due for status update: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, t := range due {
		tournamentID := t.ID
		g.Go(func() error {
			if err := s.refreshStatus(gctx, tournamentID); err != nil {
				// Один проблемный турнир не должен ронять весь свип.
				s.logger.Error("failed to refresh tournament status",
					slog.Int("tournament_id", tournamentID),
					slog.Any("error", err))
			}
			return nil
		})
	}
	return g.Wait()
}

// refreshStatus перечитывает турнир под блокировкой и персистит дозревший
// переход. Между выборкой свипа и этой транзакцией статус мог измениться,
// поэтому всё перепроверяется заново.
func (s *tournamentService) refreshStatus(ctx context.Context, tournamentID int) error {
	var newStatus *models.TournamentStatus

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		changed, err := applyDueTransition(ctx, exec, s.tournamentRepo, t, s.clock.Now())
		if err != nil {
			return err
		}
		if changed {
			status := t.Status
			newStatus = &status
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.notifier != nil && newStatus != nil {
		s.notifier.TournamentStatusChanged(tournamentID, *newStatus)
	}
	return nil
}
