package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bracketry/tournament-platform/models"
	"github.com/bracketry/tournament-platform/repositories"
)

// TournamentNotifier получает события жизненного цикла после коммита
// транзакции. Реализуется live.Hub; nil отключает рассылку.
type TournamentNotifier interface {
	TournamentStatusChanged(tournamentID int, status models.TournamentStatus)
	ParticipantCountChanged(tournamentID int, count int)
}

type UpdateRegistrationInput struct {
	Seed *int `json:"seed"`
}

// RegistrationService — контроль допуска: единственная точка, через которую
// меняются леджер регистраций и счётчик участников турнира.
type RegistrationService interface {
	Register(ctx context.Context, tournamentID, userID int) (*models.Registration, error)
	Unregister(ctx context.Context, tournamentID, userID int) error
	ListByTournament(ctx context.Context, tournamentID int, statusFilter *models.RegistrationStatus, page, perPage int) ([]*models.Registration, int, int, error)
	UpdateRegistration(ctx context.Context, registrationID, currentUserID int, input UpdateRegistrationInput) (*models.Registration, error)
}

type registrationService struct {
	tx               repositories.TxRunner
	tournamentRepo   repositories.TournamentRepository
	registrationRepo repositories.RegistrationRepository
	notifier         TournamentNotifier
	clock            Clock
	logger           *slog.Logger

	// Политика отзыва регистрации при статусе ongoing. Исходное поведение
	// неоднозначно, поэтому флаг, а не константа.
	allowWithdrawWhileOngoing bool
}

func NewRegistrationService(
	tx repositories.TxRunner,
	tournamentRepo repositories.TournamentRepository,
	registrationRepo repositories.RegistrationRepository,
	notifier TournamentNotifier,
	clock Clock,
	logger *slog.Logger,
	allowWithdrawWhileOngoing bool,
) RegistrationService {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &registrationService{
		tx:                        tx,
		tournamentRepo:            tournamentRepo,
		registrationRepo:          registrationRepo,
		notifier:                  notifier,
		clock:                     clock,
		logger:                    logger,
		allowWithdrawWhileOngoing: allowWithdrawWhileOngoing,
	}
}

// Register проводит решение о допуске целиком под блокировкой строки турнира:
// дозревший по времени статус сначала персистится, затем идут проверки, затем
// вставка в леджер и инкремент счётчика — одной транзакцией.
func (s *registrationService) Register(ctx context.Context, tournamentID, userID int) (*models.Registration, error) {
	var (
		reg       *models.Registration
		newStatus *models.TournamentStatus
		newCount  int
	)

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.lockTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		changed, err := s.applyDueTransition(ctx, exec, t, now)
		if err != nil {
			return err
		}
		if changed {
			status := t.Status
			newStatus = &status
		}

		if t.Status != models.StatusUpcoming {
			return ErrTournamentClosed
		}
		if t.RegistrationDeadline != nil && now.After(*t.RegistrationDeadline) {
			return ErrRegistrationClosed
		}
		if t.MaxParticipants != nil && t.CurrentParticipants >= *t.MaxParticipants {
			return ErrTournamentFull
		}

		existing, err := s.registrationRepo.FindActive(ctx, exec, tournamentID, userID)
		if err != nil && !errors.Is(err, repositories.ErrRegistrationNotFound) {
			return fmt.Errorf("failed to check existing registration: %w", err)
		}
		if existing != nil {
			return ErrAlreadyRegistered
		}

		reg = &models.Registration{
			UserID:       userID,
			TournamentID: tournamentID,
			RegisteredAt: now,
			Status:       models.RegistrationActive,
		}
		if err := s.registrationRepo.InsertActive(ctx, exec, reg); err != nil {
			if errors.Is(err, repositories.ErrRegistrationDuplicateActive) {
				return ErrAlreadyRegistered
			}
			return err
		}

		if err := s.tournamentRepo.IncrementParticipants(ctx, exec, tournamentID, 1); err != nil {
			if errors.Is(err, repositories.ErrTournamentCapacityExceeded) {
				// Пре-чек прошёл под той же блокировкой — сюда попадать нельзя.
				s.logger.Error("participant count invariant violated on register",
					slog.Int("tournament_id", tournamentID),
					slog.Int("user_id", userID),
					slog.Any("error", err))
				return fmt.Errorf("participant count invariant violated for tournament %d: %w", tournamentID, err)
			}
			return err
		}
		newCount = t.CurrentParticipants + 1
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyStatus(tournamentID, newStatus)
	if s.notifier != nil {
		s.notifier.ParticipantCountChanged(tournamentID, newCount)
	}
	return reg, nil
}

func (s *registrationService) Unregister(ctx context.Context, tournamentID, userID int) error {
	var (
		newStatus *models.TournamentStatus
		newCount  int
	)

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.lockTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		changed, err := s.applyDueTransition(ctx, exec, t, now)
		if err != nil {
			return err
		}
		if changed {
			status := t.Status
			newStatus = &status
		}

		if t.Status.IsTerminal() {
			return ErrTournamentClosed
		}
		if t.Status == models.StatusOngoing && !s.allowWithdrawWhileOngoing {
			return ErrTournamentClosed
		}

		reg, err := s.registrationRepo.FindActive(ctx, exec, tournamentID, userID)
		if err != nil {
			if errors.Is(err, repositories.ErrRegistrationNotFound) {
				return ErrNotRegistered
			}
			return fmt.Errorf("failed to find active registration: %w", err)
		}

		if err := s.registrationRepo.Withdraw(ctx, exec, reg.ID); err != nil {
			if errors.Is(err, repositories.ErrRegistrationNotActive) {
				return ErrNotRegistered
			}
			return err
		}

		if err := s.tournamentRepo.IncrementParticipants(ctx, exec, tournamentID, -1); err != nil {
			if errors.Is(err, repositories.ErrTournamentCountUnderflow) {
				s.logger.Error("participant count invariant violated on unregister",
					slog.Int("tournament_id", tournamentID),
					slog.Int("user_id", userID),
					slog.Any("error", err))
				return fmt.Errorf("participant count invariant violated for tournament %d: %w", tournamentID, err)
			}
			return err
		}
		newCount = t.CurrentParticipants - 1
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyStatus(tournamentID, newStatus)
	if s.notifier != nil {
		s.notifier.ParticipantCountChanged(tournamentID, newCount)
	}
	return nil
}

func (s *registrationService) ListByTournament(ctx context.Context, tournamentID int, statusFilter *models.RegistrationStatus, page, perPage int) ([]*models.Registration, int, int, error) {
	if _, err := s.tournamentRepo.GetByID(ctx, tournamentID); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, 0, 0, ErrTournamentNotFound
		}
		return nil, 0, 0, err
	}

	page, perPage = normalizePage(page, perPage)
	items, total, err := s.registrationRepo.ListByTournament(ctx, tournamentID, statusFilter, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, 0, err
	}
	return items, total, totalPages(total, perPage), nil
}

// UpdateRegistration фиксирует посев, назначенный внешней системой сеток.
// Право на запись — только у организатора турнира.
func (s *registrationService) UpdateRegistration(ctx context.Context, registrationID, currentUserID int, input UpdateRegistrationInput) (*models.Registration, error) {
	reg, err := s.registrationRepo.GetByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	t, err := s.tournamentRepo.GetByID(ctx, reg.TournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	if t.OrganizerID != currentUserID {
		return nil, ErrForbiddenOperation
	}

	if input.Seed != nil {
		if err := s.registrationRepo.UpdateSeed(ctx, registrationID, input.Seed); err != nil {
			return nil, err
		}
		reg.Seed = input.Seed
	}
	return reg, nil
}

func (s *registrationService) lockTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to load tournament %d: %w", tournamentID, err)
	}
	return t, nil
}

func (s *registrationService) applyDueTransition(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, now time.Time) (bool, error) {
	return applyDueTransition(ctx, exec, s.tournamentRepo, t, now)
}

func (s *registrationService) notifyStatus(tournamentID int, status *models.TournamentStatus) {
	if s.notifier == nil || status == nil {
		return
	}
	s.notifier.TournamentStatusChanged(tournamentID, *status)
}
