package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bracketry/tournament-platform/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound         = errors.New("tournament not found")
	ErrTournamentNameConflict     = errors.New("tournament name conflict for this organizer")
	ErrTournamentInvalidOrganizer = errors.New("invalid organizer reference")

	// Guard failures of IncrementParticipants. The admission pre-checks run
	// under the same row lock, so seeing either of these means the
	// current_participants invariant was broken by a code path that skipped
	// the lock.
	ErrTournamentCapacityExceeded = errors.New("participant count would exceed max_participants")
	ErrTournamentCountUnderflow   = errors.New("participant count would drop below zero")
)

type ListTournamentsFilter struct {
	Status *models.TournamentStatus
	Limit  int
	Offset int
}

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	// GetByIDForUpdate locks the tournament row for the duration of the
	// surrounding transaction. Every admission decision and status
	// transition goes through this lock.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, int, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error
	// IncrementParticipants applies a ±1 delta with the capacity and
	// underflow bounds folded into the UPDATE itself.
	IncrementParticipants(ctx context.Context, exec SQLExecutor, id int, delta int) error
	ListDueForStatusUpdate(ctx context.Context, currentTime time.Time) ([]*models.Tournament, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
		id, name, description, location, organizer_id,
		start_date, end_date, registration_deadline,
		max_participants, current_participants, status, created_at`

func scanTournament(row interface {
	Scan(dest ...interface{}) error
}, t *models.Tournament) error {
	return row.Scan(
		&t.ID, &t.Name, &t.Description, &t.Location, &t.OrganizerID,
		&t.StartDate, &t.EndDate, &t.RegistrationDeadline,
		&t.MaxParticipants, &t.CurrentParticipants, &t.Status, &t.CreatedAt,
	)
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	executor := r.getExecutor(nil)
	query := `
		INSERT INTO tournaments (
			name, description, location, organizer_id,
			start_date, end_date, registration_deadline, max_participants, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, current_participants, created_at`

	err := executor.QueryRowContext(ctx, query,
		t.Name, t.Description, t.Location, t.OrganizerID,
		t.StartDate, t.EndDate, t.RegistrationDeadline, t.MaxParticipants, t.Status,
	).Scan(&t.ID, &t.CurrentParticipants, &t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	return r.getByID(ctx, r.getExecutor(nil), id, false)
}

func (r *postgresTournamentRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	return r.getByID(ctx, r.getExecutor(exec), id, true)
}

func (r *postgresTournamentRepository) getByID(ctx context.Context, executor SQLExecutor, id int, forUpdate bool) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + `
		FROM tournaments
		WHERE id = $1`
	if forUpdate {
		query += `
		FOR UPDATE`
	}

	t := &models.Tournament{}
	err := scanTournament(executor.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, int, error) {
	executor := r.getExecutor(nil)

	countQuery := `SELECT COUNT(*) FROM tournaments WHERE 1=1`
	query := `SELECT` + tournamentColumns + `
		FROM tournaments
		WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.Status != nil {
		cond := fmt.Sprintf(" AND status = $%d", argID)
		countQuery += cond
		query += cond
		args = append(args, *filter.Status)
		argID++
	}

	var total int
	if err := executor.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tournaments: %w", err)
	}

	query += " ORDER BY start_date DESC, created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if scanErr := scanTournament(rows, &t); scanErr != nil {
			return nil, 0, fmt.Errorf("failed to scan tournament row: %w", scanErr)
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating tournament rows: %w", err)
	}

	return tournaments, total, nil
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) IncrementParticipants(ctx context.Context, exec SQLExecutor, id int, delta int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournaments
		SET current_participants = current_participants + $1
		WHERE id = $2
		  AND current_participants + $1 >= 0
		  AND ($1 <= 0 OR max_participants IS NULL OR current_participants + $1 <= max_participants)`

	result, err := executor.ExecContext(ctx, query, delta, id)
	if err != nil {
		return fmt.Errorf("failed to update participant count for tournament %d: %w", id, err)
	}

	// The caller holds the row lock, so zero affected rows means the bound
	// check failed, not that the tournament vanished.
	guardErr := ErrTournamentCountUnderflow
	if delta > 0 {
		guardErr = ErrTournamentCapacityExceeded
	}
	return checkAffectedRows(result, guardErr)
}

func (r *postgresTournamentRepository) ListDueForStatusUpdate(ctx context.Context, currentTime time.Time) ([]*models.Tournament, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + tournamentColumns + `
		FROM tournaments
		WHERE (status = $1 AND start_date <= $3)
		   OR (status = $2 AND end_date <= $3)
		ORDER BY id ASC`

	rows, err := executor.QueryContext(ctx, query, models.StatusUpcoming, models.StatusOngoing, currentTime)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments due for status update: %w", err)
	}
	defer rows.Close()

	var tournaments []*models.Tournament
	for rows.Next() {
		var t models.Tournament
		if scanErr := scanTournament(rows, &t); scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament due for status update: %w", scanErr)
		}
		tournaments = append(tournaments, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tournaments due for status update: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "tournaments_organizer_id_name_key" {
				return ErrTournamentNameConflict
			}
		case "23503":
			if pqErr.Constraint == "tournaments_organizer_id_fkey" {
				return ErrTournamentInvalidOrganizer
			}
		}
	}
	return err
}
