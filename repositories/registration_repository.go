package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/bracketry/tournament-platform/models"
	"github.com/lib/pq"
)

var (
	ErrRegistrationNotFound          = errors.New("registration not found")
	ErrRegistrationDuplicateActive   = errors.New("active registration already exists for this user and tournament")
	ErrRegistrationNotActive         = errors.New("registration is not active")
	ErrRegistrationUserInvalid       = errors.New("registration user conflict or invalid")
	ErrRegistrationTournamentInvalid = errors.New("registration tournament conflict or invalid")
)

// RegistrationRepository владеет леджером регистраций. Уникальность активной
// пары (tournament_id, user_id) обеспечивает частичный уникальный индекс
// uq_registrations_active_pair (WHERE status = 'active').
type RegistrationRepository interface {
	InsertActive(ctx context.Context, exec SQLExecutor, reg *models.Registration) error
	FindActive(ctx context.Context, exec SQLExecutor, tournamentID, userID int) (*models.Registration, error)
	Withdraw(ctx context.Context, exec SQLExecutor, id int) error
	GetByID(ctx context.Context, id int) (*models.Registration, error)
	UpdateSeed(ctx context.Context, id int, seed *int) error
	ListByTournament(ctx context.Context, tournamentID int, statusFilter *models.RegistrationStatus, limit, offset int) ([]*models.Registration, int, error)
	// ListCompletedByUser returns the user's historical registrations
	// restricted to completed tournaments, for the ranking aggregator.
	ListCompletedByUser(ctx context.Context, userID int) ([]*models.Registration, error)
}

type postgresRegistrationRepository struct {
	db *sql.DB
}

func NewPostgresRegistrationRepository(db *sql.DB) RegistrationRepository {
	return &postgresRegistrationRepository{db: db}
}

func (r *postgresRegistrationRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func scanRegistration(row interface {
	Scan(dest ...interface{}) error
}, reg *models.Registration) error {
	return row.Scan(
		&reg.ID,
		&reg.UserID,
		&reg.TournamentID,
		&reg.RegisteredAt,
		&reg.Status,
		&reg.Seed,
	)
}

func (r *postgresRegistrationRepository) InsertActive(ctx context.Context, exec SQLExecutor, reg *models.Registration) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO registrations (user_id, tournament_id, registered_at, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	reg.Status = models.RegistrationActive
	err := executor.QueryRowContext(ctx, query,
		reg.UserID,
		reg.TournamentID,
		reg.RegisteredAt,
		reg.Status,
	).Scan(&reg.ID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation
				if pqErr.Constraint == "uq_registrations_active_pair" {
					return ErrRegistrationDuplicateActive
				}
			case "23503": // foreign_key_violation
				switch pqErr.Constraint {
				case "registrations_user_id_fkey":
					return ErrRegistrationUserInvalid
				case "registrations_tournament_id_fkey":
					return ErrRegistrationTournamentInvalid
				}
			}
		}
		return fmt.Errorf("failed to insert registration: %w", err)
	}
	return nil
}

func (r *postgresRegistrationRepository) FindActive(ctx context.Context, exec SQLExecutor, tournamentID, userID int) (*models.Registration, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, user_id, tournament_id, registered_at, status, seed
		FROM registrations
		WHERE tournament_id = $1 AND user_id = $2 AND status = $3`

	reg := &models.Registration{}
	err := scanRegistration(executor.QueryRowContext(ctx, query, tournamentID, userID, models.RegistrationActive), reg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to find active registration: %w", err)
	}
	return reg, nil
}

func (r *postgresRegistrationRepository) Withdraw(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE registrations SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, models.RegistrationWithdrawn, id, models.RegistrationActive)
	if err != nil {
		return fmt.Errorf("failed to withdraw registration %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrRegistrationNotActive)
}

func (r *postgresRegistrationRepository) GetByID(ctx context.Context, id int) (*models.Registration, error) {
	query := `
		SELECT id, user_id, tournament_id, registered_at, status, seed
		FROM registrations
		WHERE id = $1`

	reg := &models.Registration{}
	err := scanRegistration(r.db.QueryRowContext(ctx, query, id), reg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to get registration %d: %w", id, err)
	}
	return reg, nil
}

func (r *postgresRegistrationRepository) UpdateSeed(ctx context.Context, id int, seed *int) error {
	query := `UPDATE registrations SET seed = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, seed, id)
	if err != nil {
		return fmt.Errorf("failed to update registration seed: %w", err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) ListByTournament(ctx context.Context, tournamentID int, statusFilter *models.RegistrationStatus, limit, offset int) ([]*models.Registration, int, error) {
	var countBuilder strings.Builder
	var queryBuilder strings.Builder
	args := []interface{}{tournamentID}
	argCounter := 2

	countBuilder.WriteString(`SELECT COUNT(*) FROM registrations WHERE tournament_id = $1`)
	queryBuilder.WriteString(`
		SELECT
			r.id, r.user_id, r.tournament_id, r.registered_at, r.status, r.seed,
			u.id, u.first_name, u.last_name, u.nickname, u.avatar_key
		FROM registrations r
		JOIN users u ON r.user_id = u.id
		WHERE r.tournament_id = $1`)

	if statusFilter != nil {
		countBuilder.WriteString(fmt.Sprintf(" AND status = $%d", argCounter))
		queryBuilder.WriteString(fmt.Sprintf(" AND r.status = $%d", argCounter))
		args = append(args, *statusFilter)
		argCounter++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countBuilder.String(), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count registrations: %w", err)
	}

	// Insertion order, so pages are stable between calls.
	queryBuilder.WriteString(" ORDER BY r.id ASC")
	if limit > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d", argCounter))
		args = append(args, limit)
		argCounter++
	}
	if offset > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" OFFSET $%d", argCounter))
		args = append(args, offset)
	}

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list registrations by tournament: %w", err)
	}
	defer rows.Close()

	registrations := make([]*models.Registration, 0)
	for rows.Next() {
		var reg models.Registration
		var u models.User
		if err := rows.Scan(
			&reg.ID, &reg.UserID, &reg.TournamentID, &reg.RegisteredAt, &reg.Status, &reg.Seed,
			&u.ID, &u.FirstName, &u.LastName, &u.Nickname, &u.AvatarKey,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan registration row: %w", err)
		}
		reg.User = &u
		registrations = append(registrations, &reg)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating registration rows: %w", err)
	}
	return registrations, total, nil
}

func (r *postgresRegistrationRepository) ListCompletedByUser(ctx context.Context, userID int) ([]*models.Registration, error) {
	query := `
		SELECT r.id, r.user_id, r.tournament_id, r.registered_at, r.status, r.seed
		FROM registrations r
		JOIN tournaments t ON r.tournament_id = t.id
		WHERE r.user_id = $1 AND t.status = $2
		ORDER BY r.id ASC`

	rows, err := r.db.QueryContext(ctx, query, userID, models.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed registrations for user %d: %w", userID, err)
	}
	defer rows.Close()

	registrations := make([]*models.Registration, 0)
	for rows.Next() {
		var reg models.Registration
		if err := scanRegistration(rows, &reg); err != nil {
			return nil, fmt.Errorf("failed to scan completed registration row: %w", err)
		}
		registrations = append(registrations, &reg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completed registration rows: %w", err)
	}
	return registrations, nil
}
