package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bracketry/tournament-platform/models"
)

// RankingRepository — read-only агрегаты по леджерам завершённых турниров.
type RankingRepository interface {
	GlobalRankings(ctx context.Context, limit, offset int) ([]models.RankingEntry, int, error)
}

type postgresRankingRepository struct {
	db *sql.DB
}

func NewPostgresRankingRepository(db *sql.DB) RankingRepository {
	return &postgresRankingRepository{db: db}
}

func (r *postgresRankingRepository) GlobalRankings(ctx context.Context, limit, offset int) ([]models.RankingEntry, int, error) {
	countQuery := `
		SELECT COUNT(DISTINCT r.user_id)
		FROM registrations r
		JOIN tournaments t ON r.tournament_id = t.id
		WHERE t.status = $1`

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, models.StatusCompleted).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count ranked users: %w", err)
	}

	// Participation counts both active and withdrawn records (history), the
	// average ignores registrations without a recorded seed. The user id is
	// the final tie-break so pagination is a stable window.
	query := `
		SELECT
			r.user_id,
			COUNT(*) AS tournaments_participated,
			AVG(r.seed) AS average_rank,
			u.first_name, u.last_name, u.nickname, u.avatar_key
		FROM registrations r
		JOIN tournaments t ON r.tournament_id = t.id
		JOIN users u ON r.user_id = u.id
		WHERE t.status = $1
		GROUP BY r.user_id, u.first_name, u.last_name, u.nickname, u.avatar_key
		ORDER BY COUNT(*) DESC, AVG(r.seed) ASC NULLS LAST, r.user_id ASC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, models.StatusCompleted, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query global rankings: %w", err)
	}
	defer rows.Close()

	entries := make([]models.RankingEntry, 0)
	for rows.Next() {
		var entry models.RankingEntry
		var u models.User
		if err := rows.Scan(
			&entry.UserID,
			&entry.TournamentsParticipated,
			&entry.AverageRank,
			&u.FirstName, &u.LastName, &u.Nickname, &u.AvatarKey,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan ranking row: %w", err)
		}
		u.ID = entry.UserID
		entry.User = &u
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating ranking rows: %w", err)
	}
	return entries, total, nil
}
