package services

import (
	"context"
	"fmt"
	"time"

	"github.com/bracketry/tournament-platform/models"
	"github.com/bracketry/tournament-platform/repositories"
)

// Clock абстрагирует источник времени: все решения о допуске и переходы
// статусов сверяются с ним, в тестах подменяется.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// statusByTime возвращает статус, до которого турнир дозрел по часам.
// Возвращает false, если менять нечего. Cancelled и completed не трогаем.
func statusByTime(t *models.Tournament, now time.Time) (models.TournamentStatus, bool) {
	switch t.Status {
	case models.StatusUpcoming:
		if !now.Before(t.EndDate) {
			return models.StatusCompleted, true
		}
		if !now.Before(t.StartDate) {
			return models.StatusOngoing, true
		}
	case models.StatusOngoing:
		if !now.Before(t.EndDate) {
			return models.StatusCompleted, true
		}
	}
	return t.Status, false
}

// applyDueTransition персистит дозревший по времени переход до принятия
// любого решения под той же блокировкой строки, чтобы решение всегда
// опиралось на сохранённый статус.
func applyDueTransition(ctx context.Context, exec repositories.SQLExecutor, repo repositories.TournamentRepository, t *models.Tournament, now time.Time) (bool, error) {
	next, due := statusByTime(t, now)
	if !due {
		return false, nil
	}
	if err := repo.UpdateStatus(ctx, exec, t.ID, next); err != nil {
		return false, fmt.Errorf("failed to persist due status transition for tournament %d: %w", t.ID, err)
	}
	t.Status = next
	return true, nil
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}

func totalPages(total, perPage int) int {
	if total == 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
