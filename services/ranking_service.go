package services

import (
	"context"

	"github.com/bracketry/tournament-platform/models"
	"github.com/bracketry/tournament-platform/repositories"
	"github.com/bracketry/tournament-platform/storage"
)

// RankingService отдаёт глобальный рейтинг, собранный по леджерам
// завершённых турниров. Только чтение, порядок детерминированный.
type RankingService interface {
	GlobalRankings(ctx context.Context, page, perPage int) ([]models.RankingEntry, int, int, error)
}

type rankingService struct {
	rankingRepo repositories.RankingRepository
	uploader    storage.FileUploader
}

func NewRankingService(rankingRepo repositories.RankingRepository, uploader storage.FileUploader) RankingService {
	return &rankingService{
		rankingRepo: rankingRepo,
		uploader:    uploader,
	}
}

func (s *rankingService) GlobalRankings(ctx context.Context, page, perPage int) ([]models.RankingEntry, int, int, error) {
	page, perPage = normalizePage(page, perPage)
	entries, total, err := s.rankingRepo.GlobalRankings(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, 0, err
	}

	if s.uploader != nil {
		for i := range entries {
			if u := entries[i].User; u != nil && u.AvatarKey != nil {
				url := s.uploader.GetPublicURL(*u.AvatarKey)
				u.AvatarURL = &url
			}
		}
	}
	return entries, total, totalPages(total, perPage), nil
}
