package models

// RankingEntry — строка глобального рейтинга, агрегированная по леджерам
// завершённых турниров. AverageRank равен nil, если у игрока нет ни одного
// зафиксированного посева.
type RankingEntry struct {
	UserID                  int      `json:"user_id"`
	TournamentsParticipated int      `json:"tournaments_participated"`
	AverageRank             *float64 `json:"average_rank,omitempty"`

	User *User `json:"user,omitempty"`
}
