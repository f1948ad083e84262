package handlers

import (
	"net/http"

	"github.com/bracketry/tournament-platform/services"
)

type RankingHandler struct {
	rankingService services.RankingService
}

func NewRankingHandler(rs services.RankingService) *RankingHandler {
	return &RankingHandler{rankingService: rs}
}

// ListHandler обрабатывает GET /rankings
func (h *RankingHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	page, perPage := getPageParams(r)

	entries, total, pages, err := h.rankingService.GlobalRankings(r.Context(), page, perPage)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{
		"rankings":     entries,
		"total":        total,
		"pages":        pages,
		"current_page": page,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
