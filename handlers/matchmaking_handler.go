package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/padel-system/services"
)

type MatchmakingHandler struct {
	matchmakingService services.MatchmakingService
	logger             *slog.Logger
}

func NewMatchmakingHandler(ms services.MatchmakingService, logger *slog.Logger) *MatchmakingHandler {
	return &MatchmakingHandler{matchmakingService: ms, logger: logger}
}

// GenerateRoundHandler обрабатывает POST /matchmaking/rounds
func (h *MatchmakingHandler) GenerateRoundHandler(w http.ResponseWriter, r *http.Request) {
	var input services.GenerateRoundInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	round, err := h.matchmakingService.GenerateRound(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, h.logger, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"round": round}, nil); err != nil {
		serverErrorResponse(w, r, h.logger, err)
	}
}
