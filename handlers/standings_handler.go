package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/services"
)

type StandingsHandler struct {
	standingsService services.StandingsService
	logger           *slog.Logger
}

func NewStandingsHandler(ss services.StandingsService, logger *slog.Logger) *StandingsHandler {
	return &StandingsHandler{standingsService: ss, logger: logger}
}

type standingsFunc func(ctx context.Context, orgID, eventID int, group string) ([]*models.GroupStanding, error)

// GetHandler обрабатывает GET /events/{eventID}/standings/{group}
func (h *StandingsHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.standingsService.Get)
}

// RebuildHandler обрабатывает POST /events/{eventID}/standings/{group}/rebuild
func (h *StandingsHandler) RebuildHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.standingsService.Rebuild)
}

func (h *StandingsHandler) serve(w http.ResponseWriter, r *http.Request, load standingsFunc) {
	orgID, ok := organizationFrom(w, r, h.logger)
	if !ok {
		return
	}
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	group := strings.TrimSpace(chi.URLParam(r, "group"))
	if group == "" {
		badRequestResponse(w, r, h.logger, errors.New("missing group in URL path"))
		return
	}

	rows, err := load(r.Context(), orgID, eventID, group)
	if err != nil {
		mapServiceErrorToHTTP(w, r, h.logger, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"group": group, "standings": rows}, nil); err != nil {
		serverErrorResponse(w, r, h.logger, err)
	}
}
