package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/padel-system/services"
)

type BracketHandler struct {
	bracketService services.BracketService
	logger         *slog.Logger
}

func NewBracketHandler(bs services.BracketService, logger *slog.Logger) *BracketHandler {
	return &BracketHandler{bracketService: bs, logger: logger}
}

// GenerateHandler обрабатывает POST /events/{eventID}/brackets
func (h *BracketHandler) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organizationFrom(w, r, h.logger)
	if !ok {
		return
	}
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	var input services.GenerateBracketInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	bracket, err := h.bracketService.Generate(r.Context(), orgID, eventID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, h.logger, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"bracket": bracket}, nil); err != nil {
		serverErrorResponse(w, r, h.logger, err)
	}
}

// ListMatchesHandler обрабатывает GET /events/{eventID}/matches
func (h *BracketHandler) ListMatchesHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organizationFrom(w, r, h.logger)
	if !ok {
		return
	}
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	matches, err := h.bracketService.ListMatches(r.Context(), orgID, eventID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, h.logger, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, h.logger, err)
	}
}
