package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/padel-system/services"
)

type ScheduleHandler struct {
	scheduleService services.ScheduleService
	agendaService   services.AgendaService
	logger          *slog.Logger
}

func NewScheduleHandler(ss services.ScheduleService, as services.AgendaService, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{scheduleService: ss, agendaService: as, logger: logger}
}

// AutoScheduleHandler обрабатывает POST /events/{eventID}/schedule.
// A dry run answers 200 with the plan, a commit answers 201.
func (h *ScheduleHandler) AutoScheduleHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organizationFrom(w, r, h.logger)
	if !ok {
		return
	}
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	var input services.AutoScheduleInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	result, err := h.scheduleService.AutoSchedule(r.Context(), orgID, eventID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, h.logger, err)
		return
	}

	status := http.StatusCreated
	if result.DryRun {
		status = http.StatusOK
	}
	if err := writeJSON(w, status, jsonResponse{"schedule": result}, nil); err != nil {
		serverErrorResponse(w, r, h.logger, err)
	}
}

// AgendaCheckHandler обрабатывает POST /agenda/check. Denials are regular
// answers here, so the decision always comes back with 200.
func (h *ScheduleHandler) AgendaCheckHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organizationFrom(w, r, h.logger)
	if !ok {
		return
	}

	var input services.AgendaCheckInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	decision, err := h.agendaService.Check(r.Context(), orgID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, h.logger, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"decision": decision}, nil); err != nil {
		serverErrorResponse(w, r, h.logger, err)
	}
}
