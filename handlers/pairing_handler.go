package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Dosada05/padel-system/lifecycle"
	"github.com/Dosada05/padel-system/middleware"
	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/services"
)

type PairingHandler struct {
	pairingService services.PairingService
	logger         *slog.Logger
}

func NewPairingHandler(ps services.PairingService, logger *slog.Logger) *PairingHandler {
	return &PairingHandler{pairingService: ps, logger: logger}
}

type createPairingRequest struct {
	// CaptainUserID lets an organizer register a pair on behalf of a player.
	CaptainUserID int                `json:"captain_user_id,omitempty"`
	PaymentMode   models.PaymentMode `json:"payment_mode"`
	JoinMode      models.JoinMode    `json:"join_mode"`
	DeadlineAt    *time.Time         `json:"deadline_at,omitempty"`
}

type versionedRequest struct {
	ExpectedVersion int64 `json:"expected_version"`
}

type claimInviteRequest struct {
	Token           string `json:"token"`
	ExpectedVersion int64  `json:"expected_version"`
}

type paymentRequest struct {
	SlotRole        models.SlotRole `json:"slot_role"`
	CoversBoth      bool            `json:"covers_both"`
	ExpectedVersion int64           `json:"expected_version"`
}

type actionRequest struct {
	Action          string `json:"action"`
	ExpectedVersion int64  `json:"expected_version"`
}

// CreateHandler обрабатывает POST /events/{eventID}/pairings
func (h *PairingHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil || principal.OrganizationID == 0 {
		unauthorizedResponse(w, r, h.logger, "organization required to register a pairing")
		return
	}
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	var req createPairingRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	captain := principal.UserID
	if req.CaptainUserID != 0 && req.CaptainUserID != principal.UserID {
		if principal.Role == models.RolePlayer {
			errorResponse(w, r, h.logger, http.StatusForbidden, "FORBIDDEN", "players can only register themselves")
			return
		}
		captain = req.CaptainUserID
	}

	created, err := h.pairingService.Create(r.Context(), services.CreatePairingInput{
		OrganizationID: principal.OrganizationID,
		TournamentID:   eventID,
		CaptainUserID:  captain,
		PaymentMode:    req.PaymentMode,
		JoinMode:       req.JoinMode,
		DeadlineAt:     req.DeadlineAt,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, h.logger, err)
		return
	}

	env := jsonResponse{"pairing": created.Pairing}
	if created.InviteToken != "" {
		env["invite_token"] = created.InviteToken
	}
	if err := writeJSON(w, http.StatusCreated, env, nil); err != nil {
		serverErrorResponse(w, r, h.logger, err)
	}
}

// GetHandler обрабатывает GET /pairings/{pairingID}
func (h *PairingHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organizationFrom(w, r, h.logger)
	if !ok {
		return
	}
	pairingID, err := getIDFromURL(r, "pairingID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	p, err := h.pairingService.Get(r.Context(), orgID, pairingID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, h.logger, err)
		return
	}
	h.respond(w, r, p)
}

// ClaimHandler обрабатывает POST /pairings/{pairingID}/claim: партнёр принимает приглашение.
func (h *PairingHandler) ClaimHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, h.logger, "authentication required to accept an invite")
		return
	}
	pairingID, err := getIDFromURL(r, "pairingID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	var req claimInviteRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	if req.Token == "" {
		badRequestResponse(w, r, h.logger, errors.New("token is required"))
		return
	}

	p, err := h.pairingService.ClaimInvite(r.Context(), pairingID, req.Token, userID, req.ExpectedVersion)
	if err != nil {
		mapServiceErrorToHTTP(w, r, h.logger, err)
		return
	}
	h.respond(w, r, p)
}

// PaymentHandler обрабатывает POST /pairings/{pairingID}/payments
func (h *PairingHandler) PaymentHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organizationFrom(w, r, h.logger)
	if !ok {
		return
	}
	pairingID, err := getIDFromURL(r, "pairingID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	var req paymentRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	p, err := h.pairingService.RecordPayment(r.Context(), orgID, pairingID, req.SlotRole, req.CoversBoth, req.ExpectedVersion)
	if err != nil {
		mapServiceErrorToHTTP(w, r, h.logger, err)
		return
	}
	h.respond(w, r, p)
}

// ActionHandler обрабатывает POST /pairings/{pairingID}/actions
func (h *PairingHandler) ActionHandler(w http.ResponseWriter, r *http.Request) {
	orgID, pairingID, req, ok := h.readAction(w, r)
	if !ok {
		return
	}
	p, err := h.pairingService.ApplyAction(r.Context(), orgID, pairingID, lifecycle.Action(req.Action), req.ExpectedVersion)
	if err != nil {
		mapServiceErrorToHTTP(w, r, h.logger, err)
		return
	}
	h.respond(w, r, p)
}

// GuaranteeHandler обрабатывает POST /pairings/{pairingID}/guarantee
func (h *PairingHandler) GuaranteeHandler(w http.ResponseWriter, r *http.Request) {
	orgID, pairingID, req, ok := h.readAction(w, r)
	if !ok {
		return
	}
	p, err := h.pairingService.ApplyGuaranteeAction(r.Context(), orgID, pairingID, lifecycle.GuaranteeAction(req.Action), req.ExpectedVersion)
	if err != nil {
		mapServiceErrorToHTTP(w, r, h.logger, err)
		return
	}
	h.respond(w, r, p)
}

// CancelHandler обрабатывает POST /pairings/{pairingID}/cancel
func (h *PairingHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organizationFrom(w, r, h.logger)
	if !ok {
		return
	}
	pairingID, err := getIDFromURL(r, "pairingID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	var req versionedRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	p, err := h.pairingService.Cancel(r.Context(), orgID, pairingID, req.ExpectedVersion)
	if err != nil {
		mapServiceErrorToHTTP(w, r, h.logger, err)
		return
	}
	h.respond(w, r, p)
}

func (h *PairingHandler) readAction(w http.ResponseWriter, r *http.Request) (int, int, actionRequest, bool) {
	var req actionRequest
	orgID, ok := organizationFrom(w, r, h.logger)
	if !ok {
		return 0, 0, req, false
	}
	pairingID, err := getIDFromURL(r, "pairingID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return 0, 0, req, false
	}
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, h.logger, err)
		return 0, 0, req, false
	}
	if req.Action == "" {
		badRequestResponse(w, r, h.logger, errors.New("action is required"))
		return 0, 0, req, false
	}
	return orgID, pairingID, req, true
}

func (h *PairingHandler) respond(w http.ResponseWriter, r *http.Request, p *models.Pairing) {
	if err := writeJSON(w, http.StatusOK, jsonResponse{"pairing": p}, nil); err != nil {
		serverErrorResponse(w, r, h.logger, err)
	}
}
