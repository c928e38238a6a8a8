package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Dosada05/padel-system/brackets"
	"github.com/Dosada05/padel-system/lifecycle"
	"github.com/Dosada05/padel-system/middleware"
	"github.com/Dosada05/padel-system/services"
	"github.com/Dosada05/padel-system/standings"
)

type jsonResponse map[string]interface{}

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err) // ошибка программиста: передан не указатель
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

// errorResponse writes the error envelope. code is the stable machine code, empty when there is none.
func errorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, code string, message interface{}) {
	env := jsonResponse{"error": message}
	if code != "" {
		env["code"] = code
	}
	if err := writeJSON(w, status, env, nil); err != nil {
		logger.Error("failed to write error response", slog.String("path", r.URL.Path), slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	logger.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	message := "the server encountered a problem and could not process your request"
	errorResponse(w, r, logger, http.StatusInternalServerError, "", message)
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	errorResponse(w, r, logger, http.StatusBadRequest, "BAD_REQUEST", err.Error())
}

func unauthorizedResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, message string) {
	errorResponse(w, r, logger, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// mapServiceErrorToHTTP преобразует ошибки сервисного слоя в HTTP-ответы
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := services.ErrorCode(err)

	var conflict *services.AgendaConflictError
	if errors.As(err, &conflict) {
		status := http.StatusConflict
		if errors.Is(err, services.ErrAgendaDataUnavailable) {
			status = http.StatusServiceUnavailable
		}
		env := jsonResponse{"error": err.Error(), "code": code, "match_id": conflict.MatchID, "decision": conflict.Decision}
		if wErr := writeJSON(w, status, env, nil); wErr != nil {
			serverErrorResponse(w, r, logger, wErr)
		}
		return
	}

	switch {
	case errors.Is(err, services.ErrNotFound):
		errorResponse(w, r, logger, http.StatusNotFound, code, "the requested resource could not be found")

	// Недоступность данных повестки: отказ, а не конфликт
	case errors.Is(err, services.ErrAgendaDataUnavailable):
		logger.Warn("agenda data unavailable", slog.String("path", r.URL.Path), slog.Any("error", err))
		errorResponse(w, r, logger, http.StatusServiceUnavailable, code, err.Error())

	// Конфликты
	case errors.Is(err, services.ErrMatchConflict),
		errors.Is(err, services.ErrPairingConflict),
		errors.Is(err, services.ErrAgendaConflict),
		errors.Is(err, services.ErrTournamentAlreadyStarted),
		errors.Is(err, services.ErrPairingTerminalStatus),
		errors.Is(err, lifecycle.ErrTerminalStatus),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, services.ErrPartnerSlotTaken),
		errors.Is(err, services.ErrMatchFinished),
		errors.Is(err, services.ErrMatchNotReady):
		if code == "" {
			code = "CONFLICT"
		}
		errorResponse(w, r, logger, http.StatusConflict, code, err.Error())

	// Невалидные данные / бизнес-правила
	case errors.Is(err, services.ErrValidationFailed),
		errors.Is(err, services.ErrInvalidScore),
		errors.Is(err, services.ErrNotEnoughTeams),
		errors.Is(err, brackets.ErrInvalidBracketSize),
		errors.Is(err, brackets.ErrBracketTooSmall),
		errors.Is(err, standings.ErrUnknownRule):
		if code == "" {
			code = "VALIDATION_FAILED"
		}
		errorResponse(w, r, logger, http.StatusUnprocessableEntity, code, err.Error())

	// Ошибки авторизации/доступа
	case errors.Is(err, services.ErrAuthenticationFailed),
		errors.Is(err, services.ErrInvalidInviteToken):
		if code == "" {
			code = "UNAUTHORIZED"
		}
		errorResponse(w, r, logger, http.StatusUnauthorized, code, err.Error())
	case errors.Is(err, services.ErrForbiddenOperation),
		errors.Is(err, services.ErrRegistrationNotOpen):
		errorResponse(w, r, logger, http.StatusForbidden, "FORBIDDEN", err.Error())

	case errors.Is(err, services.ErrRateLimited):
		errorResponse(w, r, logger, http.StatusTooManyRequests, code, err.Error())

	default:
		serverErrorResponse(w, r, logger, err)
	}
}

func getIDFromURL(r *http.Request, paramName string) (int, error) {
	idStr := chi.URLParam(r, paramName)
	if idStr == "" {
		return 0, fmt.Errorf("missing %s in URL path", paramName)
	}

	id, err := strconv.Atoi(idStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %q", paramName, idStr)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid %s value: %d", paramName, id)
	}
	return id, nil
}

// organizationFrom returns the organization of an authenticated organizer request.
func organizationFrom(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (int, bool) {
	orgID, err := middleware.GetOrgIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, logger, "organization required")
		return 0, false
	}
	return orgID, true
}
