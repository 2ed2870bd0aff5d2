package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/bulkmail-backend/internal/errors"
	"github.com/unclebandit/bulkmail-backend/internal/middleware"
	"github.com/unclebandit/bulkmail-backend/internal/platform/validation"
)

// APIResponse is the envelope for messages and errors.
type APIResponse struct {
	Message string      `json:"message"`
	Status  string      `json:"status"`
	Data    interface{} `json:"data,omitempty"`
}

// RespondJSON writes payload as JSON with the given status.
func RespondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

func errorResponse(w http.ResponseWriter, message string, statusCode int) {
	RespondJSON(w, statusCode, APIResponse{Message: message, Status: "error"})
}

func successResponse(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	RespondJSON(w, statusCode, APIResponse{Message: message, Status: "success", Data: data})
}

// RespondError maps a service error onto an HTTP status. Unknown errors are
// logged and reported as 500 without their text.
func RespondError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var (
		verr  *appErrors.ValidationError
		vErrs validator.ValidationErrors
	)
	switch {
	case errors.As(err, &verr):
		errorResponse(w, verr.Error(), http.StatusBadRequest)
	case errors.As(err, &vErrs):
		RespondJSON(w, http.StatusBadRequest, validation.ErrorResponse(err))
	case errors.Is(err, appErrors.ErrNotFound):
		errorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, appErrors.ErrInvalidState):
		errorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, appErrors.ErrMissingTemplate), errors.Is(err, appErrors.ErrNoRecipients):
		errorResponse(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, appErrors.ErrDuplicateRecipient), errors.Is(err, appErrors.ErrEmailTaken):
		errorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, appErrors.ErrInvalidCredentials):
		errorResponse(w, "invalid credentials", http.StatusUnauthorized)
	default:
		log.Error().Err(err).Msg("request failed")
		errorResponse(w, "internal server error", http.StatusInternalServerError)
	}
}

// decode reads a JSON body into dst and runs its validate tags.
func decode(w http.ResponseWriter, r *http.Request, log zerolog.Logger, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		errorResponse(w, "invalid body", http.StatusBadRequest)
		return false
	}
	if err := validation.Struct(dst); err != nil {
		RespondError(w, log, err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		errorResponse(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// ownerID is always present behind RequireAuth.
func ownerID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, ok := middleware.OwnerID(r.Context())
	if !ok {
		errorResponse(w, "unauthorized", http.StatusUnauthorized)
	}
	return id, ok
}
