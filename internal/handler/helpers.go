package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-backend/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/order"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/queue"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/summary"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/user"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

// respondWithError sends {"error": message}.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			details[fe.Field()] = "is required"
		case "email":
			details[fe.Field()] = "must be a valid email"
		case "min", "gte", "gt":
			details[fe.Field()] = fmt.Sprintf("must be at least %s", fe.Param())
		case "oneof":
			details[fe.Field()] = fmt.Sprintf("must be one of [%s]", fe.Param())
		default:
			details[fe.Field()] = fmt.Sprintf("failed on %s", fe.Tag())
		}
	}
	return details
}

// decodeAndValidate decodes a JSON body into dst and validates it, writing the
// 400 response itself. It reports whether the handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload: %v", err))
		return false
	}

	err := validate.Struct(dst)
	if err == nil {
		return true
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:   "Validation failed",
			Details: formatValidationErrors(validationErrors),
		})
	} else {
		log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
		respondWithError(w, http.StatusInternalServerError, "Internal validation error")
	}
	return false
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, name)
	id, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str(name, idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return id, true
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, user.ErrNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, summary.ErrSummaryNotFound),
		errors.Is(err, queue.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, user.ErrEmailExists),
		errors.Is(err, user.ErrPhoneExists),
		errors.Is(err, order.ErrDuplicateSession),
		errors.Is(err, order.ErrInvalidStatusTransition):
		return http.StatusConflict
	case errors.Is(err, order.ErrInvalidOrder),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, user.ErrEmptyPassword):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrReferenceNotFound):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage hides internal error text behind fallback for 5xx responses.
func clientMessage(err error, code int, fallback string) string {
	if code >= http.StatusInternalServerError {
		return fallback
	}
	return err.Error()
}
