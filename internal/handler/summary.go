package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-backend/internal/queue"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/summary"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/tasks"
)

type SummaryReader interface {
	Current(ctx context.Context) (*summary.OrderSummary, error)
}

type TaskAcceptedResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type SummaryHandler struct {
	reader   SummaryReader
	enqueuer queue.Enqueuer
}

func NewSummaryHandler(reader SummaryReader, enqueuer queue.Enqueuer) *SummaryHandler {
	return &SummaryHandler{reader: reader, enqueuer: enqueuer}
}

// RegisterRoutes shares /orders with OrderHandler; chi matches the static
// summary segment ahead of /orders/{id}.
func (h *SummaryHandler) RegisterRoutes(router chi.Router) {
	router.Get("/orders/summary", h.handleTriggerSummary)
	router.Get("/orders/summary/current", h.handleCurrentSummary)
}

// handleTriggerSummary enqueues a refresh and returns immediately.
func (h *SummaryHandler) handleTriggerSummary(w http.ResponseWriter, r *http.Request) {
	info, err := tasks.EnqueueOrderSummary(r.Context(), h.enqueuer)
	if err != nil {
		log.Error().Err(err).Msg("Failed to enqueue order summary")
		respondWithError(w, http.StatusInternalServerError, "Failed to start order summary")
		return
	}

	respondWithJSON(w, http.StatusAccepted, TaskAcceptedResponse{TaskID: info.ID, Status: "processing"})
}

func (h *SummaryHandler) handleCurrentSummary(w http.ResponseWriter, r *http.Request) {
	current, err := h.reader.Current(r.Context())
	if err != nil {
		statusCode := mapErrorToStatusCode(err)
		if errors.Is(err, summary.ErrSummaryNotFound) {
			respondWithError(w, statusCode, "Order summary has not been computed yet")
			return
		}
		log.Error().Err(err).Msg("Failed to read order summary")
		respondWithError(w, statusCode, "Failed to get order summary")
		return
	}

	respondWithJSON(w, http.StatusOK, current)
}
