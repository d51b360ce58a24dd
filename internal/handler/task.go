package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-backend/internal/queue"
)

type TaskResultReader interface {
	Result(ctx context.Context, id string) (*queue.TaskResult, error)
}

type TaskHandler struct {
	results TaskResultReader
}

func NewTaskHandler(results TaskResultReader) *TaskHandler {
	return &TaskHandler{results: results}
}

func (h *TaskHandler) RegisterRoutes(router chi.Router) {
	router.Get("/tasks/{id}", h.handleGetTask)
}

func (h *TaskHandler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	result, err := h.results.Result(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			respondWithError(w, http.StatusNotFound, "Task not found")
			return
		}
		log.Error().Err(err).Str("task_id", taskID).Msg("Failed to read task result")
		respondWithError(w, http.StatusInternalServerError, "Failed to get task")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
