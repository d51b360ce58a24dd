package handler

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-backend/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/queue"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/tasks"
)

const maxUploadSize = 32 << 20

var allowedCSVContentTypes = map[string]bool{
	"text/csv":                 true,
	"application/vnd.ms-excel": true,
}

type ImportStartedResponse struct {
	Message  string `json:"message"`
	TaskID   string `json:"task_id"`
	FilePath string `json:"file_path"`
}

type ProductHandler struct {
	service   catalog.Service
	enqueuer  queue.Enqueuer
	uploadDir string
}

func NewProductHandler(service catalog.Service, enqueuer queue.Enqueuer, uploadDir string) *ProductHandler {
	return &ProductHandler{service: service, enqueuer: enqueuer, uploadDir: uploadDir}
}

func (h *ProductHandler) RegisterRoutes(router chi.Router) {
	router.Get("/products", h.handleListProducts)
	router.Delete("/products/{id}", h.handleDeleteProduct)
	router.Post("/products/import-csv", h.handleImportCSV)
}

func (h *ProductHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list products via service")
		respondWithError(w, http.StatusInternalServerError, "Failed to list products")
		return
	}
	respondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteProduct(r.Context(), productID); err != nil {
		statusCode := mapErrorToStatusCode(err)
		log.Error().Err(err).Stringer("product_id", productID).Msg("Failed to delete product via service")
		respondWithError(w, statusCode, clientMessage(err, statusCode, "Failed to delete product"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandler) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		log.Warn().Err(err).Msg("Failed to parse multipart form")
		respondWithError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !strings.HasSuffix(filename, ".csv") {
		respondWithError(w, http.StatusBadRequest, "Only CSV files are allowed.")
		return
	}
	if !allowedCSVContentTypes[header.Header.Get("Content-Type")] {
		respondWithError(w, http.StatusBadRequest, "Invalid file type. Must be a CSV file.")
		return
	}

	filePath, err := h.saveUpload(file, filename)
	if err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("Failed to store uploaded CSV")
		respondWithError(w, http.StatusInternalServerError, "Failed to upload CSV")
		return
	}

	info, err := tasks.EnqueueImportProducts(r.Context(), h.enqueuer, filePath)
	if err != nil {
		log.Error().Err(err).Str("file_path", filePath).Msg("Failed to enqueue product import")
		respondWithError(w, http.StatusInternalServerError, "Failed to upload CSV")
		return
	}

	respondWithJSON(w, http.StatusAccepted, ImportStartedResponse{
		Message:  "CSV uploaded successfully. Import started in background.",
		TaskID:   info.ID,
		FilePath: filePath,
	})
}

func (h *ProductHandler) saveUpload(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	filePath := filepath.Join(h.uploadDir, uuid.NewString()+"_"+filename)
	dst, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filePath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(filePath)
		return "", fmt.Errorf("failed to write %s: %w", filePath, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", filePath, err)
	}
	return filePath, nil
}
