package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/ecommerce-backend/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/handler"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/queue"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/tasks"
)

func newProductRouter(svc *MockCatalogService, enq *MockEnqueuer, uploadDir string) *chi.Mux {
	router := chi.NewRouter()
	handler.NewProductHandler(svc, enq, uploadDir).RegisterRoutes(router)
	return router
}

func multipartCSV(t *testing.T, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func TestProductHandler_handleImportCSV_Success(t *testing.T) {
	uploadDir := filepath.Join(t.TempDir(), "uploads")
	enq := new(MockEnqueuer)
	enq.On("Enqueue", mock.Anything, tasks.ImportProductsFromCSV, mock.MatchedBy(func(args tasks.ImportProductsArgs) bool {
		return strings.HasPrefix(args.CSVPath, uploadDir) && strings.HasSuffix(args.CSVPath, "_products.csv")
	})).Return(&queue.TaskInfo{ID: "task-1"}, nil).Once()

	body, contentType := multipartCSV(t, "products.csv", "text/csv", "product_id,title\np1,Tee\n")
	req := httptest.NewRequest(http.MethodPost, "/products/import-csv", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	newProductRouter(new(MockCatalogService), enq, uploadDir).ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp handler.ImportStartedResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "CSV uploaded successfully. Import started in background.", resp.Message)
	assert.Equal(t, "task-1", resp.TaskID)

	saved, err := os.ReadFile(resp.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "product_id,title\np1,Tee\n", string(saved))
	enq.AssertExpectations(t)
}

func TestProductHandler_handleImportCSV_Rejects(t *testing.T) {
	testCases := []struct {
		name        string
		filename    string
		contentType string
		wantMessage string
	}{
		{name: "wrong_extension", filename: "products.txt", contentType: "text/csv", wantMessage: "Only CSV files are allowed."},
		{name: "uppercase_extension", filename: "products.CSV", contentType: "text/csv", wantMessage: "Only CSV files are allowed."},
		{name: "wrong_content_type", filename: "products.csv", contentType: "application/json", wantMessage: "Invalid file type. Must be a CSV file."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			uploadDir := t.TempDir()
			enq := new(MockEnqueuer)

			body, contentType := multipartCSV(t, tc.filename, tc.contentType, "product_id,title\n")
			req := httptest.NewRequest(http.MethodPost, "/products/import-csv", body)
			req.Header.Set("Content-Type", contentType)
			rr := httptest.NewRecorder()

			newProductRouter(new(MockCatalogService), enq, uploadDir).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, tc.wantMessage), rr.Body.String())
			entries, err := os.ReadDir(uploadDir)
			require.NoError(t, err)
			assert.Empty(t, entries)
			enq.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestProductHandler_handleImportCSV_MissingFile(t *testing.T) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("note", "no file"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/products/import-csv", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()

	newProductRouter(new(MockCatalogService), new(MockEnqueuer), t.TempDir()).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProductHandler_handleImportCSV_EnqueueFails(t *testing.T) {
	enq := new(MockEnqueuer)
	enq.On("Enqueue", mock.Anything, tasks.ImportProductsFromCSV, mock.Anything).Return(nil, errors.New("redis down")).Once()

	body, contentType := multipartCSV(t, "p.csv", "application/vnd.ms-excel", "product_id,title\n")
	req := httptest.NewRequest(http.MethodPost, "/products/import-csv", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	newProductRouter(new(MockCatalogService), enq, t.TempDir()).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	enq.AssertExpectations(t)
}

func TestProductHandler_handleListProducts(t *testing.T) {
	svc := new(MockCatalogService)
	products := []catalog.Product{{ID: uuid.Must(uuid.NewV4()), Title: "Tee"}}
	svc.On("ListProducts", mock.Anything).Return(products, nil).Once()

	rr := httptest.NewRecorder()
	newProductRouter(svc, new(MockEnqueuer), t.TempDir()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var got []catalog.Product
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "Tee", got[0].Title)
	svc.AssertExpectations(t)
}

func TestProductHandler_handleDeleteProduct(t *testing.T) {
	id := uuid.Must(uuid.NewV4())

	testCases := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{name: "success", wantStatus: http.StatusNoContent},
		{name: "not_found", serviceErr: catalog.ErrProductNotFound, wantStatus: http.StatusNotFound},
		{name: "db_error", serviceErr: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockCatalogService)
			svc.On("DeleteProduct", mock.Anything, id).Return(tc.serviceErr).Once()

			rr := httptest.NewRecorder()
			newProductRouter(svc, new(MockEnqueuer), t.TempDir()).ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/products/"+id.String(), nil))

			assert.Equal(t, tc.wantStatus, rr.Code)
			svc.AssertExpectations(t)
		})
	}
}
