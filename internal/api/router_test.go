package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ikap-analysis/internal/api/handlers"
	"ikap-analysis/internal/models"
	"ikap-analysis/internal/repository"
	"ikap-analysis/internal/service"
	"ikap-analysis/internal/worker"
	"ikap-analysis/pkg/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sessionID = "6f1c2a3e-1b2c-4d5e-8f90-123456789abc"

type fakeReports struct {
	reports map[string]*models.Report
	deleted []string
}

func (f *fakeReports) Get(ctx context.Context, id string) (*models.Report, error) {
	r, ok := f.reports[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r, nil
}

func (f *fakeReports) List(ctx context.Context, limit, offset int) ([]*models.Report, error) {
	var out []*models.Report
	for _, r := range f.reports {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeReports) Delete(ctx context.Context, id string) error {
	if _, ok := f.reports[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.reports, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeUploader struct {
	category models.Category
	name     string
	data     []byte
}

func (f *fakeUploader) Upload(ctx context.Context, sid string, category models.Category, fileName, mimeType string, r io.Reader) (*models.File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.category, f.name, f.data = category, fileName, data
	return &models.File{ID: "file-1", SessionID: sid, Category: category, OriginalName: fileName, SizeBytes: int64(len(data))}, nil
}

type fakeTrigger struct {
	categories []models.Category
	err        error
}

func (f *fakeTrigger) Trigger(sid string, categories ...models.Category) error {
	f.categories = categories
	return f.err
}

func setup(t *testing.T) (*fakeReports, *fakeUploader, *fakeTrigger, func(*http.Request) *http.Response) {
	t.Helper()
	text := "готово"
	structured := `{"totals":{}}`
	reports := &fakeReports{reports: map[string]*models.Report{
		sessionID: {
			SessionID:  sessionID,
			Applicant:  models.Applicant{Amount: "50 млн KZT"},
			Statements: models.CategoryState{Status: models.StatusCompleted, Text: &text, Structured: &structured},
			Taxes:      models.CategoryState{Status: models.StatusGenerating, MissingPeriods: []string{"2025"}},
		},
	}}
	uploader := &fakeUploader{}
	trigger := &fakeTrigger{}
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	token, err := jwtManager.GenerateToken("manager-1", "manager")
	require.NoError(t, err)

	app := SetupRouter(
		RouterConfig{BodyLimit: 1 << 20},
		handlers.NewSessionHandler(uploader, trigger, zap.NewNop()),
		handlers.NewReportHandler(reports, zap.NewNop()),
		jwtManager,
		zap.NewNop(),
	)

	do := func(req *http.Request) *http.Response {
		if req.Header.Get("Authorization") == "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}
	return reports, uploader, trigger, do
}

func TestAuthRequired(t *testing.T) {
	_, _, _, do := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+sessionID, nil)
	req.Header.Set("Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, do(req).StatusCode)

	resp := do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetReport(t *testing.T) {
	_, _, _, do := setup(t)

	resp := do(httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+sessionID, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	statements := body["statements"].(map[string]any)
	assert.Equal(t, "completed", statements["status"])
	assert.Equal(t, map[string]any{"totals": map[string]any{}}, statements["structured"])
	taxes := body["taxes"].(map[string]any)
	assert.Equal(t, []any{"2025"}, taxes["missing_periods"])
	assert.Equal(t, "50 млн KZT", body["applicant"].(map[string]any)["amount"])

	resp = do(httptest.NewRequest(http.MethodGet, "/api/v1/reports/unknown", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListAndDelete(t *testing.T) {
	reports, _, _, do := setup(t)

	resp := do(httptest.NewRequest(http.MethodGet, "/api/v1/reports?limit=5", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Reports []map[string]any `json:"reports"`
		Limit   int              `json:"limit"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Reports, 1)
	assert.Equal(t, 5, list.Limit)

	resp = do(httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+sessionID, nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{sessionID}, reports.deleted)

	resp = do(httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+sessionID, nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadFile(t *testing.T) {
	_, uploader, _, do := setup(t)

	upload := func(sid, category string) *http.Response {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", "910_2024.pdf")
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4"))
		require.NoError(t, err)
		require.NoError(t, w.WriteField("category", category))
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/files", sid), &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		return do(req)
	}

	resp := upload(sessionID, "taxes")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, models.CategoryTaxes, uploader.category)
	assert.Equal(t, "910_2024.pdf", uploader.name)
	assert.Equal(t, []byte("%PDF-1.4"), uploader.data)

	assert.Equal(t, http.StatusBadRequest, upload(sessionID, "onepage").StatusCode)
	assert.Equal(t, http.StatusBadRequest, upload("not-a-uuid", "taxes").StatusCode)
}

func TestStartAnalysis(t *testing.T) {
	_, _, trigger, do := setup(t)

	post := func(body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+sessionID+"/analysis", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		return do(req)
	}

	resp := post(`{"categories":["taxes"]}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []models.Category{models.CategoryTaxes}, trigger.categories)

	resp = post("")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []any{"statements", "taxes", "financial"}, body["categories"])

	trigger.err = fmt.Errorf("%w: onepage", service.ErrUnknownCategory)
	assert.Equal(t, http.StatusBadRequest, post(`{"categories":["onepage"]}`).StatusCode)

	trigger.err = fmt.Errorf("failed to queue taxes analysis: %w", worker.ErrQueueFull)
	assert.Equal(t, http.StatusServiceUnavailable, post(`{}`).StatusCode)
}
