package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipehub/recipes-api/internal/middleware"
	"github.com/recipehub/recipes-api/internal/models"
	appErrors "github.com/recipehub/recipes-api/pkg/errors"
)

type exportServiceMock struct {
	job       *models.ExportJob
	jobErr    error
	path      string
	name      string
	pathErr   error
	requested string
}

func (m *exportServiceMock) Request(ctx context.Context, userID string, req models.ExportRequest) (*models.ExportJob, error) {
	m.requested = userID
	return m.job, m.jobErr
}

func (m *exportServiceMock) Status(ctx context.Context, userID, jobID string) (*models.ExportJob, error) {
	return m.job, m.jobErr
}

func (m *exportServiceMock) Download(token string) (string, string, error) {
	return m.path, m.name, m.pathErr
}

func TestExportHandlerRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &exportServiceMock{job: &models.ExportJob{ID: "j1", UserID: "u1", Status: models.ExportStatusPending}}
	handler := NewExportHandler(mockSvc)

	payload, _ := json.Marshal(models.ExportRequest{Format: models.ExportFormatCSV})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/users/me/exports", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, testClaims("u1"))

	handler.Request(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "u1", mockSvc.requested)
}

func TestExportHandlerRequestWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&exportServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/users/me/exports", bytes.NewBufferString(`{"format":"csv"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Request(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExportHandlerStatusNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &exportServiceMock{jobErr: appErrors.ErrNotFound}
	handler := NewExportHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/users/me/exports/ghost", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "jobId", Value: "ghost"}}
	c.Set(middleware.ContextUserKey, testClaims("u1"))

	handler.Status(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportHandlerDownloadRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&exportServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/exports/download", nil)
	c.Request = req

	handler.Download(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportHandlerDownloadInvalidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &exportServiceMock{pathErr: appErrors.ErrUnauthorized}
	handler := NewExportHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/exports/download?token=forged", nil)
	c.Request = req

	handler.Download(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
