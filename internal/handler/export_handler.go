package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/recipehub/recipes-api/internal/models"
	appErrors "github.com/recipehub/recipes-api/pkg/errors"
	"github.com/recipehub/recipes-api/pkg/response"
)

type exportOperations interface {
	Request(ctx context.Context, userID string, req models.ExportRequest) (*models.ExportJob, error)
	Status(ctx context.Context, userID, jobID string) (*models.ExportJob, error)
	Download(token string) (string, string, error)
}

// ExportHandler serves the account data export endpoints.
type ExportHandler struct {
	service exportOperations
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc exportOperations) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Request godoc
// @Summary Request an account data export
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body models.ExportRequest true "Export format"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /users/me/exports [post]
func (h *ExportHandler) Request(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}

	job, err := h.service.Request(c.Request.Context(), claims.Subject, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Accepted(c, job)
}

// Status godoc
// @Summary Get export job status
// @Tags Exports
// @Produce json
// @Param jobId path string true "Export job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/me/exports/{jobId} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	job, err := h.service.Status(c.Request.Context(), claims.Subject, c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a completed export
// @Description Serves the export file referenced by a signed token
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}

	path, name, err := h.service.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.FileAttachment(path, name)
}
