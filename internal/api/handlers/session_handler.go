package handlers

import (
	"context"
	"errors"
	"io"
	"strings"

	"ikap-analysis/internal/dto"
	"ikap-analysis/internal/models"
	"ikap-analysis/internal/service"
	"ikap-analysis/internal/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Uploader interface {
	Upload(ctx context.Context, sessionID string, category models.Category, fileName, mimeType string, r io.Reader) (*models.File, error)
}

type AnalysisTrigger interface {
	Trigger(sessionID string, categories ...models.Category) error
}

type SessionHandler struct {
	files    Uploader
	analysis AnalysisTrigger
	logger   *zap.Logger
}

func NewSessionHandler(files Uploader, analysis AnalysisTrigger, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		files:    files,
		analysis: analysis,
		logger:   logger,
	}
}

// UploadFile godoc
// @Summary Upload a session document
// @Description Stores a bank statement, tax declaration or financial statement file
// @Tags sessions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param file formData file true "Document file"
// @Param category formData string true "Category: statements, taxes or financial"
// @Security Bearer
// @Success 201 {object} dto.FileResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /sessions/{id}/files [post]
func (h *SessionHandler) UploadFile(c *fiber.Ctx) error {
	sessionID, ok := sessionParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid session ID",
		})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is required",
		})
	}

	category := models.Category(strings.TrimSpace(c.FormValue("category")))
	if !category.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid category",
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to open file",
		})
	}
	defer src.Close()

	stored, err := h.files.Upload(c.UserContext(), sessionID, category, file.Filename, file.Header.Get("Content-Type"), src)
	if err != nil {
		h.logger.Error("Failed to upload file", zap.String("session_id", sessionID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to upload file",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.NewFileResponse(stored))
}

// StartAnalysis godoc
// @Summary Start report generation
// @Description Queues background analysis of the given categories; all of them when none are given
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body dto.AnalysisRequest false "Categories to analyse"
// @Security Bearer
// @Success 202 {object} dto.AnalysisResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /sessions/{id}/analysis [post]
func (h *SessionHandler) StartAnalysis(c *fiber.Ctx) error {
	sessionID, ok := sessionParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid session ID",
		})
	}

	var req dto.AnalysisRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	categories := make([]models.Category, 0, len(req.Categories))
	for _, name := range req.Categories {
		categories = append(categories, models.Category(strings.TrimSpace(name)))
	}

	if err := h.analysis.Trigger(sessionID, categories...); err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownCategory):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrClosed):
			h.logger.Warn("Analysis queue rejected tasks", zap.String("session_id", sessionID), zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Analysis queue is busy, retry later",
			})
		}
		h.logger.Error("Failed to start analysis", zap.String("session_id", sessionID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start analysis",
		})
	}

	names := req.Categories
	if len(names) == 0 {
		for _, category := range models.Categories {
			names = append(names, string(category))
		}
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.AnalysisResponse{
		SessionID:  sessionID,
		Categories: names,
		Status:     string(models.StatusGenerating),
	})
}

// sessionParam reads the session id path parameter. Session ids are UUIDs.
func sessionParam(c *fiber.Ctx) (string, bool) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return "", false
	}
	return id.String(), true
}
