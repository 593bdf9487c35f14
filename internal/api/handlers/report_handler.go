package handlers

import (
	"context"
	"errors"

	"ikap-analysis/internal/dto"
	"ikap-analysis/internal/models"
	"ikap-analysis/internal/repository"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ReportService interface {
	Get(ctx context.Context, sessionID string) (*models.Report, error)
	List(ctx context.Context, limit, offset int) ([]*models.Report, error)
	Delete(ctx context.Context, sessionID string) error
}

type ReportHandler struct {
	reports ReportService
	logger  *zap.Logger
}

func NewReportHandler(reports ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		logger:  logger,
	}
}

// GetReport godoc
// @Summary Get a session report
// @Description Returns the statements, taxes and financial analysis state of a session
// @Tags reports
// @Produce json
// @Param id path string true "Session ID"
// @Security Bearer
// @Success 200 {object} dto.ReportResponse
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /reports/{id} [get]
func (h *ReportHandler) GetReport(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	report, err := h.reports.Get(c.UserContext(), sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Report not found",
			})
		}
		h.logger.Error("Failed to get report", zap.String("session_id", sessionID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get report",
		})
	}

	return c.JSON(dto.NewReportResponse(report))
}

// ListReports godoc
// @Summary List reports
// @Description Most recently updated reports first
// @Tags reports
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {object} dto.ReportListResponse
// @Failure 401 {object} map[string]string
// @Router /reports [get]
func (h *ReportHandler) ListReports(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	reports, err := h.reports.List(c.UserContext(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list reports", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list reports",
		})
	}

	resp := dto.ReportListResponse{
		Reports: make([]dto.ReportResponse, len(reports)),
		Limit:   limit,
		Offset:  offset,
	}
	for i, r := range reports {
		resp.Reports[i] = dto.NewReportResponse(r)
	}
	return c.JSON(resp)
}

// DeleteSession godoc
// @Summary Delete a session
// @Description Removes the report, uploaded files and conversation of a session
// @Tags sessions
// @Param id path string true "Session ID"
// @Security Bearer
// @Success 204
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /sessions/{id} [delete]
func (h *ReportHandler) DeleteSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if err := h.reports.Delete(c.UserContext(), sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found",
			})
		}
		h.logger.Error("Failed to delete session", zap.String("session_id", sessionID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete session",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
