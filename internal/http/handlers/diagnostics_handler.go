package handlers

import (
	"context"

	"github.com/crowdfund-ton/backend/internal/http/dto"
	"github.com/crowdfund-ton/backend/internal/middleware"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AuditHistory interface {
	GetByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error)
}

type ReportHistory interface {
	Get(ctx context.Context, campaignID string) (*models.ReconciliationReport, error)
	ListPersistent(ctx context.Context, limit int) ([]models.ReconciliationReport, error)
}

// DiagnosticsHandler serves the local audit trail and the mismatch reports
// of the reconciliation sweep. None of it is campaign state.
type DiagnosticsHandler struct {
	audit   AuditHistory
	reports ReportHistory
	log     *zap.Logger
}

func NewDiagnosticsHandler(audit AuditHistory, reports ReportHistory, log *zap.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{audit: audit, reports: reports, log: log}
}

func (h *DiagnosticsHandler) GetAuditTrail(c *fiber.Ctx) error {
	id, ok := campaignID(c)
	if !ok {
		return badRequest(c, "invalid campaign id")
	}
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	logs, err := h.audit.GetByEntity(c.UserContext(), models.EntityCampaign, id, limit, offset)
	if err != nil {
		h.log.Error("failed to read audit trail", zap.String("campaign_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to read audit trail"})
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return c.JSON(dto.ListResponse{Items: logs, Total: len(logs)})
}

func (h *DiagnosticsHandler) GetReport(c *fiber.Ctx) error {
	id, ok := campaignID(c)
	if !ok {
		return badRequest(c, "invalid campaign id")
	}
	rep, err := h.reports.Get(c.UserContext(), id)
	if err != nil {
		h.log.Error("failed to read report", zap.String("campaign_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to read report"})
	}
	if rep == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "no mismatch recorded for campaign", RequestID: middleware.GetRequestID(c)})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: rep})
}

func (h *DiagnosticsHandler) ListReports(c *fiber.Ctx) error {
	reps, err := h.reports.ListPersistent(c.UserContext(), c.QueryInt("limit", 100))
	if err != nil {
		h.log.Error("failed to list reports", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to list reports"})
	}
	if reps == nil {
		reps = []models.ReconciliationReport{}
	}
	return c.JSON(dto.ListResponse{Items: reps, Total: len(reps)})
}
