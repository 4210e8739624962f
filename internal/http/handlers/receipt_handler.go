package handlers

import (
	"github.com/crowdfund-ton/backend/internal/http/dto"
	"github.com/crowdfund-ton/backend/internal/middleware"
	"github.com/crowdfund-ton/backend/internal/services"
	"github.com/crowdfund-ton/backend/internal/ton"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ReceiptHandler struct {
	campaignService *services.CampaignService
	log             *zap.Logger
}

func NewReceiptHandler(campaignService *services.CampaignService, log *zap.Logger) *ReceiptHandler {
	return &ReceiptHandler{campaignService: campaignService, log: log}
}

func (h *ReceiptHandler) GetReceipt(c *fiber.Ctx) error {
	id, ok := ton.CanonicalID(c.Params("id"))
	if !ok {
		return badRequest(c, "invalid receipt id")
	}
	r, err := h.campaignService.GetReceipt(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: r})
}

// ListReceipts serves GET /receipts?donor=<address>.
func (h *ReceiptHandler) ListReceipts(c *fiber.Ctx) error {
	donor, ok := ton.CanonicalID(c.Query("donor"))
	if !ok {
		return badRequest(c, "donor must be a valid address")
	}
	items, err := h.campaignService.ListReceipts(c.UserContext(), donor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ListResponse{Items: items, Total: len(items)}})
}

func (h *ReceiptHandler) Refund(c *fiber.Ctx) error {
	id, ok := ton.CanonicalID(c.Params("id"))
	if !ok {
		return badRequest(c, "invalid receipt id")
	}

	var req dto.RefundRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request")
		}
	}
	campaignID := ""
	if req.CampaignID != "" {
		if campaignID, ok = ton.CanonicalID(req.CampaignID); !ok {
			return badRequest(c, "invalid campaign_id")
		}
	}

	out, err := h.campaignService.Refund(c.UserContext(), id, campaignID, middleware.GetOperatorID(c))
	if err != nil {
		return writeError(c, err)
	}
	return outcomeResponse(c, out)
}
