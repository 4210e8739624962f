package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/crowdfund-ton/backend/internal/executor"
	"github.com/crowdfund-ton/backend/internal/http/dto"
	"github.com/crowdfund-ton/backend/internal/middleware"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/crowdfund-ton/backend/internal/services"
	"github.com/crowdfund-ton/backend/internal/ton"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CampaignHandler struct {
	campaignService *services.CampaignService
	log             *zap.Logger
}

func NewCampaignHandler(campaignService *services.CampaignService, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{campaignService: campaignService, log: log}
}

// campaignID reads the :id param in canonical form.
func campaignID(c *fiber.Ctx) (string, bool) {
	return ton.CanonicalID(c.Params("id"))
}

func viewResponse(view *services.ReconciledView) dto.SuccessResponse {
	return dto.SuccessResponse{OK: true, Data: dto.CampaignViewResponse{
		View:    view,
		Display: dto.NewDisplayAmounts(view.Campaign, view.Balance),
	}}
}

func outcomeResponse(c *fiber.Ctx, out *executor.Outcome) error {
	return c.JSON(dto.SuccessResponse{OK: out.Succeeded(), Data: out})
}

func (h *CampaignHandler) Resolve(c *fiber.Ctx) error {
	view, err := h.campaignService.ResolveAndOpen(c.UserContext(), c.Params("identifier"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(viewResponse(view))
}

func (h *CampaignHandler) GetCampaign(c *fiber.Ctx) error {
	id, ok := campaignID(c)
	if !ok {
		return badRequest(c, "invalid campaign id")
	}
	view, err := h.campaignService.GetReconciledView(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(viewResponse(view))
}

func (h *CampaignHandler) ListCampaigns(c *fiber.Ctx) error {
	filter := models.ListingFilter{
		Query:           c.Query("q"),
		Sort:            c.Query("sort", models.SortNewest),
		IncludeArchived: c.QueryBool("archived", false),
		Limit:           20,
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("status"); v != "" {
		state, ok := models.ParseCampaignState(strings.ToLower(v))
		if !ok {
			return badRequest(c, "status must be one of: active, succeeded, failed")
		}
		filter.State = &state
	}

	items, err := h.campaignService.List(c.UserContext(), filter)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ListResponse{Items: items, Total: len(items)}})
}

func (h *CampaignHandler) CreateCampaign(c *fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if strings.TrimSpace(req.Title) == "" {
		return badRequest(c, "title is required")
	}
	goal, err := models.ParseTON(req.GoalTON)
	if err != nil {
		return badRequest(c, err.Error())
	}

	res, err := h.campaignService.Create(c.UserContext(), services.CreateCampaignInput{
		Goal:        goal,
		DeadlineAt:  req.DeadlineAt,
		Title:       req.Title,
		Description: req.Description,
		ImageURL:    req.ImageURL,
	}, middleware.GetOperatorID(c))
	if err != nil {
		return writeError(c, err)
	}

	status := fiber.StatusOK
	if res.Outcome.Succeeded() {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(dto.SuccessResponse{OK: res.Outcome.Succeeded(), Data: res})
}

func (h *CampaignHandler) Donate(c *fiber.Ctx) error {
	id, ok := campaignID(c)
	if !ok {
		return badRequest(c, "invalid campaign id")
	}
	var req dto.DonateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	amount, err := models.ParseTON(req.AmountTON)
	if err != nil {
		return badRequest(c, err.Error())
	}

	out, err := h.campaignService.Donate(c.UserContext(), id, amount, middleware.GetOperatorID(c))
	if err != nil {
		return writeError(c, err)
	}
	return outcomeResponse(c, out)
}

type campaignOperation func(ctx context.Context, campaignID string, actorID *uuid.UUID) (*executor.Outcome, error)

// mutate runs a body-less operation on the :id campaign.
func (h *CampaignHandler) mutate(c *fiber.Ctx, op campaignOperation) error {
	id, ok := campaignID(c)
	if !ok {
		return badRequest(c, "invalid campaign id")
	}
	out, err := op(c.UserContext(), id, middleware.GetOperatorID(c))
	if err != nil {
		return writeError(c, err)
	}
	return outcomeResponse(c, out)
}

func (h *CampaignHandler) Finalize(c *fiber.Ctx) error {
	return h.mutate(c, h.campaignService.Finalize)
}

func (h *CampaignHandler) Withdraw(c *fiber.Ctx) error {
	return h.mutate(c, h.campaignService.Withdraw)
}

func (h *CampaignHandler) ForceSucceed(c *fiber.Ctx) error {
	return h.mutate(c, h.campaignService.ForceSucceed)
}

func (h *CampaignHandler) Cancel(c *fiber.Ctx) error {
	return h.mutate(c, h.campaignService.Cancel)
}

func (h *CampaignHandler) GetLedger(c *fiber.Ctx) error {
	id, ok := campaignID(c)
	if !ok {
		return badRequest(c, "invalid campaign id")
	}
	l, err := h.campaignService.GetLedger(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: l})
}

func (h *CampaignHandler) Archive(c *fiber.Ctx) error {
	return h.setArchived(c, true)
}

func (h *CampaignHandler) Unarchive(c *fiber.Ctx) error {
	return h.setArchived(c, false)
}

func (h *CampaignHandler) setArchived(c *fiber.Ctx, archived bool) error {
	id, ok := campaignID(c)
	if !ok {
		return badRequest(c, "invalid campaign id")
	}
	if err := h.campaignService.SetArchived(c.UserContext(), id, archived, middleware.GetOperatorID(c)); err != nil {
		h.log.Error("archive tag update failed", zap.String("campaign_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "archive update failed", RequestID: middleware.GetRequestID(c)})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"campaign_id": id, "archived": archived}})
}

func (h *CampaignHandler) SetDisplayName(c *fiber.Ctx) error {
	addr, ok := ton.CanonicalID(c.Params("address"))
	if !ok {
		return badRequest(c, "invalid address")
	}
	var req dto.SetNameRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if err := h.campaignService.SetDisplayName(c.UserContext(), addr, req.Name, middleware.GetOperatorID(c)); err != nil {
		if errors.Is(err, services.ErrInvalidName) {
			return writeError(c, err)
		}
		h.log.Error("display name update failed", zap.String("address", addr), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "display name update failed", RequestID: middleware.GetRequestID(c)})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"address": addr, "name": strings.TrimSpace(req.Name)}})
}
