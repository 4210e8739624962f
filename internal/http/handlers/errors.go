package handlers

import (
	"errors"

	"github.com/crowdfund-ton/backend/internal/http/dto"
	"github.com/crowdfund-ton/backend/internal/ledger"
	"github.com/crowdfund-ton/backend/internal/middleware"
	"github.com/crowdfund-ton/backend/internal/resolver"
	"github.com/crowdfund-ton/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

// statusFor maps service errors to HTTP statuses. Anything unknown is a
// failure talking to the ledger.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidName),
		errors.Is(err, ledger.ErrEmptyTransaction):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrNotOwner):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrReceiptNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, resolver.ErrNotResolved):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrOperationInProgress),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrAlreadyWithdrawn),
		errors.Is(err, services.ErrWithdrawalUnconfirmed),
		errors.Is(err, services.ErrHasDonations),
		errors.Is(err, services.ErrDeadlineNotReached):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrReadOnly):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusBadGateway
}

func writeError(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(dto.ErrorResponse{Error: err.Error(), RequestID: middleware.GetRequestID(c)})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}
