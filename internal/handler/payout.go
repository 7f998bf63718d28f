package handler

import (
	"net/http"

	"subscription-billing/internal/dto"
	"subscription-billing/internal/service"

	"github.com/labstack/echo/v4"
)

type PayoutHandler struct {
	payoutService service.PayoutService
}

func NewPayoutHandler(payoutService service.PayoutService) *PayoutHandler {
	return &PayoutHandler{payoutService: payoutService}
}

func (h *PayoutHandler) GetBalance(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := userIDFromContext(c)
	if err != nil {
		return err
	}

	result, err := h.payoutService.Balance(ctx, userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func (h *PayoutHandler) RequestPayout(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := userIDFromContext(c)
	if err != nil {
		return err
	}

	var req dto.RequestPayoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	result, err := h.payoutService.RequestPayout(ctx, userID, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func (h *PayoutHandler) ProcessPayout(c echo.Context) error {
	ctx := c.Request().Context()

	adminID, err := userIDFromContext(c)
	if err != nil {
		return err
	}

	payoutID := c.Param("id")
	if payoutID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing payout id")
	}

	var req dto.ProcessPayoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	result, err := h.payoutService.Process(ctx, payoutID, req.Action, req.Notes, adminID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
