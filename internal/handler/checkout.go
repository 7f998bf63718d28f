package handler

import (
	"net/http"

	"subscription-billing/internal/client"
	"subscription-billing/internal/dto"
	"subscription-billing/internal/service"

	"github.com/labstack/echo/v4"
)

type CheckoutHandler struct {
	checkoutService   service.CheckoutService
	activationService service.ActivationService
	gateway           client.GatewayClient
}

func NewCheckoutHandler(checkoutService service.CheckoutService, activationService service.ActivationService, gateway client.GatewayClient) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService:   checkoutService,
		activationService: activationService,
		gateway:           gateway,
	}
}

func userIDFromContext(c echo.Context) (string, error) {
	userID, _ := c.Get("user_id").(string)
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}
	return userID, nil
}

func (h *CheckoutHandler) CreateCheckout(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := userIDFromContext(c)
	if err != nil {
		return err
	}

	var req dto.CreateCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	reqCtx := service.RequesterContext{
		UserID:    userID,
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		Email:     c.Request().Header.Get("X-User-Email"),
	}

	result, err := h.checkoutService.CreateCheckout(ctx, userID, &req, reqCtx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// VerifyCheckout is completion signal A: the client confirming its own
// payment right after the gateway redirect.
func (h *CheckoutHandler) VerifyCheckout(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := userIDFromContext(c); err != nil {
		return err
	}

	var req dto.VerifyCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if req.SessionRef == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing session_ref")
	}

	// The client's word is not enough; ask the gateway whether the
	// session really paid before applying any side effects.
	status, err := h.gateway.GetSession(ctx, req.SessionRef)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "could not confirm session with gateway")
	}
	if !status.Paid {
		return echo.NewHTTPError(http.StatusConflict, "session not paid yet")
	}

	result, err := h.activationService.Complete(ctx, service.SourceVerify, req.SessionRef, map[string]any{
		"ip": c.RealIP(),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.CompleteResponse{
		AlreadyCompleted: result.AlreadyCompleted,
		SubscriptionID:   result.SubscriptionID,
	})
}
