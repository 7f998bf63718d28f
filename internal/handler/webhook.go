package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"subscription-billing/internal/apperr"
	"subscription-billing/internal/client"
	"subscription-billing/internal/dto"
	"subscription-billing/internal/service"

	"github.com/labstack/echo/v4"
)

type WebhookHandler struct {
	gateway           client.GatewayClient
	activationService service.ActivationService
	logger            *slog.Logger
}

func NewWebhookHandler(gateway client.GatewayClient, activationService service.ActivationService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		gateway:           gateway,
		activationService: activationService,
		logger:            logger,
	}
}

// GatewayWebhook is completion signal B. The gateway redelivers until
// it sees a 2xx, so every logically-handled outcome must ack --
// including the losing side of the race and signals for sessions that
// were already canceled.
func (h *WebhookHandler) GatewayWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read webhook body")
	}

	if err := h.gateway.VerifyWebhookSignature(c.Request().Header, body); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook signature")
	}

	var event dto.GatewayWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "decode webhook payload")
	}

	switch event.EventType {
	case "checkout.session.completed":
		return h.handleCompleted(c, &event)
	case "checkout.session.expired", "checkout.session.failed":
		return h.handleCanceled(c, &event)
	default:
		// Unsubscribed event kinds are acked and dropped.
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func (h *WebhookHandler) handleCompleted(c echo.Context, event *dto.GatewayWebhookEvent) error {
	ctx := c.Request().Context()

	result, err := h.activationService.Complete(ctx, service.SourceWebhook, event.Data.SessionRef, map[string]any{
		"delivery_id": event.EventID,
		"event_type":  event.EventType,
	})
	if err != nil {
		if apperr.IsConflict(err) {
			// Canceled session: reject the activation but ack the
			// delivery, otherwise the gateway retries forever.
			h.logger.WarnContext(ctx, "completion signal for canceled session",
				slog.String("session_ref", event.Data.SessionRef),
				slog.String("delivery_id", event.EventID),
			)
			return c.JSON(http.StatusOK, map[string]string{"status": "rejected_canceled_session"})
		}
		return err
	}

	return c.JSON(http.StatusOK, &dto.CompleteResponse{
		AlreadyCompleted: result.AlreadyCompleted,
		SubscriptionID:   result.SubscriptionID,
	})
}

func (h *WebhookHandler) handleCanceled(c echo.Context, event *dto.GatewayWebhookEvent) error {
	ctx := c.Request().Context()

	reason := event.Data.Reason
	if reason == "" {
		reason = event.EventType
	}

	err := h.activationService.Cancel(ctx, event.Data.SessionRef, reason, "gateway")
	if err != nil {
		if apperr.IsConflict(err) {
			// Expiry raced an activation; money is accounted for, ack
			// and move on.
			return c.JSON(http.StatusOK, map[string]string{"status": "already_active"})
		}
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "canceled"})
}
