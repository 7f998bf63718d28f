package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"subscription-billing/internal/apperr"
	"subscription-billing/internal/client"
	"subscription-billing/internal/handler"
	authmw "subscription-billing/internal/middleware"
	"subscription-billing/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	echo            *echo.Echo
	checkoutHandler *handler.CheckoutHandler
	webhookHandler  *handler.WebhookHandler
	payoutHandler   *handler.PayoutHandler
}

func NewServer(
	checkoutService service.CheckoutService,
	activationService service.ActivationService,
	payoutService service.PayoutService,
	gateway client.GatewayClient,
	logger *slog.Logger,
	jwtSecret string,
) *Server {
	e := echo.New()
	e.HTTPErrorHandler = httpErrorHandler

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:            e,
		checkoutHandler: handler.NewCheckoutHandler(checkoutService, activationService, gateway),
		webhookHandler:  handler.NewWebhookHandler(gateway, activationService, logger),
		payoutHandler:   handler.NewPayoutHandler(payoutService),
	}

	s.setupRoutes(jwtSecret)
	return s
}

func (s *Server) setupRoutes(jwtSecret string) {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// -------- checkout --------
	checkout := api.Group("/checkout", authmw.JWTAuth(jwtSecret))
	checkout.POST("", s.checkoutHandler.CreateCheckout)
	checkout.POST("/verify", s.checkoutHandler.VerifyCheckout)

	// -------- gateway webhooks --------
	api.POST("/webhooks/gateway", s.webhookHandler.GatewayWebhook)

	// -------- payouts --------
	payouts := api.Group("/payouts", authmw.JWTAuth(jwtSecret))
	payouts.GET("/balance", s.payoutHandler.GetBalance)
	payouts.POST("", s.payoutHandler.RequestPayout)
	payouts.POST("/:id/process", s.payoutHandler.ProcessPayout, authmw.RequireAdmin())
}

// httpErrorHandler maps the error taxonomy onto status codes.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = c.JSON(he.Code, map[string]any{"error": he.Message})
		return
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		status := http.StatusInternalServerError
		switch ae.Kind {
		case apperr.KindValidation:
			status = http.StatusBadRequest
		case apperr.KindConflict:
			status = http.StatusConflict
		case apperr.KindNotFound:
			status = http.StatusNotFound
		case apperr.KindTransient:
			status = http.StatusServiceUnavailable
		}
		body := map[string]any{"error": ae.Msg}
		for k, v := range ae.Fields {
			body[k] = v
		}
		_ = c.JSON(status, body)
		return
	}

	_ = c.JSON(http.StatusInternalServerError, map[string]any{"error": "internal error"})
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
