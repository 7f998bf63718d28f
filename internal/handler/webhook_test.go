package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"subscription-billing/internal/apperr"
	"subscription-billing/internal/client"
	"subscription-billing/internal/dto"
	"subscription-billing/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	signatureErr error
	paid         bool
}

func (g *stubGateway) CreateCheckoutSession(ctx context.Context, req *client.CheckoutSessionRequest) (*client.CheckoutSession, error) {
	return &client.CheckoutSession{SessionRef: "sess-new", CheckoutURL: "https://gw.test/c/sess-new"}, nil
}

func (g *stubGateway) GetSession(ctx context.Context, sessionRef string) (*client.SessionStatus, error) {
	return &client.SessionStatus{SessionRef: sessionRef, Paid: g.paid}, nil
}

func (g *stubGateway) VerifyWebhookSignature(headers http.Header, body []byte) error {
	return g.signatureErr
}

type stubActivation struct {
	completeResult *service.CompleteResult
	completeErr    error
	cancelErr      error

	completedWith []string
	canceledWith  []string
}

func (s *stubActivation) Complete(ctx context.Context, source, sessionRef string, meta map[string]any) (*service.CompleteResult, error) {
	s.completedWith = append(s.completedWith, source+":"+sessionRef)
	return s.completeResult, s.completeErr
}

func (s *stubActivation) Cancel(ctx context.Context, sessionRef, reason, actingAs string) error {
	s.canceledWith = append(s.canceledWith, sessionRef+":"+reason)
	return s.cancelErr
}

func (s *stubActivation) CancelExpired(ctx context.Context, ttl time.Duration) (int, error) {
	return 0, nil
}

func postWebhook(t *testing.T, h *WebhookHandler, payload dto.GatewayWebhookEvent) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/gateway", strings.NewReader(string(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	err = h.GatewayWebhook(e.NewContext(req, rec))
	if err != nil {
		e.DefaultHTTPErrorHandler(err, e.NewContext(req, rec))
	}
	return rec
}

func completedEvent(sessionRef string) dto.GatewayWebhookEvent {
	var ev dto.GatewayWebhookEvent
	ev.EventID = "evt-1"
	ev.EventType = "checkout.session.completed"
	ev.Data.SessionRef = sessionRef
	return ev
}

func TestGatewayWebhookCompleted(t *testing.T) {
	activation := &stubActivation{
		completeResult: &service.CompleteResult{AlreadyCompleted: false, SubscriptionID: "sub-1"},
	}
	h := NewWebhookHandler(&stubGateway{}, activation, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := postWebhook(t, h, completedEvent("sess-1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp dto.CompleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.AlreadyCompleted)
	assert.Equal(t, "sub-1", resp.SubscriptionID)
	assert.Equal(t, []string{"webhook:sess-1"}, activation.completedWith)
}

func TestGatewayWebhookDuplicateStillAcks(t *testing.T) {
	activation := &stubActivation{
		completeResult: &service.CompleteResult{AlreadyCompleted: true, SubscriptionID: "sub-1"},
	}
	h := NewWebhookHandler(&stubGateway{}, activation, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := postWebhook(t, h, completedEvent("sess-1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp dto.CompleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.AlreadyCompleted)
}

func TestGatewayWebhookCanceledSessionAcksRejection(t *testing.T) {
	activation := &stubActivation{
		completeErr: apperr.Conflictf("checkout session was canceled"),
	}
	h := NewWebhookHandler(&stubGateway{}, activation, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// The activation is rejected but the delivery must be acked so the
	// gateway stops retrying.
	rec := postWebhook(t, h, completedEvent("sess-dead"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rejected_canceled_session")
}

func TestGatewayWebhookBadSignature(t *testing.T) {
	h := NewWebhookHandler(
		&stubGateway{signatureErr: apperr.Validationf("bad signature")},
		&stubActivation{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	rec := postWebhook(t, h, completedEvent("sess-1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGatewayWebhookExpiredSessionCancels(t *testing.T) {
	activation := &stubActivation{}
	h := NewWebhookHandler(&stubGateway{}, activation, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var ev dto.GatewayWebhookEvent
	ev.EventID = "evt-9"
	ev.EventType = "checkout.session.expired"
	ev.Data.SessionRef = "sess-late"

	rec := postWebhook(t, h, ev)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sess-late:checkout.session.expired"}, activation.canceledWith)
}

func TestGatewayWebhookUnknownEventIgnored(t *testing.T) {
	activation := &stubActivation{}
	h := NewWebhookHandler(&stubGateway{}, activation, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var ev dto.GatewayWebhookEvent
	ev.EventID = "evt-2"
	ev.EventType = "invoice.created"

	rec := postWebhook(t, h, ev)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored")
	assert.Empty(t, activation.completedWith)
	assert.Empty(t, activation.canceledWith)
}
