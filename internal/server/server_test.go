package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"subscription-billing/internal/client"
	"subscription-billing/internal/dto"
	"subscription-billing/internal/model"
	"subscription-billing/internal/repository"
	"subscription-billing/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeGateway struct {
	counter atomic.Int64
	paid    atomic.Value // session ref the gateway reports as paid
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, req *client.CheckoutSessionRequest) (*client.CheckoutSession, error) {
	ref := fmt.Sprintf("sess_%d", f.counter.Add(1))
	return &client.CheckoutSession{SessionRef: ref, CheckoutURL: "https://gw.test/c/" + ref}, nil
}

func (f *fakeGateway) GetSession(ctx context.Context, sessionRef string) (*client.SessionStatus, error) {
	paid, _ := f.paid.Load().(string)
	return &client.SessionStatus{SessionRef: sessionRef, Paid: paid == sessionRef}, nil
}

func (f *fakeGateway) VerifyWebhookSignature(headers http.Header, body []byte) error {
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakeGateway) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate",
		filepath.Join(t.TempDir(), "server_test.db"))
	db, err := client.InitDBClient("sqlite", dsn)
	require.NoError(t, err)

	require.NoError(t, db.Create(&model.Plan{
		Code: "basic", Name: "Basic",
		Price: decimal.NewFromInt(29), Currency: "USD",
		CreditAllowance: 3, Active: true,
	}).Error)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := service.NewLogNotifier(logger)
	gw := &fakeGateway{}

	planRepo := repository.NewPlanRepository(db)
	intentRepo := repository.NewCheckoutIntentRepository(db)
	couponRepo := repository.NewCouponRepository(db)

	checkoutService := service.NewCheckoutService(
		db, gw, service.NewFraudScorer(),
		planRepo, intentRepo, couponRepo,
		"http://localhost:8080", logger,
	)
	activationService := service.NewActivationService(
		db, intentRepo,
		repository.NewCompletionEventRepository(db),
		repository.NewSubscriptionRepository(db),
		planRepo, couponRepo,
		repository.NewCommissionRepository(db),
		notifier, 5, logger,
	)
	payoutService := service.NewPayoutService(
		db,
		repository.NewCommissionRepository(db),
		repository.NewPayoutRepository(db),
		notifier, logger,
	)

	return NewServer(checkoutService, activationService, payoutService, gw, logger, testSecret), gw
}

func signToken(t *testing.T, subject, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": role,
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doJSON(s *Server, method, path, token string, payload any) *httptest.ResponseRecorder {
	var body string
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = string(b)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(s, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckoutRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(s, http.MethodPost, "/api/checkout", "",
		dto.CreateCheckoutRequest{PlanCode: "basic"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutAndVerifyFlow(t *testing.T) {
	s, gw := newTestServer(t)
	token := signToken(t, "user-1", "subscriber")

	rec := doJSON(s, http.MethodPost, "/api/checkout", token,
		dto.CreateCheckoutRequest{PlanCode: "basic"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created dto.CreateCheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionRef)

	// Verify before the gateway reports payment: conflict.
	rec = doJSON(s, http.MethodPost, "/api/checkout/verify", token,
		dto.VerifyCheckoutRequest{SessionRef: created.SessionRef})
	assert.Equal(t, http.StatusConflict, rec.Code)

	gw.paid.Store(created.SessionRef)

	rec = doJSON(s, http.MethodPost, "/api/checkout/verify", token,
		dto.VerifyCheckoutRequest{SessionRef: created.SessionRef})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var first dto.CompleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.False(t, first.AlreadyCompleted)
	assert.NotEmpty(t, first.SubscriptionID)

	// Retrying the verify call is idempotent.
	rec = doJSON(s, http.MethodPost, "/api/checkout/verify", token,
		dto.VerifyCheckoutRequest{SessionRef: created.SessionRef})
	require.Equal(t, http.StatusOK, rec.Code)

	var second dto.CompleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.True(t, second.AlreadyCompleted)
	assert.Equal(t, first.SubscriptionID, second.SubscriptionID)
}

func TestCheckoutUnknownPlanMapsToBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	token := signToken(t, "user-1", "subscriber")

	rec := doJSON(s, http.MethodPost, "/api/checkout", token,
		dto.CreateCheckoutRequest{PlanCode: "enterprise"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessPayoutRequiresAdminRole(t *testing.T) {
	s, _ := newTestServer(t)
	token := signToken(t, "user-1", "subscriber")

	rec := doJSON(s, http.MethodPost, "/api/payouts/some-id/process", token,
		dto.ProcessPayoutRequest{Action: "approve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProcessPayoutUnknownIDMapsToNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	token := signToken(t, "admin-1", "admin")

	rec := doJSON(s, http.MethodPost, "/api/payouts/missing/process", token,
		dto.ProcessPayoutRequest{Action: "approve"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
