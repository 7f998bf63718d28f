package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"subscription-billing/internal/client"
	"subscription-billing/internal/model"
	"subscription-billing/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSessionTTL = time.Hour

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	// _txlock=immediate serializes writers at BEGIN, which is what the
	// concurrency tests lean on.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate",
		filepath.Join(t.TempDir(), "billing_test.db"))

	db, err := client.InitDBClient("sqlite", dsn)
	require.NoError(t, err)
	return db
}

type fakeGateway struct {
	counter atomic.Int64

	mu   sync.Mutex
	paid map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{paid: map[string]bool{}}
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, req *client.CheckoutSessionRequest) (*client.CheckoutSession, error) {
	ref := fmt.Sprintf("sess_%d", f.counter.Add(1))
	return &client.CheckoutSession{
		SessionRef:  ref,
		CheckoutURL: "https://gateway.test/checkout/" + ref,
	}, nil
}

func (f *fakeGateway) GetSession(ctx context.Context, sessionRef string) (*client.SessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &client.SessionStatus{SessionRef: sessionRef, Paid: f.paid[sessionRef]}, nil
}

func (f *fakeGateway) VerifyWebhookSignature(headers http.Header, body []byte) error {
	return nil
}

type recordedNotification struct {
	Event     string
	Recipient string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedNotification
}

func (n *fakeNotifier) Notify(ctx context.Context, event, recipient string, data map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedNotification{Event: event, Recipient: recipient})
}

func (n *fakeNotifier) recorded() []recordedNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]recordedNotification, len(n.events))
	copy(out, n.events)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedPlan(t *testing.T, db *gorm.DB, code string, price int64, credits int) {
	t.Helper()
	require.NoError(t, db.Create(&model.Plan{
		Code:            code,
		Name:            code,
		Price:           decimal.NewFromInt(price),
		Currency:        "USD",
		CreditAllowance: credits,
		Active:          true,
	}).Error)
}

func seedCoupon(t *testing.T, db *gorm.DB, code string, discount, commission int, maxUses *int, expiresAt *time.Time, active bool, referrerID string) {
	t.Helper()
	require.NoError(t, db.Create(&model.DiscountCode{
		Code:              code,
		DiscountPercent:   discount,
		CommissionPercent: commission,
		MaxUses:           maxUses,
		ExpiresAt:         expiresAt,
		Active:            active,
		ReferrerID:        referrerID,
	}).Error)
}

func seedIntent(t *testing.T, db *gorm.DB, sessionRef, userID, planCode string, base decimal.Decimal, discount int, final decimal.Decimal, couponCode, referrerID *string) *model.CheckoutIntent {
	t.Helper()
	intent := &model.CheckoutIntent{
		ID:              sessionRef + "-intent",
		UserID:          userID,
		PlanCode:        planCode,
		BasePrice:       base,
		DiscountPercent: discount,
		FinalPrice:      final,
		CouponCode:      couponCode,
		ReferrerID:      referrerID,
		SessionRef:      sessionRef,
		Status:          model.IntentStatusPending,
	}
	require.NoError(t, db.Create(intent).Error)
	return intent
}

func newActivation(db *gorm.DB, notifier Notifier, defaultCommission int) ActivationService {
	return NewActivationService(
		db,
		repository.NewCheckoutIntentRepository(db),
		repository.NewCompletionEventRepository(db),
		repository.NewSubscriptionRepository(db),
		repository.NewPlanRepository(db),
		repository.NewCouponRepository(db),
		repository.NewCommissionRepository(db),
		notifier,
		defaultCommission,
		testLogger(),
	)
}

func newCheckout(db *gorm.DB, gw client.GatewayClient) CheckoutService {
	return NewCheckoutService(
		db, gw, NewFraudScorer(),
		repository.NewPlanRepository(db),
		repository.NewCheckoutIntentRepository(db),
		repository.NewCouponRepository(db),
		"http://localhost:8080", testLogger(),
	)
}

func newPayout(db *gorm.DB, notifier Notifier) PayoutService {
	return NewPayoutService(
		db,
		repository.NewCommissionRepository(db),
		repository.NewPayoutRepository(db),
		notifier,
		testLogger(),
	)
}
