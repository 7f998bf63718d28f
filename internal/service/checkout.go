package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"subscription-billing/internal/apperr"
	"subscription-billing/internal/client"
	"subscription-billing/internal/dto"
	"subscription-billing/internal/model"
	"subscription-billing/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CheckoutService interface {
	CreateCheckout(ctx context.Context, userID string, req *dto.CreateCheckoutRequest, reqCtx RequesterContext) (*dto.CreateCheckoutResponse, error)
	ValidateCoupon(ctx context.Context, code string) (*model.DiscountCode, error)
}

type checkoutServiceImpl struct {
	db             *gorm.DB
	gateway        client.GatewayClient
	fraud          FraudScorer
	planRepo       repository.PlanRepository
	intentRepo     repository.CheckoutIntentRepository
	couponRepo     repository.CouponRepository
	serviceBaseURL string
	logger         *slog.Logger
}

func NewCheckoutService(
	db *gorm.DB,
	gateway client.GatewayClient,
	fraud FraudScorer,
	planRepo repository.PlanRepository,
	intentRepo repository.CheckoutIntentRepository,
	couponRepo repository.CouponRepository,
	serviceBaseURL string,
	logger *slog.Logger,
) CheckoutService {
	return &checkoutServiceImpl{
		db:             db,
		gateway:        gateway,
		fraud:          fraud,
		planRepo:       planRepo,
		intentRepo:     intentRepo,
		couponRepo:     couponRepo,
		serviceBaseURL: serviceBaseURL,
		logger:         logger,
	}
}

// ApplyDiscount computes the final price. Discounts of 100% or more
// are a hard error no matter how the code was configured: a checkout
// must always charge something.
func ApplyDiscount(basePrice decimal.Decimal, discountPercent int) (decimal.Decimal, error) {
	if discountPercent < 0 {
		return decimal.Zero, apperr.Validationf("discount percent must not be negative")
	}
	if discountPercent >= 100 {
		return decimal.Zero, apperr.Validationf("discount percent %d not allowed", discountPercent)
	}

	final := basePrice.
		Mul(decimal.NewFromInt(int64(100 - discountPercent))).
		Div(decimal.NewFromInt(100)).
		Round(2)

	if !final.IsPositive() {
		return decimal.Zero, apperr.Validationf("final price must be positive")
	}
	return final, nil
}

// ValidateCoupon checks a code in the order users expect the error
// messages: existence, active flag, expiry, usage cap. The active
// flag is advisory; expiry and cap are authoritative either way.
func (s *checkoutServiceImpl) ValidateCoupon(ctx context.Context, code string) (*model.DiscountCode, error) {
	dc, err := s.couponRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Validationf("discount code not found")
		}
		return nil, apperr.Transient("look up discount code", err)
	}

	if !dc.Active {
		return nil, apperr.Validationf("discount code is inactive")
	}
	if dc.ExpiresAt != nil && dc.ExpiresAt.Before(time.Now()) {
		return nil, apperr.Validationf("discount code has expired")
	}
	if dc.MaxUses != nil && dc.CurrentUseCount >= *dc.MaxUses {
		return nil, apperr.Validationf("discount code usage limit reached")
	}

	return dc, nil
}

func (s *checkoutServiceImpl) CreateCheckout(ctx context.Context, userID string, req *dto.CreateCheckoutRequest, reqCtx RequesterContext) (*dto.CreateCheckoutResponse, error) {
	plan, err := s.planRepo.FindActiveByCode(ctx, req.PlanCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Validationf("unknown plan %q", req.PlanCode)
		}
		return nil, apperr.Transient("look up plan", err)
	}

	var (
		coupon     *model.DiscountCode
		assessment FraudAssessment
	)
	discountPercent := 0
	couponCode := strings.TrimSpace(req.CouponCode)

	if couponCode != "" {
		coupon, err = s.ValidateCoupon(ctx, couponCode)
		if err != nil {
			return nil, err
		}

		stats, err := s.usageStats(ctx, couponCode, reqCtx)
		if err != nil {
			return nil, apperr.Transient("gather coupon usage stats", err)
		}

		assessment = s.fraud.Assess(couponCode, reqCtx, stats)
		if assessment.Action == model.FraudActionDeny {
			return nil, apperr.Validationf("discount code rejected").
				WithField("risk_score", assessment.RiskScore).
				WithField("reasons", assessment.Reasons)
		}
		discountPercent = coupon.DiscountPercent
	}

	finalPrice, err := ApplyDiscount(plan.Price, discountPercent)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, &client.CheckoutSessionRequest{
		Amount:      finalPrice,
		Currency:    plan.Currency,
		Description: fmt.Sprintf("Subscription %s", plan.Code),
		ReturnURL:   s.serviceBaseURL + "/api/checkout/success",
	})
	if err != nil {
		return nil, apperr.Transient("gateway create checkout session", err)
	}

	intent := &model.CheckoutIntent{
		ID:              uuid.NewString(),
		UserID:          userID,
		PlanCode:        plan.Code,
		BasePrice:       plan.Price,
		DiscountPercent: discountPercent,
		FinalPrice:      finalPrice,
		SessionRef:      session.SessionRef,
		Status:          model.IntentStatusPending,
	}
	if coupon != nil {
		intent.CouponCode = &coupon.Code
		intent.ReferrerID = &coupon.ReferrerID
	}

	// The intent, the usage increment, and the usage record land
	// together or not at all. The increment is the guard: when the cap
	// is already taken by a concurrent checkout, the whole creation
	// fails and no intent exists.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.intentRepo.Create(ctx, tx, intent); err != nil {
			return fmt.Errorf("store checkout intent: %w", err)
		}

		if coupon == nil {
			return nil
		}

		claimed, err := s.couponRepo.ClaimUse(ctx, tx, coupon.Code)
		if err != nil {
			return fmt.Errorf("increment coupon use count: %w", err)
		}
		if !claimed {
			return apperr.Validationf("discount code usage limit reached")
		}

		usage := &model.CouponUsage{
			ID:               uuid.NewString(),
			Code:             coupon.Code,
			CheckoutIntentID: intent.ID,
			UserID:           userID,
			IP:               reqCtx.IP,
			RiskScore:        assessment.RiskScore,
			RiskAction:       assessment.Action,
			RiskReasons:      strings.Join(assessment.Reasons, "; "),
		}
		if err := s.couponRepo.RecordUsage(ctx, tx, usage); err != nil {
			return fmt.Errorf("record coupon usage: %w", err)
		}
		return nil
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, apperr.Transient("create checkout", err)
	}

	if assessment.Action == model.FraudActionFlag {
		s.logger.WarnContext(ctx, "discounted checkout flagged for review",
			slog.String("code", couponCode),
			slog.String("user_id", userID),
			slog.Int("risk_score", assessment.RiskScore),
		)
	}

	return &dto.CreateCheckoutResponse{
		SessionRef:  session.SessionRef,
		CheckoutURL: session.CheckoutURL,
		FinalPrice:  finalPrice,
		Currency:    plan.Currency,
	}, nil
}

func (s *checkoutServiceImpl) usageStats(ctx context.Context, code string, reqCtx RequesterContext) (CodeUsageStats, error) {
	byUser, err := s.couponRepo.CountUsesByUser(ctx, code, reqCtx.UserID)
	if err != nil {
		return CodeUsageStats{}, err
	}
	byIP, err := s.couponRepo.CountUsesByIP(ctx, code, reqCtx.IP)
	if err != nil {
		return CodeUsageStats{}, err
	}
	recent, err := s.couponRepo.CountRecentUses(ctx, code, 24)
	if err != nil {
		return CodeUsageStats{}, err
	}

	return CodeUsageStats{
		UsesByThisUser: byUser,
		UsesFromThisIP: byIP,
		UsesLast24h:    recent,
	}, nil
}
