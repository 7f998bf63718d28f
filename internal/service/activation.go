package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"subscription-billing/internal/apperr"
	"subscription-billing/internal/model"
	"subscription-billing/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Completion signal sources.
const (
	SourceVerify  = "verify"  // client poll after checkout redirect
	SourceWebhook = "webhook" // async gateway notification
)

type CompleteResult struct {
	AlreadyCompleted bool
	SubscriptionID   string
}

type ActivationService interface {
	// Complete processes one completion signal for sessionRef. Both
	// channels funnel through here; the ledger makes any mix of
	// retries and orderings converge on exactly one activation.
	Complete(ctx context.Context, source, sessionRef string, meta map[string]any) (*CompleteResult, error)
	// Cancel ends a pending checkout. Canceling an already-canceled
	// session is a no-op; canceling an active one is a conflict.
	Cancel(ctx context.Context, sessionRef, reason, actingAs string) error
	// CancelExpired sweeps intents pending longer than ttl.
	CancelExpired(ctx context.Context, ttl time.Duration) (int, error)
}

type activationServiceImpl struct {
	db                *gorm.DB
	intentRepo        repository.CheckoutIntentRepository
	eventRepo         repository.CompletionEventRepository
	subscriptionRepo  repository.SubscriptionRepository
	planRepo          repository.PlanRepository
	couponRepo        repository.CouponRepository
	commissionRepo    repository.CommissionRepository
	notifier          Notifier
	defaultCommission int // percent
	logger            *slog.Logger
}

func NewActivationService(
	db *gorm.DB,
	intentRepo repository.CheckoutIntentRepository,
	eventRepo repository.CompletionEventRepository,
	subscriptionRepo repository.SubscriptionRepository,
	planRepo repository.PlanRepository,
	couponRepo repository.CouponRepository,
	commissionRepo repository.CommissionRepository,
	notifier Notifier,
	defaultCommissionPercent int,
	logger *slog.Logger,
) ActivationService {
	return &activationServiceImpl{
		db:                db,
		intentRepo:        intentRepo,
		eventRepo:         eventRepo,
		subscriptionRepo:  subscriptionRepo,
		planRepo:          planRepo,
		couponRepo:        couponRepo,
		commissionRepo:    commissionRepo,
		notifier:          notifier,
		defaultCommission: defaultCommissionPercent,
		logger:            logger,
	}
}

// completionEventID derives the ledger key from the session reference
// rather than the delivery id: the verify call and the webhook are two
// physical signals for one logical payment and must collide.
func completionEventID(sessionRef string) string {
	return "checkout.completed:" + sessionRef
}

func (s *activationServiceImpl) Complete(ctx context.Context, source, sessionRef string, meta map[string]any) (*CompleteResult, error) {
	if sessionRef == "" {
		return nil, apperr.Validationf("missing session reference")
	}

	var result CompleteResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		intent, err := s.intentRepo.FindBySessionRef(ctx, tx, sessionRef)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFoundf("unknown checkout session %q", sessionRef)
			}
			return fmt.Errorf("look up checkout intent: %w", err)
		}
		if intent.Status == model.IntentStatusCanceled {
			return apperr.Conflictf("checkout session %q was canceled", sessionRef)
		}

		metaJSON, _ := json.Marshal(meta)
		already, err := s.eventRepo.RecordIfNew(ctx, tx, &model.CompletionEvent{
			EventID:   completionEventID(sessionRef),
			EventKind: "checkout.completed",
			Source:    source,
			Metadata:  string(metaJSON),
		})
		if err != nil {
			return fmt.Errorf("record completion event: %w", err)
		}
		if already || intent.Status == model.IntentStatusActive {
			// Losing signal of the race, or a late retry. Report the
			// existing subscription instead of erroring so the origin
			// stops redelivering.
			sub, err := s.subscriptionRepo.FindByCheckoutIntentID(ctx, tx, intent.ID)
			if err != nil {
				return fmt.Errorf("look up subscription for completed intent: %w", err)
			}
			result = CompleteResult{AlreadyCompleted: true, SubscriptionID: sub.ID}
			return nil
		}

		// Winning claim on the intent row. RowsAffected guards against
		// a racer that slipped between our read and this write.
		claimed, err := s.intentRepo.ClaimActivation(ctx, tx, sessionRef)
		if err != nil {
			return fmt.Errorf("transition intent to active: %w", err)
		}
		if !claimed {
			sub, err := s.subscriptionRepo.FindByCheckoutIntentID(ctx, tx, intent.ID)
			if err != nil {
				return fmt.Errorf("look up subscription after lost claim: %w", err)
			}
			result = CompleteResult{AlreadyCompleted: true, SubscriptionID: sub.ID}
			return nil
		}

		plan, err := s.planRepo.FindActiveByCode(ctx, intent.PlanCode)
		if err != nil {
			return fmt.Errorf("look up plan %q: %w", intent.PlanCode, err)
		}

		now := time.Now()
		sub := &model.Subscription{
			ID:               uuid.NewString(),
			UserID:           intent.UserID,
			PlanCode:         intent.PlanCode,
			Status:           model.SubscriptionStatusActive,
			CheckoutIntentID: intent.ID,
			CreditBalance:    plan.CreditAllowance,
			CreditAllowance:  plan.CreditAllowance,
			PeriodStart:      now,
			PeriodEnd:        now.AddDate(0, 1, 0),
		}
		if err := s.subscriptionRepo.Create(ctx, tx, sub); err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}

		if intent.ReferrerID != nil {
			commission, err := s.buildCommission(ctx, intent, sub.ID)
			if err != nil {
				return err
			}
			if err := s.commissionRepo.Create(ctx, tx, commission); err != nil {
				return fmt.Errorf("create commission: %w", err)
			}
		}

		result = CompleteResult{AlreadyCompleted: false, SubscriptionID: sub.ID}
		return nil
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, apperr.Transient("complete checkout", err)
	}

	if !result.AlreadyCompleted {
		// Best effort only. A failed notification must never make a
		// successful activation look retryable.
		intent, err := s.intentRepo.FindBySessionRef(ctx, nil, sessionRef)
		if err == nil {
			s.notifier.Notify(ctx, "subscription.activated", intent.UserID, map[string]any{
				"subscription_id": result.SubscriptionID,
				"plan_code":       intent.PlanCode,
			})
			if intent.ReferrerID != nil {
				s.notifier.Notify(ctx, "commission.earned", *intent.ReferrerID, map[string]any{
					"subscription_id": result.SubscriptionID,
				})
			}
		}
	}

	return &result, nil
}

func (s *activationServiceImpl) buildCommission(ctx context.Context, intent *model.CheckoutIntent, subscriptionID string) (*model.Commission, error) {
	rate := s.defaultCommission
	if intent.CouponCode != nil {
		code, err := s.couponRepo.FindByCode(ctx, *intent.CouponCode)
		if err == nil && code.CommissionPercent > 0 {
			rate = code.CommissionPercent
		}
	}

	amount := intent.FinalPrice.
		Mul(decimal.NewFromInt(int64(rate))).
		Div(decimal.NewFromInt(100)).
		Round(2)

	return &model.Commission{
		ID:             uuid.NewString(),
		ReferrerID:     *intent.ReferrerID,
		SubscriptionID: subscriptionID,
		Amount:         amount,
		RatePercent:    rate,
		Status:         model.CommissionStatusPending,
	}, nil
}

func (s *activationServiceImpl) Cancel(ctx context.Context, sessionRef, reason, actingAs string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := s.intentRepo.ClaimCancellation(ctx, tx, sessionRef, reason)
		if err != nil {
			return fmt.Errorf("transition intent to canceled: %w", err)
		}
		if claimed {
			return nil
		}

		intent, err := s.intentRepo.FindBySessionRef(ctx, tx, sessionRef)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFoundf("unknown checkout session %q", sessionRef)
			}
			return fmt.Errorf("look up checkout intent: %w", err)
		}
		switch intent.Status {
		case model.IntentStatusCanceled:
			return nil // idempotent
		case model.IntentStatusActive:
			return apperr.Conflictf("checkout session %q is already active", sessionRef)
		default:
			return fmt.Errorf("cancel lost race for session %q", sessionRef)
		}
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return ae
		}
		return apperr.Transient("cancel checkout", err)
	}

	s.logger.InfoContext(ctx, "checkout session canceled",
		slog.String("session_ref", sessionRef),
		slog.String("reason", reason),
		slog.String("acting_as", actingAs),
	)
	return nil
}

func (s *activationServiceImpl) CancelExpired(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	expired, err := s.intentRepo.FindExpiredPending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find expired intents: %w", err)
	}

	canceled := 0
	for _, intent := range expired {
		if err := s.Cancel(ctx, intent.SessionRef, "session_expired", "system"); err != nil {
			// An intent activated between the scan and the cancel is
			// fine; skip it and keep sweeping.
			if apperr.IsConflict(err) {
				continue
			}
			return canceled, err
		}
		canceled++
	}
	return canceled, nil
}
