package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"subscription-billing/internal/apperr"
	"subscription-billing/internal/dto"
	"subscription-billing/internal/model"
	"subscription-billing/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payout admin actions.
const (
	PayoutActionApprove  = "approve"
	PayoutActionReject   = "reject"
	PayoutActionComplete = "complete"
)

type PayoutService interface {
	Balance(ctx context.Context, referrerID string) (*dto.BalanceResponse, error)
	RequestPayout(ctx context.Context, referrerID string, req *dto.RequestPayoutRequest) (*dto.RequestPayoutResponse, error)
	// Process applies an admin transition. actingAs is the explicit
	// admin identity recorded in the audit trail; privileged paths
	// never rely on ambient identity.
	Process(ctx context.Context, payoutID, action, notes, actingAs string) (*dto.ProcessPayoutResponse, error)
}

type payoutServiceImpl struct {
	db             *gorm.DB
	commissionRepo repository.CommissionRepository
	payoutRepo     repository.PayoutRepository
	notifier       Notifier
	logger         *slog.Logger
}

func NewPayoutService(
	db *gorm.DB,
	commissionRepo repository.CommissionRepository,
	payoutRepo repository.PayoutRepository,
	notifier Notifier,
	logger *slog.Logger,
) PayoutService {
	return &payoutServiceImpl{
		db:             db,
		commissionRepo: commissionRepo,
		payoutRepo:     payoutRepo,
		notifier:       notifier,
		logger:         logger,
	}
}

func (s *payoutServiceImpl) Balance(ctx context.Context, referrerID string) (*dto.BalanceResponse, error) {
	pending, err := s.commissionRepo.SumByStatus(ctx, referrerID, model.CommissionStatusPending)
	if err != nil {
		return nil, apperr.Transient("sum pending commissions", err)
	}
	paid, err := s.commissionRepo.SumByStatus(ctx, referrerID, model.CommissionStatusPaid)
	if err != nil {
		return nil, apperr.Transient("sum paid commissions", err)
	}
	outstanding, err := s.payoutRepo.SumOutstanding(ctx, referrerID)
	if err != nil {
		return nil, apperr.Transient("sum outstanding payout requests", err)
	}

	return &dto.BalanceResponse{
		PendingCommission: pending,
		PaidCommission:    paid,
		Outstanding:       outstanding,
		Available:         pending.Sub(outstanding),
	}, nil
}

func (s *payoutServiceImpl) RequestPayout(ctx context.Context, referrerID string, req *dto.RequestPayoutRequest) (*dto.RequestPayoutResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, apperr.Validationf("payout amount must be positive")
	}
	if strings.TrimSpace(req.Method) == "" {
		return nil, apperr.Validationf("payout method is required")
	}

	balance, err := s.Balance(ctx, referrerID)
	if err != nil {
		return nil, err
	}
	if req.Amount.GreaterThan(balance.Available) {
		return nil, apperr.Validationf("payout amount %s exceeds available balance %s",
			req.Amount.StringFixed(2), balance.Available.StringFixed(2))
	}

	payout := &model.PayoutRequest{
		ID:         uuid.NewString(),
		ReferrerID: referrerID,
		Amount:     req.Amount,
		Method:     req.Method,
		Status:     model.PayoutStatusPending,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.payoutRepo.Create(ctx, tx, payout); err != nil {
			return fmt.Errorf("store payout request: %w", err)
		}
		return s.payoutRepo.AppendAudit(ctx, tx, &model.PayoutAudit{
			PayoutRequestID: payout.ID,
			Actor:           referrerID,
			OldStatus:       "",
			NewStatus:       model.PayoutStatusPending,
			Amount:          payout.Amount,
			Notes:           "requested via " + req.Method,
		})
	})
	if err != nil {
		return nil, apperr.Transient("create payout request", err)
	}

	return &dto.RequestPayoutResponse{PayoutRequestID: payout.ID}, nil
}

// transition table: approve PENDING->PROCESSING, reject
// PENDING|PROCESSING->REJECTED, complete PROCESSING->COMPLETED.
func payoutTransition(action string) (from []string, to string, err error) {
	switch action {
	case PayoutActionApprove:
		return []string{model.PayoutStatusPending}, model.PayoutStatusProcessing, nil
	case PayoutActionReject:
		return []string{model.PayoutStatusPending, model.PayoutStatusProcessing}, model.PayoutStatusRejected, nil
	case PayoutActionComplete:
		return []string{model.PayoutStatusProcessing}, model.PayoutStatusCompleted, nil
	default:
		return nil, "", apperr.Validationf("unknown payout action %q", action)
	}
}

func (s *payoutServiceImpl) Process(ctx context.Context, payoutID, action, notes, actingAs string) (*dto.ProcessPayoutResponse, error) {
	from, to, err := payoutTransition(action)
	if err != nil {
		return nil, err
	}

	var payout *model.PayoutRequest

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payout, err = s.payoutRepo.FindByID(ctx, tx, payoutID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFoundf("unknown payout request %q", payoutID)
			}
			return fmt.Errorf("look up payout request: %w", err)
		}
		oldStatus := payout.Status

		moved, err := s.payoutRepo.Transition(ctx, tx, payoutID, from, to, notes)
		if err != nil {
			return fmt.Errorf("transition payout request: %w", err)
		}
		if !moved {
			return apperr.Conflictf("payout %q is %s, cannot %s", payoutID, oldStatus, action)
		}

		if action == PayoutActionComplete {
			if err := s.settleCommissions(ctx, tx, payout); err != nil {
				return err
			}
		}

		return s.payoutRepo.AppendAudit(ctx, tx, &model.PayoutAudit{
			PayoutRequestID: payoutID,
			Actor:           actingAs,
			OldStatus:       oldStatus,
			NewStatus:       to,
			Amount:          payout.Amount,
			Notes:           notes,
		})
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, apperr.Transient("process payout", err)
	}

	// Best effort; the transition stands even if this never arrives.
	s.notifier.Notify(ctx, "payout."+to, payout.ReferrerID, map[string]any{
		"payout_request_id": payoutID,
		"amount":            payout.Amount.StringFixed(2),
	})

	return &dto.ProcessPayoutResponse{PayoutRequestID: payoutID, Status: to}, nil
}

// settleCommissions marks pending commissions paid, oldest first, up
// to the payout amount. A commission that would push past the amount
// stays pending; rows are never split.
func (s *payoutServiceImpl) settleCommissions(ctx context.Context, tx *gorm.DB, payout *model.PayoutRequest) error {
	pending, err := s.commissionRepo.FindPendingOldestFirst(ctx, tx, payout.ReferrerID)
	if err != nil {
		return fmt.Errorf("list pending commissions: %w", err)
	}

	remaining := payout.Amount
	var toPay []string
	for _, c := range pending {
		if c.Amount.GreaterThan(remaining) {
			break
		}
		toPay = append(toPay, c.ID)
		remaining = remaining.Sub(c.Amount)
		if remaining.Equal(decimal.Zero) {
			break
		}
	}

	if err := s.commissionRepo.MarkPaid(ctx, tx, toPay); err != nil {
		return fmt.Errorf("mark commissions paid: %w", err)
	}
	return nil
}
