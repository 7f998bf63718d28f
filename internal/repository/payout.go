package repository

import (
	"context"
	"time"

	"subscription-billing/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PayoutRepository interface {
	Create(ctx context.Context, tx *gorm.DB, req *model.PayoutRequest) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*model.PayoutRequest, error)
	// SumOutstanding totals requests that still hold a claim on the
	// referrer's balance (pending + processing).
	SumOutstanding(ctx context.Context, referrerID string) (decimal.Decimal, error)
	// Transition moves id from one status to another; zero rows
	// affected means the current status did not permit it.
	Transition(ctx context.Context, tx *gorm.DB, id string, fromStatuses []string, toStatus, notes string) (bool, error)
	AppendAudit(ctx context.Context, tx *gorm.DB, audit *model.PayoutAudit) error
}

type payoutRepoImpl struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) PayoutRepository {
	return &payoutRepoImpl{db: db}
}

func (r *payoutRepoImpl) Create(ctx context.Context, tx *gorm.DB, req *model.PayoutRequest) error {
	return tx.WithContext(ctx).Create(req).Error
}

func (r *payoutRepoImpl) FindByID(ctx context.Context, db *gorm.DB, id string) (*model.PayoutRequest, error) {
	if db == nil {
		db = r.db
	}
	var req model.PayoutRequest
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&req).Error

	if err != nil {
		return nil, err
	}

	return &req, nil
}

func (r *payoutRepoImpl) SumOutstanding(ctx context.Context, referrerID string) (decimal.Decimal, error) {
	row := r.db.WithContext(ctx).Model(&model.PayoutRequest{}).
		Where("referrer_id = ? AND status IN ?", referrerID,
			[]string{model.PayoutStatusPending, model.PayoutStatusProcessing}).
		Select("COALESCE(SUM(amount), 0)").
		Row()

	var raw string
	if err := row.Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (r *payoutRepoImpl) Transition(ctx context.Context, tx *gorm.DB, id string, fromStatuses []string, toStatus, notes string) (bool, error) {
	updates := map[string]interface{}{
		"status":     toStatus,
		"updated_at": time.Now(),
	}
	if notes != "" {
		updates["admin_notes"] = notes
	}

	result := tx.WithContext(ctx).Model(&model.PayoutRequest{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(updates)

	return result.RowsAffected > 0, result.Error
}

func (r *payoutRepoImpl) AppendAudit(ctx context.Context, tx *gorm.DB, audit *model.PayoutAudit) error {
	return tx.WithContext(ctx).Create(audit).Error
}
