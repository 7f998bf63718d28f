package repository

import (
	"context"
	"time"

	"subscription-billing/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CommissionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, commission *model.Commission) error
	SumByStatus(ctx context.Context, referrerID, status string) (decimal.Decimal, error)
	FindPendingOldestFirst(ctx context.Context, tx *gorm.DB, referrerID string) ([]*model.Commission, error)
	MarkPaid(ctx context.Context, tx *gorm.DB, ids []string) error
}

type commissionRepoImpl struct {
	db *gorm.DB
}

func NewCommissionRepository(db *gorm.DB) CommissionRepository {
	return &commissionRepoImpl{db: db}
}

func (r *commissionRepoImpl) Create(ctx context.Context, tx *gorm.DB, commission *model.Commission) error {
	return tx.WithContext(ctx).Create(commission).Error
}

func (r *commissionRepoImpl) SumByStatus(ctx context.Context, referrerID, status string) (decimal.Decimal, error) {
	row := r.db.WithContext(ctx).Model(&model.Commission{}).
		Where("referrer_id = ? AND status = ?", referrerID, status).
		Select("COALESCE(SUM(amount), 0)").
		Row()

	var raw string
	if err := row.Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (r *commissionRepoImpl) FindPendingOldestFirst(ctx context.Context, tx *gorm.DB, referrerID string) ([]*model.Commission, error) {
	var commissions []*model.Commission
	err := tx.WithContext(ctx).
		Where("referrer_id = ? AND status = ?", referrerID, model.CommissionStatusPending).
		Order("created_at ASC").
		Find(&commissions).Error

	if err != nil {
		return nil, err
	}

	return commissions, nil
}

func (r *commissionRepoImpl) MarkPaid(ctx context.Context, tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now()
	return tx.WithContext(ctx).Model(&model.Commission{}).
		Where("id IN ? AND status = ?", ids, model.CommissionStatusPending).
		Updates(map[string]interface{}{
			"status":     model.CommissionStatusPaid,
			"paid_at":    now,
			"updated_at": now,
		}).Error
}
