package repository

import (
	"context"
	"time"

	"subscription-billing/internal/model"

	"gorm.io/gorm"
)

type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (*model.DiscountCode, error)
	// ClaimUse is the atomic compare-and-increment on the use count.
	// Zero rows affected means the cap was already reached (or the code
	// vanished); the caller must abort the surrounding transaction.
	ClaimUse(ctx context.Context, tx *gorm.DB, code string) (bool, error)
	RecordUsage(ctx context.Context, tx *gorm.DB, usage *model.CouponUsage) error

	// Usage velocity counts feeding the fraud scorer.
	CountUsesByUser(ctx context.Context, code, userID string) (int64, error)
	CountUsesByIP(ctx context.Context, code, ip string) (int64, error)
	CountRecentUses(ctx context.Context, code string, withinHours int) (int64, error)
}

type couponRepoImpl struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) CouponRepository {
	return &couponRepoImpl{db: db}
}

func (r *couponRepoImpl) FindByCode(ctx context.Context, code string) (*model.DiscountCode, error) {
	var dc model.DiscountCode
	err := r.db.WithContext(ctx).
		Where("code = ?", code).
		First(&dc).Error

	if err != nil {
		return nil, err
	}

	return &dc, nil
}

func (r *couponRepoImpl) ClaimUse(ctx context.Context, tx *gorm.DB, code string) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.DiscountCode{}).
		Where("code = ? AND (max_uses IS NULL OR current_use_count < max_uses)", code).
		UpdateColumn("current_use_count", gorm.Expr("current_use_count + 1"))

	return result.RowsAffected > 0, result.Error
}

func (r *couponRepoImpl) RecordUsage(ctx context.Context, tx *gorm.DB, usage *model.CouponUsage) error {
	return tx.WithContext(ctx).Create(usage).Error
}

func (r *couponRepoImpl) CountUsesByUser(ctx context.Context, code, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CouponUsage{}).
		Where("code = ? AND user_id = ?", code, userID).
		Count(&count).Error

	return count, err
}

func (r *couponRepoImpl) CountUsesByIP(ctx context.Context, code, ip string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CouponUsage{}).
		Where("code = ? AND ip = ?", code, ip).
		Count(&count).Error

	return count, err
}

func (r *couponRepoImpl) CountRecentUses(ctx context.Context, code string, withinHours int) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(withinHours) * time.Hour)

	var count int64
	err := r.db.WithContext(ctx).Model(&model.CouponUsage{}).
		Where("code = ? AND created_at > ?", code, cutoff).
		Count(&count).Error

	return count, err
}
