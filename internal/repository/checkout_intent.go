package repository

import (
	"context"
	"time"

	"subscription-billing/internal/model"

	"gorm.io/gorm"
)

type CheckoutIntentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, intent *model.CheckoutIntent) error
	FindBySessionRef(ctx context.Context, db *gorm.DB, sessionRef string) (*model.CheckoutIntent, error)
	// ClaimActivation flips PENDING -> ACTIVE and reports whether this
	// caller won the transition. Zero rows affected means the intent
	// was missing or already terminal.
	ClaimActivation(ctx context.Context, tx *gorm.DB, sessionRef string) (bool, error)
	// ClaimCancellation flips PENDING -> CANCELED the same way.
	ClaimCancellation(ctx context.Context, tx *gorm.DB, sessionRef, reason string) (bool, error)
	FindExpiredPending(ctx context.Context, olderThan time.Time) ([]*model.CheckoutIntent, error)
}

type checkoutIntentRepoImpl struct {
	db *gorm.DB
}

func NewCheckoutIntentRepository(db *gorm.DB) CheckoutIntentRepository {
	return &checkoutIntentRepoImpl{db: db}
}

func (r *checkoutIntentRepoImpl) Create(ctx context.Context, tx *gorm.DB, intent *model.CheckoutIntent) error {
	return tx.WithContext(ctx).Create(intent).Error
}

func (r *checkoutIntentRepoImpl) FindBySessionRef(ctx context.Context, db *gorm.DB, sessionRef string) (*model.CheckoutIntent, error) {
	if db == nil {
		db = r.db
	}
	var intent model.CheckoutIntent
	err := db.WithContext(ctx).
		Where("session_ref = ?", sessionRef).
		First(&intent).Error

	if err != nil {
		return nil, err
	}

	return &intent, nil
}

func (r *checkoutIntentRepoImpl) ClaimActivation(ctx context.Context, tx *gorm.DB, sessionRef string) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.CheckoutIntent{}).
		Where("session_ref = ? AND status = ?", sessionRef, model.IntentStatusPending).
		Updates(map[string]interface{}{
			"status":     model.IntentStatusActive,
			"updated_at": time.Now(),
		})

	return result.RowsAffected > 0, result.Error
}

func (r *checkoutIntentRepoImpl) ClaimCancellation(ctx context.Context, tx *gorm.DB, sessionRef, reason string) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.CheckoutIntent{}).
		Where("session_ref = ? AND status = ?", sessionRef, model.IntentStatusPending).
		Updates(map[string]interface{}{
			"status":        model.IntentStatusCanceled,
			"cancel_reason": reason,
			"updated_at":    time.Now(),
		})

	return result.RowsAffected > 0, result.Error
}

func (r *checkoutIntentRepoImpl) FindExpiredPending(ctx context.Context, olderThan time.Time) ([]*model.CheckoutIntent, error) {
	var intents []*model.CheckoutIntent
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.IntentStatusPending, olderThan).
		Find(&intents).Error

	if err != nil {
		return nil, err
	}

	return intents, nil
}
