package repository

import (
	"context"

	"subscription-billing/internal/model"

	"gorm.io/gorm"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, sub *model.Subscription) error
	FindByCheckoutIntentID(ctx context.Context, db *gorm.DB, intentID string) (*model.Subscription, error)
	FindByID(ctx context.Context, id string) (*model.Subscription, error)
}

type subscriptionRepoImpl struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepoImpl{db: db}
}

func (r *subscriptionRepoImpl) Create(ctx context.Context, tx *gorm.DB, sub *model.Subscription) error {
	return tx.WithContext(ctx).Create(sub).Error
}

func (r *subscriptionRepoImpl) FindByCheckoutIntentID(ctx context.Context, db *gorm.DB, intentID string) (*model.Subscription, error) {
	if db == nil {
		db = r.db
	}
	var sub model.Subscription
	err := db.WithContext(ctx).
		Where("checkout_intent_id = ?", intentID).
		First(&sub).Error

	if err != nil {
		return nil, err
	}

	return &sub, nil
}

func (r *subscriptionRepoImpl) FindByID(ctx context.Context, id string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&sub).Error

	if err != nil {
		return nil, err
	}

	return &sub, nil
}
