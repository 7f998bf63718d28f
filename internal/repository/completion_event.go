package repository

import (
	"context"
	"errors"
	"time"

	"subscription-billing/internal/model"

	"gorm.io/gorm"
)

type CompletionEventRepository interface {
	// RecordIfNew inserts the ledger row for eventID. The insert is the
	// claim: a duplicate-key conflict means another caller already
	// processed (or is processing) this logical event, and no write
	// happens. Run it inside the activation transaction so the claim
	// and the side effects commit or roll back together.
	RecordIfNew(ctx context.Context, tx *gorm.DB, event *model.CompletionEvent) (alreadyProcessed bool, err error)
	Find(ctx context.Context, eventID string) (*model.CompletionEvent, error)
}

type completionEventRepoImpl struct {
	db *gorm.DB
}

func NewCompletionEventRepository(db *gorm.DB) CompletionEventRepository {
	return &completionEventRepoImpl{db: db}
}

func (r *completionEventRepoImpl) RecordIfNew(ctx context.Context, tx *gorm.DB, event *model.CompletionEvent) (bool, error) {
	event.ProcessedAt = time.Now()
	err := tx.WithContext(ctx).Create(event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func (r *completionEventRepoImpl) Find(ctx context.Context, eventID string) (*model.CompletionEvent, error) {
	var event model.CompletionEvent
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&event).Error

	if err != nil {
		return nil, err
	}

	return &event, nil
}
