package repository

import (
	"context"

	"subscription-billing/internal/model"

	"gorm.io/gorm"
)

type PlanRepository interface {
	FindActiveByCode(ctx context.Context, code string) (*model.Plan, error)
	Seed(ctx context.Context, plans []*model.Plan) error
}

type planRepoImpl struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepoImpl{db: db}
}

func (r *planRepoImpl) FindActiveByCode(ctx context.Context, code string) (*model.Plan, error) {
	var plan model.Plan
	err := r.db.WithContext(ctx).
		Where("code = ? AND active = ?", code, true).
		First(&plan).Error

	if err != nil {
		return nil, err
	}

	return &plan, nil
}

// Seed inserts the catalog rows that do not exist yet. Existing rows
// are left alone so operators can reprice without a redeploy fight.
func (r *planRepoImpl) Seed(ctx context.Context, plans []*model.Plan) error {
	for _, plan := range plans {
		err := r.db.WithContext(ctx).
			Where("code = ?", plan.Code).
			FirstOrCreate(plan).Error
		if err != nil {
			return err
		}
	}
	return nil
}
