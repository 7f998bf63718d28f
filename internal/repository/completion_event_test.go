package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"subscription-billing/internal/client"
	"subscription-billing/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate",
		filepath.Join(t.TempDir(), "repo_test.db"))
	db, err := client.InitDBClient("sqlite", dsn)
	require.NoError(t, err)
	return db
}

func TestRecordIfNewFirstInsertWins(t *testing.T) {
	db := testDB(t)
	repo := NewCompletionEventRepository(db)
	ctx := context.Background()

	already, err := repo.RecordIfNew(ctx, db, &model.CompletionEvent{
		EventID:   "checkout.completed:sess-1",
		EventKind: "checkout.completed",
		Source:    "webhook",
	})
	require.NoError(t, err)
	assert.False(t, already)

	// Same logical event from the other channel conflicts.
	already, err = repo.RecordIfNew(ctx, db, &model.CompletionEvent{
		EventID:   "checkout.completed:sess-1",
		EventKind: "checkout.completed",
		Source:    "verify",
	})
	require.NoError(t, err)
	assert.True(t, already)

	var count int64
	require.NoError(t, db.Model(&model.CompletionEvent{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// The stored row is the winner's.
	event, err := repo.Find(ctx, "checkout.completed:sess-1")
	require.NoError(t, err)
	assert.Equal(t, "webhook", event.Source)
	assert.False(t, event.ProcessedAt.IsZero())
}

func TestRecordIfNewRollsBackWithTransaction(t *testing.T) {
	db := testDB(t)
	repo := NewCompletionEventRepository(db)
	ctx := context.Background()

	// A failed activation transaction must release the claim so a
	// retry can win it.
	err := db.Transaction(func(tx *gorm.DB) error {
		already, err := repo.RecordIfNew(ctx, tx, &model.CompletionEvent{
			EventID:   "checkout.completed:sess-2",
			EventKind: "checkout.completed",
			Source:    "webhook",
		})
		require.NoError(t, err)
		require.False(t, already)
		return fmt.Errorf("simulated downstream failure")
	})
	require.Error(t, err)

	already, err := repo.RecordIfNew(ctx, db, &model.CompletionEvent{
		EventID:   "checkout.completed:sess-2",
		EventKind: "checkout.completed",
		Source:    "verify",
	})
	require.NoError(t, err)
	assert.False(t, already)
}

func TestClaimUseRespectsCap(t *testing.T) {
	db := testDB(t)
	repo := NewCouponRepository(db)
	ctx := context.Background()

	two := 2
	require.NoError(t, db.Create(&model.DiscountCode{
		Code:            "CAPPED",
		DiscountPercent: 10,
		MaxUses:         &two,
		Active:          true,
		ReferrerID:      "ref-1",
	}).Error)

	for i := 0; i < 2; i++ {
		claimed, err := repo.ClaimUse(ctx, db, "CAPPED")
		require.NoError(t, err)
		assert.True(t, claimed, "claim %d", i)
	}

	claimed, err := repo.ClaimUse(ctx, db, "CAPPED")
	require.NoError(t, err)
	assert.False(t, claimed)

	code, err := repo.FindByCode(ctx, "CAPPED")
	require.NoError(t, err)
	assert.Equal(t, 2, code.CurrentUseCount)
}

func TestClaimUseUnlimitedCode(t *testing.T) {
	db := testDB(t)
	repo := NewCouponRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.DiscountCode{
		Code:            "OPEN",
		DiscountPercent: 10,
		Active:          true,
		ReferrerID:      "ref-1",
	}).Error)

	for i := 0; i < 5; i++ {
		claimed, err := repo.ClaimUse(ctx, db, "OPEN")
		require.NoError(t, err)
		assert.True(t, claimed)
	}
}

func TestPayoutTransitionGuards(t *testing.T) {
	db := testDB(t)
	repo := NewPayoutRepository(db)
	ctx := context.Background()

	req := &model.PayoutRequest{
		ID:         "po-1",
		ReferrerID: "ref-1",
		Method:     "bank_transfer",
		Status:     model.PayoutStatusPending,
	}
	require.NoError(t, repo.Create(ctx, db, req))

	moved, err := repo.Transition(ctx, db, "po-1",
		[]string{model.PayoutStatusProcessing}, model.PayoutStatusCompleted, "")
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = repo.Transition(ctx, db, "po-1",
		[]string{model.PayoutStatusPending}, model.PayoutStatusProcessing, "ok")
	require.NoError(t, err)
	assert.True(t, moved)

	got, err := repo.FindByID(ctx, nil, "po-1")
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusProcessing, got.Status)
	assert.Equal(t, "ok", got.AdminNotes)
}
