package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Checkout intent lifecycle.
const (
	IntentStatusPending  = "PENDING"
	IntentStatusActive   = "ACTIVE"
	IntentStatusCanceled = "CANCELED"
)

// Subscription lifecycle.
const (
	SubscriptionStatusActive   = "ACTIVE"
	SubscriptionStatusCanceled = "CANCELED"
)

// Commission lifecycle.
const (
	CommissionStatusPending = "PENDING"
	CommissionStatusPaid    = "PAID"
)

// Payout request lifecycle.
const (
	PayoutStatusPending    = "PENDING"
	PayoutStatusProcessing = "PROCESSING"
	PayoutStatusRejected   = "REJECTED"
	PayoutStatusCompleted  = "COMPLETED"
)

// Fraud assessment outcomes.
const (
	FraudActionAllow = "ALLOW"
	FraudActionFlag  = "FLAG"
	FraudActionDeny  = "DENY"
)

type Plan struct {
	Code            string          `gorm:"primaryKey;size:32;not null"`
	Name            string          `gorm:"size:64;not null"`
	Price           decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Currency        string          `gorm:"size:8;not null"`
	CreditAllowance int             `gorm:"not null"` // letters per billing period
	Active          bool            `gorm:"not null;default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type CheckoutIntent struct {
	ID              string          `gorm:"primaryKey;size:36;not null"`
	UserID          string          `gorm:"size:36;index;not null"`
	PlanCode        string          `gorm:"size:32;not null"`
	BasePrice       decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	DiscountPercent int             `gorm:"not null"` // 0 when no coupon
	FinalPrice      decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	CouponCode      *string         `gorm:"size:50;index"`
	ReferrerID      *string         `gorm:"size:36;index"`
	// SessionRef is the gateway checkout-session reference. Both
	// completion channels identify the payment by it.
	SessionRef   string `gorm:"size:128;uniqueIndex;not null"`
	Status       string `gorm:"size:16;index;not null"`
	CancelReason string `gorm:"size:128"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CompletionEvent is the idempotency ledger. EventID is the logical
// key derived from the session reference, so the client verify call
// and the gateway webhook for the same payment collide on insert and
// only one caller ever processes it.
type CompletionEvent struct {
	EventID     string `gorm:"primaryKey;size:160;not null"`
	EventKind   string `gorm:"size:64;index"`
	Source      string `gorm:"size:16"` // verify | webhook
	Metadata    string `gorm:"type:text"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}

type Subscription struct {
	ID               string `gorm:"primaryKey;size:36;not null"`
	UserID           string `gorm:"size:36;index;not null"`
	PlanCode         string `gorm:"size:32;not null"`
	Status           string `gorm:"size:16;index;not null"`
	CheckoutIntentID string `gorm:"size:36;uniqueIndex;not null"`
	CreditBalance    int    `gorm:"not null"`
	CreditAllowance  int    `gorm:"not null"`
	PeriodStart      time.Time
	PeriodEnd        time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type DiscountCode struct {
	Code            string `gorm:"primaryKey;size:50;not null"`
	DiscountPercent int    `gorm:"not null"` // 1..99
	// CommissionPercent overrides the configured default when > 0.
	CommissionPercent int        `gorm:"not null;default:0"`
	MaxUses           *int       // nil = unlimited
	CurrentUseCount   int        `gorm:"not null;default:0"`
	ExpiresAt         *time.Time // nil = never
	Active            bool       `gorm:"not null;default:true"`
	ReferrerID        string     `gorm:"size:36;index;not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CouponUsage records one discounted checkout attempt together with
// the fraud assessment that let it through.
type CouponUsage struct {
	ID               string `gorm:"primaryKey;size:36;not null"`
	Code             string `gorm:"size:50;index;not null"`
	CheckoutIntentID string `gorm:"size:36;index;not null"`
	UserID           string `gorm:"size:36;index;not null"`
	IP               string `gorm:"size:45"`
	RiskScore        int    `gorm:"not null"`
	RiskAction       string `gorm:"size:8;not null"`
	RiskReasons      string `gorm:"type:text"`
	CreatedAt        time.Time
}

type Commission struct {
	ID             string          `gorm:"primaryKey;size:36;not null"`
	ReferrerID     string          `gorm:"size:36;index;not null"`
	SubscriptionID string          `gorm:"size:36;uniqueIndex;not null"`
	Amount         decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	RatePercent    int             `gorm:"not null"`
	Status         string          `gorm:"size:16;index;not null"`
	PaidAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type PayoutRequest struct {
	ID         string          `gorm:"primaryKey;size:36;not null"`
	ReferrerID string          `gorm:"size:36;index;not null"`
	Amount     decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Method     string          `gorm:"size:32;not null"`
	Status     string          `gorm:"size:16;index;not null"`
	AdminNotes string          `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PayoutAudit is append-only.
type PayoutAudit struct {
	ID              uint   `gorm:"primaryKey"`
	PayoutRequestID string `gorm:"size:36;index;not null"`
	Actor           string `gorm:"size:36;not null"`
	OldStatus       string `gorm:"size:16;not null"`
	NewStatus       string `gorm:"size:16;not null"`
	Amount          decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Notes           string `gorm:"type:text"`
	CreatedAt       time.Time
}
