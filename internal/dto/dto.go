package dto

import "github.com/shopspring/decimal"

type CreateCheckoutRequest struct {
	PlanCode   string `json:"plan_code"`
	CouponCode string `json:"coupon_code,omitempty"`
}

type CreateCheckoutResponse struct {
	SessionRef  string          `json:"session_ref"`
	CheckoutURL string          `json:"checkout_url"`
	FinalPrice  decimal.Decimal `json:"final_price"`
	Currency    string          `json:"currency"`
}

type VerifyCheckoutRequest struct {
	SessionRef string `json:"session_ref"`
}

type CompleteResponse struct {
	AlreadyCompleted bool   `json:"already_completed"`
	SubscriptionID   string `json:"subscription_id"`
}

// GatewayWebhookEvent is the payload shape of the gateway's async
// completion channel.
type GatewayWebhookEvent struct {
	EventID   string `json:"id"`
	EventType string `json:"event_type"`
	Data      struct {
		SessionRef string `json:"session_ref"`
		Reason     string `json:"reason,omitempty"`
	} `json:"data"`
}

type RequestPayoutRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

type RequestPayoutResponse struct {
	PayoutRequestID string `json:"payout_request_id"`
}

type ProcessPayoutRequest struct {
	Action string `json:"action"` // approve | reject | complete
	Notes  string `json:"notes,omitempty"`
}

type ProcessPayoutResponse struct {
	PayoutRequestID string `json:"payout_request_id"`
	Status          string `json:"status"`
}

type BalanceResponse struct {
	PendingCommission decimal.Decimal `json:"pending_commission"`
	PaidCommission    decimal.Decimal `json:"paid_commission"`
	Outstanding       decimal.Decimal `json:"outstanding_requests"`
	Available         decimal.Decimal `json:"available"`
}
