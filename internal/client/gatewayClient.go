package client

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"subscription-billing/internal/config"

	"github.com/shopspring/decimal"
)

// GatewayClient talks to the payment gateway. Card capture itself
// happens on the gateway's side; this client only opens checkout
// sessions, confirms their payment state, and authenticates webhooks.
type GatewayClient interface {
	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSession, error)
	GetSession(ctx context.Context, sessionRef string) (*SessionStatus, error)
	VerifyWebhookSignature(headers http.Header, body []byte) error
}

type CheckoutSessionRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	ReturnURL   string
}

type CheckoutSession struct {
	SessionRef  string
	CheckoutURL string
}

type SessionStatus struct {
	SessionRef string
	Paid       bool
}

type gatewayClientImpl struct {
	httpClient   *http.Client
	baseApiURL   string
	clientID     string
	clientSecret string
	webhookID    string
}

func NewGatewayClient(cfg *config.Gateway) GatewayClient {
	return &gatewayClientImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseApiURL:   cfg.BaseApiURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		webhookID:    cfg.WebhookID,
	}
}

func (c *gatewayClientImpl) authHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString(
		[]byte(c.clientID+":"+c.clientSecret),
	)
}

func (c *gatewayClientImpl) CreateCheckoutSession(ctx context.Context, in *CheckoutSessionRequest) (*CheckoutSession, error) {
	payload := map[string]interface{}{
		"amount": map[string]string{
			"currency_code": in.Currency,
			"value":         in.Amount.StringFixed(2),
		},
		"description": in.Description,
		"return_url":  in.ReturnURL,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal req payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST",
		c.baseApiURL+"/v1/checkout/sessions",
		bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway error %d: %s", resp.StatusCode, string(b))
	}

	var result struct {
		ID          string `json:"id"`
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	return &CheckoutSession{
		SessionRef:  result.ID,
		CheckoutURL: result.CheckoutURL,
	}, nil
}

func (c *gatewayClientImpl) GetSession(ctx context.Context, sessionRef string) (*SessionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, "GET",
		c.baseApiURL+"/v1/checkout/sessions/"+sessionRef, nil)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway error %d: %s", resp.StatusCode, string(b))
	}

	var result struct {
		ID     string `json:"id"`
		Status string `json:"status"` // open | paid | expired
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	return &SessionStatus{
		SessionRef: result.ID,
		Paid:       result.Status == "paid",
	}, nil
}

// VerifyWebhookSignature checks the HMAC the gateway puts on each
// delivery. The signature covers webhookID + raw body.
func (c *gatewayClientImpl) VerifyWebhookSignature(headers http.Header, body []byte) error {
	got := headers.Get("X-Gateway-Signature")
	if got == "" {
		return fmt.Errorf("missing webhook signature header")
	}

	mac := hmac.New(sha256.New, []byte(c.clientSecret))
	mac.Write([]byte(c.webhookID))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(got), []byte(want)) {
		return fmt.Errorf("webhook signature mismatch")
	}
	return nil
}
