package service

import (
	"strings"

	"subscription-billing/internal/model"
)

// RequesterContext identifies who is trying to redeem a discount code.
type RequesterContext struct {
	UserID         string
	Email          string
	IP             string
	UserAgent      string
	AccountAgeDays int
}

// CodeUsageStats is the recent usage history for a code, gathered by
// the caller. Keeping the scorer pure means it can run before any
// database write and is trivially testable.
type CodeUsageStats struct {
	UsesByThisUser int64
	UsesFromThisIP int64
	UsesLast24h    int64
}

type FraudAssessment struct {
	RiskScore int
	Action    string // model.FraudActionAllow / Flag / Deny
	Reasons   []string
}

const (
	fraudDenyThreshold = 70
	fraudFlagThreshold = 40
)

var disposableEmailDomains = map[string]bool{
	"mailinator.com":    true,
	"guerrillamail.com": true,
	"10minutemail.com":  true,
	"tempmail.com":      true,
	"trashmail.com":     true,
	"yopmail.com":       true,
}

type FraudScorer interface {
	Assess(code string, req RequesterContext, stats CodeUsageStats) FraudAssessment
}

type fraudScorerImpl struct{}

func NewFraudScorer() FraudScorer {
	return &fraudScorerImpl{}
}

// Assess scores a redemption attempt. Pure: no storage, no clock.
func (s *fraudScorerImpl) Assess(code string, req RequesterContext, stats CodeUsageStats) FraudAssessment {
	score := 0
	var reasons []string

	if stats.UsesByThisUser > 0 {
		score += 40
		reasons = append(reasons, "code already redeemed by this account")
	}
	if stats.UsesFromThisIP >= 3 {
		score += 30
		reasons = append(reasons, "repeated redemptions from this IP")
	}
	if stats.UsesLast24h >= 10 {
		score += 25
		reasons = append(reasons, "high redemption velocity on this code")
	}
	if req.AccountAgeDays < 1 {
		score += 15
		reasons = append(reasons, "account created less than a day ago")
	}
	if domain := emailDomain(req.Email); disposableEmailDomains[domain] {
		score += 20
		reasons = append(reasons, "disposable email domain")
	}
	if req.UserAgent == "" {
		score += 10
		reasons = append(reasons, "missing user agent")
	}

	action := model.FraudActionAllow
	switch {
	case score >= fraudDenyThreshold:
		action = model.FraudActionDeny
	case score >= fraudFlagThreshold:
		action = model.FraudActionFlag
	}

	return FraudAssessment{
		RiskScore: score,
		Action:    action,
		Reasons:   reasons,
	}
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
