package domain

import "time"

// OpportunityStatus tracks an opportunity through its lifecycle. Transitions
// only move forward: candidate -> selected -> executing -> succeeded|failed,
// or candidate -> expired.
type OpportunityStatus string

const (
	OpportunityCandidate OpportunityStatus = "candidate"
	OpportunitySelected  OpportunityStatus = "selected"
	OpportunityExecuting OpportunityStatus = "executing"
	OpportunitySucceeded OpportunityStatus = "succeeded"
	OpportunityFailed    OpportunityStatus = "failed"
	OpportunityExpired   OpportunityStatus = "expired"
)

// statusRank orders statuses along the forward-only lifecycle. Expired is a
// terminal branch from candidate.
var statusRank = map[OpportunityStatus]int{
	OpportunityCandidate: 0,
	OpportunitySelected:  1,
	OpportunityExecuting: 2,
	OpportunitySucceeded: 3,
	OpportunityFailed:    3,
	OpportunityExpired:   3,
}

// CanTransition reports whether moving from to next respects the forward-only
// status machine.
func (s OpportunityStatus) CanTransition(next OpportunityStatus) bool {
	if s == next {
		return false
	}
	if next == OpportunityExpired {
		return s == OpportunityCandidate
	}
	return statusRank[next] == statusRank[s]+1
}

// Terminal reports whether the status is an end state.
func (s OpportunityStatus) Terminal() bool {
	return s == OpportunitySucceeded || s == OpportunityFailed || s == OpportunityExpired
}

// CostBreakdown itemizes everything subtracted from gross profit.
type CostBreakdown struct {
	FlashLoanFee float64
	VenueFees    float64
	GasCost      float64
	SlippageCost float64
}

// Total returns the sum of all cost items.
func (c CostBreakdown) Total() float64 {
	return c.FlashLoanFee + c.VenueFees + c.GasCost + c.SlippageCost
}

// ArbitrageOpportunity is one scored candidate trade between two venues.
// Created fresh each detection cycle; archived after one execution attempt
// or once its TTL elapses with no attempt.
type ArbitrageOpportunity struct {
	ID     string
	Pair   string
	Status OpportunityStatus

	BuyVenue  string
	BuyPrice  float64
	SellVenue string
	SellPrice float64

	TradeAmount float64
	ImpactBuy   float64 // estimated price impact on the buy side, fraction
	ImpactSell  float64

	GrossProfit float64
	Costs       CostBreakdown
	NetProfit   float64

	Confidence float64 // in [0,1]
	RiskScore  float64 // in [0,1]

	CreatedAt time.Time
}

// Spread returns the relative spread between the two venues.
func (o ArbitrageOpportunity) Spread() float64 {
	if o.BuyPrice <= 0 {
		return 0
	}
	return (o.SellPrice - o.BuyPrice) / o.BuyPrice
}

// Expired reports whether the opportunity's TTL has elapsed at now.
func (o ArbitrageOpportunity) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(o.CreatedAt) > ttl
}
