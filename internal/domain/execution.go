package domain

import "time"

// ExecutionOutcome classifies how an execution attempt ended.
type ExecutionOutcome string

const (
	OutcomeSucceeded ExecutionOutcome = "succeeded"
	OutcomeFailed    ExecutionOutcome = "failed"
	OutcomeBlocked   ExecutionOutcome = "blocked" // circuit breaker short-circuit, not a failure
)

// ExecutionResult is the immutable record of one execution attempt. One row
// is appended to the execution-history log per attempt.
type ExecutionResult struct {
	ID            string
	OpportunityID string
	Pair          string
	Outcome       ExecutionOutcome
	Success       bool
	RealizedPnL   float64 // may differ from the estimated net profit
	GasUsed       float64 // gas / compute cost actually consumed
	ErrorClass    string  // empty on success
	Duration      time.Duration
	ExecutedAt    time.Time
}

// EngineMetrics are the running aggregates the coordinator maintains.
type EngineMetrics struct {
	TotalTrades int
	Succeeded   int
	Failed      int
	TotalProfit float64
	TotalCosts  float64
}

// SuccessRate returns the fraction of attempts that succeeded.
func (m EngineMetrics) SuccessRate() float64 {
	if m.TotalTrades == 0 {
		return 0
	}
	return float64(m.Succeeded) / float64(m.TotalTrades)
}
