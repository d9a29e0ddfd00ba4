package domain

import "time"

// RiskState is the process-wide risk ledger. Exactly one writer (the risk
// governor) mutates it; everything else reads snapshots. Daily counters are
// persisted so the reset and pause logic survive a restart.
type RiskState struct {
	CircuitOpen         bool
	PauseUntil          time.Time // zero when not paused; strictly future when set
	PauseReason         string
	ConsecutiveFailures int
	DailyTrades         int
	DailyPnL            float64
	LastReset           time.Time // date of the last daily counter reset
	UpdatedAt           time.Time
}

// Paused reports whether the circuit breaker holds at now.
func (s RiskState) Paused(now time.Time) bool {
	return s.CircuitOpen && now.Before(s.PauseUntil)
}

// SameResetDay reports whether now falls on the same calendar date as the
// last daily reset, in UTC.
func (s RiskState) SameResetDay(now time.Time) bool {
	y1, m1, d1 := s.LastReset.UTC().Date()
	y2, m2, d2 := now.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
