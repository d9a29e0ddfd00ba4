package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrQuoteUnavailable      = errors.New("quote unavailable")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrExecutionFailed       = errors.New("execution failed")
	ErrExecutionBlocked      = errors.New("execution blocked by circuit breaker")
	ErrDailyTradeLimit       = errors.New("daily trade limit reached")
	ErrWorkerUnavailable     = errors.New("no eligible worker available")
	ErrRateLimited           = errors.New("rate limited")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidTransition     = errors.New("invalid status transition")
)
