package usecase

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	// ErrCalculationDisabled signals that automatic calculation is switched
	// off and the caller must fall back to a manual trigger.
	ErrCalculationDisabled = errors.New("automatic calculation is disabled")
	ErrQueueStopped        = errors.New("queue is stopped")
)
