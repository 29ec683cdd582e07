package domain

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("position state advanced by another writer")
	ErrNoQuote     = errors.New("no quote available")
	ErrNoContract  = errors.New("no contract matched the selection criteria")
	ErrLockHeld    = errors.New("lock already held")
	ErrStreamDown  = errors.New("market data stream disconnected")
	ErrNotifyFail  = errors.New("notification delivery failed")
	ErrPlanMissing = errors.New("position has no trade plan")
)
