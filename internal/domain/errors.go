package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyActive        = errors.New("asset already has an active position")
	ErrNotActive            = errors.New("position is not active")
	ErrCapReached           = errors.New("active position cap reached")
	ErrValuationUnavailable = errors.New("valuation unavailable")
	ErrWSDisconnect         = errors.New("websocket disconnected")
	ErrLockHeld             = errors.New("lock already held")
)
