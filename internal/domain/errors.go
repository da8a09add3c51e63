package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidListing  = errors.New("invalid listing")
	ErrInvalidEnvelope = errors.New("invalid trade envelope")
	ErrRelayDisconnect = errors.New("relay disconnected")
	ErrContextDone     = errors.New("context cancelled")
	ErrLockHeld        = errors.New("lock already held")
)
