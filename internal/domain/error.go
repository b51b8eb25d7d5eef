package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidLevel       = errors.New("invalid english level")
	ErrQuotaExceeded      = errors.New("free message quota exceeded")
	ErrRateLimited        = errors.New("too many requests")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// AI side
	ErrMalformedResponse = errors.New("malformed upstream response")
	ErrEmptyResponse     = errors.New("empty upstream response")
	ErrTTSDisabled       = errors.New("speech synthesis disabled")
	ErrAudioConversion   = errors.New("audio conversion failed")
)
