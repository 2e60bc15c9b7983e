package domain

import "errors"

var (
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrSessionNotFound  = errors.New("authorization session not found")
	ErrSessionExpired   = errors.New("authorization session expired")
	ErrProviderMismatch = errors.New("authorization session provider mismatch")
)
