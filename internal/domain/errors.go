package domain

import "errors"

var (
	ErrTokenNotFound          = errors.New("token not found")
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable")
	ErrInvalidAPIKey          = errors.New("invalid API key")
)
