package app

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrSessionNotFound      = errors.New("session not found")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrActivationNotAllowed = errors.New("cross-session activation requires the top tier")
)
