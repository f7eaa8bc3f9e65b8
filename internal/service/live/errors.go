package live

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrTurnInProgress    = errors.New("turn in progress")
	ErrProcessingTimeout = errors.New("processing timeout")
	ErrBackend           = errors.New("backend error")
	ErrSpeechUnavailable = errors.New("speech service unavailable")
)
