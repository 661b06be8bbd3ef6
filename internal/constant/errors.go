package constant

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found or expired")
	ErrInvalidImage    = errors.New("image must be base64 encoded with an image mime type")
	ErrLiveInProgress  = errors.New("a live call is already running for this session")
)
