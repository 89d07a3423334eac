package game

import "errors"

// Turn-fatal errors. Everything else inside a turn degrades to a fallback.
var (
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionInactive         = errors.New("session is not active")
	ErrPlayerCharacterNotFound = errors.New("player character not found in story")
	ErrStoryNotFound           = errors.New("story not found")
	ErrEmptyMessage            = errors.New("message is empty")
)
