package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateID        = errors.New("duplicate file id")
	ErrFileProcessing     = errors.New("file is being processed")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrProgressRegression = errors.New("progress must not decrease")
	ErrNoSegments         = errors.New("no transcript segments available")
	ErrCancelled          = errors.New("transcription cancelled")
)
