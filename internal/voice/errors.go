package voice

import "errors"

var (
	// ErrTranscription aborts the current turn.
	ErrTranscription = errors.New("transcription failed")
	ErrGeneration    = errors.New("reply generation failed")
	ErrSynthesis     = errors.New("speech synthesis failed")
	// ErrInvalidFrame marks a malformed audio chunk; it is skipped, never fatal.
	ErrInvalidFrame  = errors.New("invalid audio frame")
	ErrCaptureClosed = errors.New("capture not connected")
	// ErrEmptyTurn marks a turn with audio whose transcriptions were all blank.
	ErrEmptyTurn = errors.New("turn produced no transcribed speech")
)
