package engine

import "errors"

var (
	// ErrInvalidSelection is returned when a channel change would leave a
	// selected sensor with no active metric. The previous selection is kept.
	ErrInvalidSelection = errors.New("engine: selection would leave a sensor without active metrics")

	// ErrEmptyRecording is returned by Save when the time buffer holds no
	// samples. No state changes.
	ErrEmptyRecording = errors.New("engine: no buffered samples to save")
)
