package models

import "errors"

// Sentinel errors shared by the pipeline packages. Callers wrap them with %w
// and test with errors.Is.
var (
	// ErrConfiguration is fatal at construction time: a model or store that cannot be loaded.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidArgument reports caller misuse such as an empty question or k <= 0.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrIndexUnavailable means the vector index storage is unreachable or corrupt.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrGeneration means the external answer service failed. Ask recovers from it.
	ErrGeneration = errors.New("generation failed")
)
