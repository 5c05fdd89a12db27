package engine

import "errors"

var (
	// ErrDownloadNotFound is returned when no entry exists for a file id.
	ErrDownloadNotFound = errors.New("download not found")

	// ErrDownloadActive is returned when clearing an entry a task still owns.
	ErrDownloadActive = errors.New("download is still active")

	// ErrInvalidFileID is returned for empty or malformed file ids.
	ErrInvalidFileID = errors.New("invalid file id")

	// ErrEngineNotRunning is returned when an operation requires the engine to be running.
	ErrEngineNotRunning = errors.New("engine is not running")
)
