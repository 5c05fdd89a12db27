package downloader

import (
	"context"
	"errors"
	"time"

	"github.com/NamanBalaji/wsdl/internal/common"
	"github.com/NamanBalaji/wsdl/internal/webshare"
)

var (
	ErrDestinationExists = errors.New("destination file already exists")
	ErrInsufficientSpace = errors.New("insufficient disk space")
)

// Remote resolves a file id and opens its payload.
type Remote interface {
	InitiateDownload(ctx context.Context, ident string) (*webshare.FileLink, error)
	Fetch(ctx context.Context, url string) (*webshare.Stream, error)
}

// Tracker is the part of the registry a task writes to.
type Tracker interface {
	// Update applies fn to the live entry and reports whether it still exists.
	Update(fileID string, fn func(*common.DownloadState)) bool
	ScheduleEviction(fileID string, delay time.Duration)
}

// Options tune a single task.
type Options struct {
	// Dir is the destination directory.
	Dir       string
	ChunkSize int
	// RateLimit is in bytes per second; zero disables throttling.
	RateLimit   int64
	GracePeriod time.Duration
	// FailedRetention schedules eviction of failed entries; zero keeps them.
	FailedRetention time.Duration
	// OnBytes is called with every chunk written.
	OnBytes func(n int)
	// FreeSpace reports the bytes available at path. Defaults to a disk usage query.
	FreeSpace func(path string) (uint64, error)
}

const defaultChunkSize = 8 * 1024
