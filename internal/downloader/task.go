package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/NamanBalaji/wsdl/internal/common"
	"github.com/NamanBalaji/wsdl/internal/logger"
	"github.com/NamanBalaji/wsdl/internal/notify"
)

const (
	msgStarting   = "Starting download..."
	msgConnecting = "Connecting to server..."
	msgCompleted  = "Download completed!"
)

// Task downloads one remote file into the destination directory and reports
// every step to its Tracker entry.
type Task struct {
	FileID   string
	FileName string

	remote   Remote
	tracker  Tracker
	notifier notify.Notifier
	opts     Options

	last common.DownloadState
}

func NewTask(fileID, fileName string, remote Remote, tracker Tracker, notifier notify.Notifier, opts Options) *Task {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.FreeSpace == nil {
		opts.FreeSpace = diskFree
	}

	return &Task{
		FileID:   fileID,
		FileName: fileName,
		remote:   remote,
		tracker:  tracker,
		notifier: notifier,
		opts:     opts,
		last:     common.DownloadState{FileID: fileID, FileName: fileName},
	}
}

// update mutates the tracked entry and remembers the resulting snapshot.
func (t *Task) update(fn func(*common.DownloadState)) {
	ok := t.tracker.Update(t.FileID, func(s *common.DownloadState) {
		fn(s)
		t.last = *s
	})
	if !ok {
		fn(&t.last)
		logger.Warnf("Download %s is no longer tracked", t.FileID)
	}
}

// Run executes the task to a terminal state and returns the final snapshot.
func (t *Task) Run(ctx context.Context) common.DownloadState {
	t.update(func(s *common.DownloadState) {
		s.SetStatus(common.StatusDownloading)
		s.Message = msgStarting
	})

	path, size, err := t.download(ctx)
	if err != nil {
		t.fail(err)
		return t.last
	}

	t.update(func(s *common.DownloadState) {
		s.SetStatus(common.StatusCompleted)
		s.SetProgress(common.ProgressDone)
		s.Message = msgCompleted
		s.FilePath = path
		s.FinalSize = size
		s.EndTime = time.Now()
	})
	logger.Infof("Download %s completed: %s (%s)", t.FileID, path, humanize.IBytes(uint64(size)))

	if err := t.notifier.Refresh(ctx); err != nil {
		logger.Warnf("Library refresh after %s failed: %v", t.FileID, err)
	}

	t.tracker.ScheduleEviction(t.FileID, t.opts.GracePeriod)
	return t.last
}

func (t *Task) fail(err error) {
	logger.Errorf("Download %s failed: %v", t.FileID, err)

	t.update(func(s *common.DownloadState) {
		s.SetStatus(common.StatusFailed)
		s.Error = err.Error()
		s.Message = "Download failed: " + err.Error()
		s.EndTime = time.Now()
	})

	if t.opts.FailedRetention > 0 {
		t.tracker.ScheduleEviction(t.FileID, t.opts.FailedRetention)
	}
}

func (t *Task) download(ctx context.Context) (string, int64, error) {
	link, err := t.remote.InitiateDownload(ctx, t.FileID)
	if err != nil {
		return "", 0, fmt.Errorf("failed to get download link: %w", err)
	}

	name := t.FileName
	if name == "" {
		name = link.Name
	}
	name = sanitizeName(name, t.FileID)
	t.update(func(s *common.DownloadState) {
		s.FileName = name
	})

	if err := os.MkdirAll(t.opts.Dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create directory: %w", err)
	}

	dest := filepath.Join(t.opts.Dir, name)
	if _, err := os.Stat(dest); err == nil {
		return "", 0, fmt.Errorf("%w: %s", ErrDestinationExists, dest)
	}

	if link.Size > 0 {
		free, err := t.opts.FreeSpace(t.opts.Dir)
		switch {
		case err != nil:
			logger.Warnf("Could not check free space in %s: %v", t.opts.Dir, err)
		case free < uint64(link.Size):
			return "", 0, fmt.Errorf("%w: need %s, have %s", ErrInsufficientSpace,
				humanize.IBytes(uint64(link.Size)), humanize.IBytes(free))
		}
	}

	t.update(func(s *common.DownloadState) {
		s.SetProgress(common.ProgressConnecting)
		s.Message = msgConnecting
	})

	stream, err := t.remote.Fetch(ctx, link.URL)
	if err != nil {
		return "", 0, err
	}
	defer stream.Body.Close()

	total := stream.ContentLength
	if total <= 0 {
		total = link.Size
	}
	if total < 0 {
		total = 0
	}

	t.update(func(s *common.DownloadState) {
		s.TotalSize = total
		s.SetProgress(common.ProgressStreamStart)
		s.Message = "Downloading... 0%"
	})
	logger.Debugf("Streaming %s to %s (%d bytes expected)", t.FileID, dest, total)

	part := fmt.Sprintf("%s.%s.part", dest, t.FileID)
	written, err := t.stream(ctx, stream.Body, part, total)
	if err != nil {
		return "", 0, err
	}

	if err := os.Rename(part, dest); err != nil {
		return "", 0, fmt.Errorf("failed to move %s into place: %w", part, err)
	}
	if err := os.Chmod(dest, 0o644); err != nil {
		logger.Warnf("Could not set permissions on %s: %v", dest, err)
	}

	return dest, written, nil
}

// stream copies body into path chunk by chunk, updating progress after every write.
func (t *Task) stream(ctx context.Context, body io.Reader, path string, total int64) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if t.opts.RateLimit > 0 {
		body = newRateLimitedReader(ctx, body, t.opts.RateLimit, t.opts.ChunkSize)
	}

	buf := make([]byte, t.opts.ChunkSize)
	var downloaded int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return downloaded, fmt.Errorf("failed to write file: %w", werr)
			}
			downloaded += int64(n)
			if t.opts.OnBytes != nil {
				t.opts.OnBytes(n)
			}
			t.reportBytes(downloaded, total)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return downloaded, fmt.Errorf("download interrupted: %w", rerr)
		}
	}

	if err := f.Sync(); err != nil {
		return downloaded, fmt.Errorf("failed to flush file: %w", err)
	}
	return downloaded, f.Close()
}

func (t *Task) reportBytes(downloaded, total int64) {
	t.update(func(s *common.DownloadState) {
		s.DownloadedSize = downloaded
		if p, ok := common.StreamProgress(downloaded, total); ok {
			s.SetProgress(p)
			s.Message = fmt.Sprintf("Downloading... %d%%", common.BytePercent(downloaded, total))
			return
		}
		s.Message = "Downloading... " + humanize.IBytes(uint64(downloaded))
	})
}

// sanitizeName strips any directory part so the file stays inside the destination.
func sanitizeName(name, fallback string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = filepath.Base(name)
	switch name {
	case "", ".", "..", "/":
		return fallback
	}
	return name
}
