package common

import (
	"time"

	"github.com/google/uuid"
)

// ContentType selects the destination directory of a download.
type ContentType string

const (
	ContentMovie  ContentType = "movie"
	ContentSeries ContentType = "series"
)

// ParseContentType maps user input onto a ContentType. Anything that is not
// "series" is treated as a movie.
func ParseContentType(s string) ContentType {
	if ContentType(s) == ContentSeries {
		return ContentSeries
	}
	return ContentMovie
}

// Label is the display label used by the file listing.
func (c ContentType) Label() string {
	if c == ContentSeries {
		return "📺 Series"
	}
	return "🎬 Movie"
}

// DownloadState is the progress record of one file id.
type DownloadState struct {
	FileID         string      `json:"fileId"`
	RunID          uuid.UUID   `json:"runId"`
	FileName       string      `json:"fileName"`
	ContentType    ContentType `json:"contentType"`
	Status         Status      `json:"status"`
	Progress       int         `json:"progress"`
	Message        string      `json:"message"`
	TotalSize      int64       `json:"totalSize"`
	DownloadedSize int64       `json:"downloadedSize"`
	StartTime      time.Time   `json:"startTime"`
	EndTime        time.Time   `json:"endTime,omitempty"`
	FilePath       string      `json:"filePath,omitempty"`
	FinalSize      int64       `json:"finalSize,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// SetProgress raises the progress value. Lower values are ignored so progress
// never goes backwards within a task.
func (s *DownloadState) SetProgress(p int) {
	if p > ProgressDone {
		p = ProgressDone
	}
	if p > s.Progress {
		s.Progress = p
	}
}

// SetStatus moves the entry to a new status unless it is already terminal.
func (s *DownloadState) SetStatus(status Status) bool {
	if s.Status.IsTerminal() {
		return false
	}
	s.Status = status
	return true
}

// GlobalStats aggregates the entries currently held in memory.
type GlobalStats struct {
	Queued      int `json:"queued"`
	Downloading int `json:"downloading"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	Total       int `json:"total"`
}

// Add counts one entry with the given status.
func (g *GlobalStats) Add(status Status) {
	switch status {
	case StatusQueued:
		g.Queued++
	case StatusDownloading:
		g.Downloading++
	case StatusCompleted:
		g.Completed++
	case StatusFailed:
		g.Failed++
	}
	g.Total++
}
