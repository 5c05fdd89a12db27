package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/NamanBalaji/wsdl/internal/common"
	"github.com/NamanBalaji/wsdl/internal/downloader"
	"github.com/NamanBalaji/wsdl/internal/logger"
	"github.com/NamanBalaji/wsdl/internal/notify"
)

const maxFileIDLength = 128

// Config holds the engine options.
type Config struct {
	MoviesDir              string
	SeriesDir              string
	MaxConcurrentDownloads int
	GracePeriod            time.Duration
	FailedRetention        time.Duration
	ChunkSize              int
	RateLimit              int64
	HistoryRetention       time.Duration
	PruneSchedule          string
}

func DefaultConfig() *Config {
	return &Config{
		MoviesDir:              "/downloads/movies",
		SeriesDir:              "/downloads/series",
		MaxConcurrentDownloads: 3,
		GracePeriod:            30 * time.Second,
		ChunkSize:              8 * 1024,
	}
}

// History persists terminal snapshots.
type History interface {
	Save(state common.DownloadState) error
	Prune(before time.Time) (int, error)
}

// Recorder receives download lifecycle events for metrics.
type Recorder interface {
	Started()
	Running(delta int)
	Finished(status common.Status)
	AddBytes(n int)
}

type nopRecorder struct{}

func (nopRecorder) Started()               {}
func (nopRecorder) Running(int)            {}
func (nopRecorder) Finished(common.Status) {}
func (nopRecorder) AddBytes(int)           {}

// Request asks for one file to be downloaded.
type Request struct {
	FileID      string
	FileName    string
	ContentType common.ContentType
	Priority    int
}

type Engine struct {
	mu sync.RWMutex

	config         *Config
	registry       *Registry
	remote         downloader.Remote
	notifier       notify.Notifier
	history        History
	metrics        Recorder
	queueProcessor *QueueProcessor
	scheduler      *cron.Cron

	ctx        context.Context
	cancelFunc context.CancelFunc
	stopCh     chan struct{}
	wg         sync.WaitGroup
	running    bool
}

// runTask runs a function in a goroutine tracked by the WaitGroup.
func (e *Engine) runTask(task func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		task()
	}()
}

// New creates a new Engine instance. history and metrics may be nil.
func New(config *Config, remote downloader.Remote, notifier notify.Notifier, history History, metrics Recorder) (*Engine, error) {
	logger.Infof("Creating new engine instance")

	if config == nil {
		logger.Debugf("No config provided, using default config")
		config = DefaultConfig()
	}
	if remote == nil {
		return nil, fmt.Errorf("remote client is required")
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}

	return &Engine{
		config:   config,
		registry: NewRegistry(),
		remote:   remote,
		notifier: notifier,
		history:  history,
		metrics:  metrics,
	}, nil
}

// Start launches the queue processor and the history pruning schedule.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		logger.Debugf("Engine already running, skipping start")
		return nil
	}

	e.ctx, e.cancelFunc = context.WithCancel(ctx)
	e.stopCh = make(chan struct{})

	logger.Debugf("Creating queue processor with max concurrent downloads: %d", e.config.MaxConcurrentDownloads)
	e.queueProcessor = NewQueueProcessor(e.config.MaxConcurrentDownloads, e.startDownload, e.stopCh, e.runTask)

	if e.history != nil && e.config.HistoryRetention > 0 && e.config.PruneSchedule != "" {
		e.scheduler = cron.New()
		if _, err := e.scheduler.AddFunc(e.config.PruneSchedule, e.pruneHistory); err != nil {
			e.cancelFunc()
			close(e.stopCh)
			return fmt.Errorf("invalid prune schedule %q: %w", e.config.PruneSchedule, err)
		}
		e.scheduler.Start()
		logger.Debugf("History pruning scheduled %q, retention %v", e.config.PruneSchedule, e.config.HistoryRetention)
	}

	e.running = true
	logger.Infof("Engine started")
	return nil
}

// BeginDownload registers the file and queues a task for it. When the id is
// already tracked the existing state is returned with inFlight=true and no
// task is started.
func (e *Engine) BeginDownload(ctx context.Context, req Request) (common.DownloadState, bool, error) {
	fileID := strings.TrimSpace(req.FileID)
	if !validFileID(fileID) {
		return common.DownloadState{}, false, ErrInvalidFileID
	}
	if err := ctx.Err(); err != nil {
		return common.DownloadState{}, false, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.running {
		logger.Errorf("Cannot add download, engine is not running")
		return common.DownloadState{}, false, ErrEngineNotRunning
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = common.ContentMovie
	}

	state, inFlight := e.registry.TryBegin(common.DownloadState{
		FileID:      fileID,
		RunID:       uuid.New(),
		FileName:    req.FileName,
		ContentType: contentType,
		Message:     "Waiting in queue...",
		StartTime:   time.Now(),
	})
	if inFlight {
		logger.Infof("Download %s already tracked with status %s", fileID, state.Status)
		return state, true, nil
	}

	e.metrics.Started()
	e.queueProcessor.Enqueue(Job{
		FileID:      fileID,
		RunID:       state.RunID,
		FileName:    req.FileName,
		ContentType: contentType,
		Priority:    req.Priority,
	})
	logger.Infof("Download %s accepted as %s into %s", fileID, contentType, e.dirFor(contentType))

	return state, false, nil
}

func validFileID(id string) bool {
	if id == "" || len(id) > maxFileIDLength {
		return false
	}
	return !strings.ContainsAny(id, "/\\ \t\r\n")
}

func (e *Engine) dirFor(ct common.ContentType) string {
	if ct == common.ContentSeries {
		return e.config.SeriesDir
	}
	return e.config.MoviesDir
}

// startDownload runs one job to completion on a queue slot.
func (e *Engine) startDownload(job Job) error {
	task := downloader.NewTask(job.FileID, job.FileName, e.remote, e.registry, e.notifier, downloader.Options{
		Dir:             e.dirFor(job.ContentType),
		ChunkSize:       e.config.ChunkSize,
		RateLimit:       e.config.RateLimit,
		GracePeriod:     e.config.GracePeriod,
		FailedRetention: e.config.FailedRetention,
		OnBytes:         e.metrics.AddBytes,
	})

	e.metrics.Running(1)
	final := task.Run(e.ctx)
	e.metrics.Running(-1)
	e.metrics.Finished(final.Status)

	if e.history != nil {
		if err := e.history.Save(final); err != nil {
			logger.Errorf("Failed to save history for %s: %v", job.FileID, err)
		}
	}

	return nil
}

func (e *Engine) pruneHistory() {
	before := time.Now().Add(-e.config.HistoryRetention)
	n, err := e.history.Prune(before)
	if err != nil {
		logger.Errorf("Failed to prune history: %v", err)
		return
	}
	if n > 0 {
		logger.Infof("Pruned %d history records older than %s", n, before.Format(time.RFC3339))
	}
}

// Progress returns the tracked state of a file.
func (e *Engine) Progress(fileID string) (common.DownloadState, error) {
	state, ok := e.registry.Get(fileID)
	if !ok {
		return common.DownloadState{}, ErrDownloadNotFound
	}
	return state, nil
}

// Clear forgets a terminal entry before its eviction fires.
func (e *Engine) Clear(fileID string) (common.DownloadState, error) {
	state, err := e.registry.Remove(fileID)
	if err != nil {
		return state, err
	}
	logger.Infof("Cleared download entry %s (%s)", fileID, state.Status)
	return state, nil
}

// Active returns every tracked entry, oldest first.
func (e *Engine) Active() []common.DownloadState {
	return e.registry.List()
}

func (e *Engine) Stats() common.GlobalStats {
	return e.registry.Stats()
}

// Shutdown stops accepting work, cancels running tasks and waits for them
// until ctx expires.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		logger.Debugf("Engine not running, skipping shutdown")
		e.mu.Unlock()
		return nil
	}

	logger.Infof("Starting engine shutdown...")
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	if e.scheduler != nil {
		<-e.scheduler.Stop().Done()
	}

	logger.Debugf("Cancelling engine context")
	e.cancelFunc()

	waitChan := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(waitChan)
	}()

	var err error
	select {
	case <-waitChan:
		logger.Infof("All tasks completed gracefully")
	case <-ctx.Done():
		logger.Warnf("Shutdown timed out, some tasks may not have completed")
		err = ctx.Err()
	}

	e.registry.Close()
	logger.Infof("Engine shutdown complete")
	return err
}

// Wait blocks until every task started by the engine has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}
