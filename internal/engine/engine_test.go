package engine_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/wsdl/internal/common"
	"github.com/NamanBalaji/wsdl/internal/engine"
	"github.com/NamanBalaji/wsdl/internal/webshare"
)

type fakeRemote struct {
	initiated atomic.Int32
	gate      chan struct{}
	failIDs   map[string]bool
	payload   []byte
}

func (f *fakeRemote) InitiateDownload(ctx context.Context, ident string) (*webshare.FileLink, error) {
	f.initiated.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failIDs[ident] {
		return nil, errors.New("file not found")
	}
	return &webshare.FileLink{URL: "http://host/" + ident, Size: int64(len(f.payload)), Name: ident + ".mkv"}, nil
}

func (f *fakeRemote) Fetch(ctx context.Context, url string) (*webshare.Stream, error) {
	return &webshare.Stream{Body: io.NopCloser(bytes.NewReader(f.payload)), ContentLength: int64(len(f.payload))}, nil
}

type memoryHistory struct {
	mu     sync.Mutex
	saved  []common.DownloadState
	pruned int
}

func (m *memoryHistory) Save(state common.DownloadState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, state)
	return nil
}

func (m *memoryHistory) Prune(time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned++
	return 0, nil
}

func (m *memoryHistory) records() []common.DownloadState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]common.DownloadState(nil), m.saved...)
}

func newEngine(t *testing.T, remote *fakeRemote, history engine.History, tweak func(*engine.Config)) *engine.Engine {
	t.Helper()
	dir := t.TempDir()
	cfg := engine.DefaultConfig()
	cfg.MoviesDir = filepath.Join(dir, "movies")
	cfg.SeriesDir = filepath.Join(dir, "series")
	if tweak != nil {
		tweak(cfg)
	}

	e, err := engine.New(cfg, remote, nil, history, nil)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

func waitTerminal(t *testing.T, e *engine.Engine, fileID string) common.DownloadState {
	t.Helper()
	var state common.DownloadState
	require.Eventually(t, func() bool {
		s, err := e.Progress(fileID)
		if err != nil {
			return false
		}
		state = s
		return s.Status.IsTerminal()
	}, 2*time.Second, 5*time.Millisecond)
	return state
}

func TestBeginDownloadValidation(t *testing.T) {
	e := newEngine(t, &fakeRemote{}, nil, nil)

	for _, id := range []string{"", "   ", "a/b", "..\\x", "has space"} {
		_, _, err := e.BeginDownload(context.Background(), engine.Request{FileID: id})
		assert.ErrorIs(t, err, engine.ErrInvalidFileID, "id %q", id)
	}
}

func TestBeginDownloadNotRunning(t *testing.T) {
	e, err := engine.New(nil, &fakeRemote{}, nil, nil, nil)
	require.NoError(t, err)

	_, _, err = e.BeginDownload(context.Background(), engine.Request{FileID: "abc"})
	assert.ErrorIs(t, err, engine.ErrEngineNotRunning)
}

func TestNewRequiresRemote(t *testing.T) {
	_, err := engine.New(nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestDuplicateRequestsStartOneTask(t *testing.T) {
	remote := &fakeRemote{gate: make(chan struct{}), payload: []byte("data")}
	e := newEngine(t, remote, nil, nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, inFlight, err := e.BeginDownload(context.Background(), engine.Request{FileID: "dup", FileName: "dup.mkv"})
			assert.NoError(t, err)
			if !inFlight {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(remote.gate)

	state := waitTerminal(t, e, "dup")
	assert.Equal(t, common.StatusCompleted, state.Status)
	assert.Equal(t, 1, accepted)
	assert.Equal(t, int32(1), remote.initiated.Load())
}

func TestCompletedEntryIsEvictedAfterGracePeriod(t *testing.T) {
	history := &memoryHistory{}
	remote := &fakeRemote{payload: []byte("hello world")}
	e := newEngine(t, remote, history, func(c *engine.Config) {
		c.GracePeriod = 50 * time.Millisecond
	})

	state, inFlight, err := e.BeginDownload(context.Background(), engine.Request{FileID: "ok", ContentType: common.ContentSeries})
	require.NoError(t, err)
	assert.False(t, inFlight)
	assert.Equal(t, common.StatusQueued, state.Status)

	final := waitTerminal(t, e, "ok")
	assert.Equal(t, common.StatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Contains(t, final.FilePath, filepath.Join("series", "ok.mkv"))

	require.Eventually(t, func() bool {
		_, err := e.Progress("ok")
		return errors.Is(err, engine.ErrDownloadNotFound)
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return len(history.records()) == 1 }, time.Second, 5*time.Millisecond)
	rec := history.records()[0]
	assert.Equal(t, state.RunID, rec.RunID)
	assert.Equal(t, common.StatusCompleted, rec.Status)
}

func TestFailedEntryIsRetainedUntilCleared(t *testing.T) {
	remote := &fakeRemote{failIDs: map[string]bool{"bad": true}}
	e := newEngine(t, remote, nil, func(c *engine.Config) {
		c.GracePeriod = 10 * time.Millisecond
	})

	_, _, err := e.BeginDownload(context.Background(), engine.Request{FileID: "bad"})
	require.NoError(t, err)

	final := waitTerminal(t, e, "bad")
	assert.Equal(t, common.StatusFailed, final.Status)
	assert.Equal(t, 0, final.Progress)
	assert.Contains(t, final.Error, "file not found")

	time.Sleep(50 * time.Millisecond)
	again, inFlight, err := e.BeginDownload(context.Background(), engine.Request{FileID: "bad"})
	require.NoError(t, err)
	assert.True(t, inFlight)
	assert.Equal(t, common.StatusFailed, again.Status)

	cleared, err := e.Clear("bad")
	require.NoError(t, err)
	assert.Equal(t, common.StatusFailed, cleared.Status)

	_, err = e.Progress("bad")
	assert.ErrorIs(t, err, engine.ErrDownloadNotFound)

	_, inFlight, err = e.BeginDownload(context.Background(), engine.Request{FileID: "bad"})
	require.NoError(t, err)
	assert.False(t, inFlight)
	waitTerminal(t, e, "bad")
	assert.Equal(t, int32(2), remote.initiated.Load())
}

func TestFailedRetentionEvicts(t *testing.T) {
	remote := &fakeRemote{failIDs: map[string]bool{"bad": true}}
	e := newEngine(t, remote, nil, func(c *engine.Config) {
		c.FailedRetention = 30 * time.Millisecond
	})

	_, _, err := e.BeginDownload(context.Background(), engine.Request{FileID: "bad"})
	require.NoError(t, err)
	waitTerminal(t, e, "bad")

	require.Eventually(t, func() bool {
		_, err := e.Progress("bad")
		return errors.Is(err, engine.ErrDownloadNotFound)
	}, time.Second, 5*time.Millisecond)
}

func TestClearActiveEntry(t *testing.T) {
	remote := &fakeRemote{gate: make(chan struct{}), payload: []byte("x")}
	e := newEngine(t, remote, nil, nil)

	_, _, err := e.BeginDownload(context.Background(), engine.Request{FileID: "busy"})
	require.NoError(t, err)

	_, err = e.Clear("busy")
	assert.ErrorIs(t, err, engine.ErrDownloadActive)

	_, err = e.Clear("unknown")
	assert.ErrorIs(t, err, engine.ErrDownloadNotFound)

	stats := e.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Len(t, e.Active(), 1)

	close(remote.gate)
	waitTerminal(t, e, "busy")
}

func TestConcurrencyBound(t *testing.T) {
	remote := &fakeRemote{gate: make(chan struct{}), payload: []byte("x")}
	e := newEngine(t, remote, nil, func(c *engine.Config) {
		c.MaxConcurrentDownloads = 2
	})

	for _, id := range []string{"a", "b", "c", "d"} {
		_, _, err := e.BeginDownload(context.Background(), engine.Request{FileID: id})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return remote.initiated.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), remote.initiated.Load())
	assert.Equal(t, 2, e.Stats().Queued)

	close(remote.gate)
	for _, id := range []string{"a", "b", "c", "d"} {
		waitTerminal(t, e, id)
	}
}

func TestShutdownCancelsRunningTasks(t *testing.T) {
	remote := &fakeRemote{gate: make(chan struct{})}
	e := newEngine(t, remote, nil, nil)

	_, _, err := e.BeginDownload(context.Background(), engine.Request{FileID: "stuck"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return remote.initiated.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	state, err := e.Progress("stuck")
	require.NoError(t, err)
	assert.Equal(t, common.StatusFailed, state.Status)

	_, _, err = e.BeginDownload(context.Background(), engine.Request{FileID: "late"})
	assert.ErrorIs(t, err, engine.ErrEngineNotRunning)
}

func TestInvalidPruneSchedule(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.HistoryRetention = time.Hour
	cfg.PruneSchedule = "not a schedule"

	e, err := engine.New(cfg, &fakeRemote{}, nil, &memoryHistory{}, nil)
	require.NoError(t, err)
	assert.Error(t, e.Start(context.Background()))
}
