package engine

import (
	"sort"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/NamanBalaji/wsdl/internal/common"
	"github.com/NamanBalaji/wsdl/internal/logger"
)

type entry struct {
	mu      sync.Mutex
	state   common.DownloadState
	timer   *time.Timer
	removed bool
}

func (en *entry) snapshot() common.DownloadState {
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.state
}

// Registry holds one DownloadState per file id. The map is sharded; each entry
// carries its own lock so tasks updating different files never contend.
type Registry struct {
	entries cmap.ConcurrentMap[string, *entry]
}

func NewRegistry() *Registry {
	return &Registry{entries: cmap.New[*entry]()}
}

// TryBegin inserts state as a fresh Queued entry unless the id is already
// tracked, in which case the existing entry is returned with inFlight=true.
func (r *Registry) TryBegin(state common.DownloadState) (snapshot common.DownloadState, inFlight bool) {
	state.Status = common.StatusQueued
	state.Progress = common.ProgressStart

	for {
		fresh := &entry{state: state}
		if r.entries.SetIfAbsent(state.FileID, fresh) {
			return state, false
		}
		if existing, ok := r.entries.Get(state.FileID); ok {
			return existing.snapshot(), true
		}
		// evicted between the two calls
	}
}

// Update applies fn to the live entry. It returns false when the entry is gone.
// Progress can only move forward.
func (r *Registry) Update(fileID string, fn func(*common.DownloadState)) bool {
	en, ok := r.entries.Get(fileID)
	if !ok {
		return false
	}

	en.mu.Lock()
	defer en.mu.Unlock()
	if en.removed {
		return false
	}

	prev := en.state.Progress
	fn(&en.state)
	if en.state.Progress < prev {
		en.state.Progress = prev
	}
	return true
}

func (r *Registry) Get(fileID string) (common.DownloadState, bool) {
	en, ok := r.entries.Get(fileID)
	if !ok {
		return common.DownloadState{}, false
	}
	return en.snapshot(), true
}

// List returns copies of every entry, oldest first.
func (r *Registry) List() []common.DownloadState {
	items := r.entries.Items()
	out := make([]common.DownloadState, 0, len(items))
	for _, en := range items {
		out = append(out, en.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].FileID < out[j].FileID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// ScheduleEviction removes the entry after delay if it is terminal by then.
// A pending eviction for the same id is replaced.
func (r *Registry) ScheduleEviction(fileID string, delay time.Duration) {
	en, ok := r.entries.Get(fileID)
	if !ok {
		return
	}

	en.mu.Lock()
	defer en.mu.Unlock()
	if en.timer != nil {
		en.timer.Stop()
	}
	en.timer = time.AfterFunc(delay, func() {
		r.evict(fileID, en)
	})
	logger.Debugf("Eviction of %s scheduled in %v", fileID, delay)
}

func (r *Registry) evict(fileID string, target *entry) {
	removed := r.entries.RemoveCb(fileID, func(_ string, en *entry, exists bool) bool {
		if !exists || en != target {
			return false
		}
		en.mu.Lock()
		defer en.mu.Unlock()
		if !en.state.Status.IsTerminal() {
			return false
		}
		en.removed = true
		en.timer = nil
		return true
	})
	if removed {
		logger.Debugf("Evicted download entry %s", fileID)
	}
}

// CancelEviction stops a pending eviction and reports whether one was pending.
func (r *Registry) CancelEviction(fileID string) bool {
	en, ok := r.entries.Get(fileID)
	if !ok {
		return false
	}

	en.mu.Lock()
	defer en.mu.Unlock()
	if en.timer == nil {
		return false
	}
	stopped := en.timer.Stop()
	en.timer = nil
	return stopped
}

// Remove drops a terminal entry immediately.
func (r *Registry) Remove(fileID string) (common.DownloadState, error) {
	var (
		snap common.DownloadState
		err  = ErrDownloadNotFound
	)
	r.entries.RemoveCb(fileID, func(_ string, en *entry, exists bool) bool {
		if !exists {
			return false
		}
		en.mu.Lock()
		defer en.mu.Unlock()
		snap = en.state
		if !en.state.Status.IsTerminal() {
			err = ErrDownloadActive
			return false
		}
		if en.timer != nil {
			en.timer.Stop()
			en.timer = nil
		}
		en.removed = true
		err = nil
		return true
	})
	return snap, err
}

func (r *Registry) Stats() common.GlobalStats {
	var stats common.GlobalStats
	for _, en := range r.entries.Items() {
		stats.Add(en.snapshot().Status)
	}
	return stats
}

func (r *Registry) Len() int {
	return r.entries.Count()
}

// Close stops every pending eviction timer.
func (r *Registry) Close() {
	for _, en := range r.entries.Items() {
		en.mu.Lock()
		if en.timer != nil {
			en.timer.Stop()
			en.timer = nil
		}
		en.mu.Unlock()
	}
}
