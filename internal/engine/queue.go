package engine

import (
	"container/heap"
	"sync"

	"github.com/google/uuid"

	"github.com/NamanBalaji/wsdl/internal/common"
	"github.com/NamanBalaji/wsdl/internal/logger"
)

// Job is one accepted download waiting for a slot.
type Job struct {
	FileID      string
	RunID       uuid.UUID
	FileName    string
	ContentType common.ContentType
	Priority    int

	seq   uint64
	index int
}

// jobHeap implements heap.Interface as a max-heap by Priority, FIFO within a priority.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *jobHeap) Push(x any) {
	item := x.(*Job)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// QueueProcessor runs prioritized jobs up to maxConcurrent at a time,
// and will exit its dispatchLoop when stopCh is closed.
type QueueProcessor struct {
	mu            sync.Mutex
	cond          *sync.Cond
	heap          jobHeap
	startFn       func(Job) error
	spawn         func(func())
	maxConcurrent int
	activeCount   int
	nextSeq       uint64
	stopCh        <-chan struct{}
}

// NewQueueProcessor creates and starts the processor loop. Jobs run through
// spawn, which defaults to a plain goroutine.
func NewQueueProcessor(maxConcurrent int, startFn func(Job) error, stopCh <-chan struct{}, spawn func(func())) *QueueProcessor {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if spawn == nil {
		spawn = func(fn func()) { go fn() }
	}

	qp := &QueueProcessor{
		heap:          make(jobHeap, 0),
		startFn:       startFn,
		spawn:         spawn,
		maxConcurrent: maxConcurrent,
		stopCh:        stopCh,
	}
	qp.cond = sync.NewCond(&qp.mu)

	go qp.dispatchLoop()

	// Also watch stopCh so we can wake any waiting cond.Wait()
	go func() {
		<-stopCh
		qp.cond.L.Lock()
		qp.cond.Broadcast()
		qp.cond.L.Unlock()
	}()

	return qp
}

// Enqueue adds a job into the queue.
func (q *QueueProcessor) Enqueue(job Job) {
	q.mu.Lock()
	job.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.heap, &job)
	logger.Infof("Enqueued download %s (priority %d)", job.FileID, job.Priority)
	q.cond.Signal()
	q.mu.Unlock()
}

// Pending is the number of jobs waiting for a slot.
func (q *QueueProcessor) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Running is the number of jobs holding a slot.
func (q *QueueProcessor) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeCount
}

// dispatchLoop pops jobs when slots free and starts workers.
// It will return as soon as stopCh is closed.
func (q *QueueProcessor) dispatchLoop() {
	for {
		q.mu.Lock()
		for q.activeCount >= q.maxConcurrent || len(q.heap) == 0 {
			q.cond.Wait()
			select {
			case <-q.stopCh:
				q.mu.Unlock()
				return
			default:
			}
		}

		select {
		case <-q.stopCh:
			q.mu.Unlock()
			return
		default:
		}

		job := heap.Pop(&q.heap).(*Job)
		q.activeCount++
		q.mu.Unlock()

		q.spawn(func() {
			defer func() {
				q.mu.Lock()
				q.activeCount--
				q.cond.Signal()
				q.mu.Unlock()
			}()

			logger.Infof("Starting download %s", job.FileID)
			if err := q.startFn(*job); err != nil {
				logger.Errorf("Failed to start download %s: %v", job.FileID, err)
			}
		})
	}
}
