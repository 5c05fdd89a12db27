package engine

import (
	"sync"
	"testing"
	"time"
)

type blockingStarter struct {
	mu      sync.Mutex
	doneMap map[string]chan struct{}
	started chan string
}

func newBlockingStarter(buffer int) *blockingStarter {
	return &blockingStarter{
		doneMap: make(map[string]chan struct{}),
		started: make(chan string, buffer),
	}
}

func (b *blockingStarter) start(job Job) error {
	d := make(chan struct{})
	b.mu.Lock()
	b.doneMap[job.FileID] = d
	b.mu.Unlock()
	b.started <- job.FileID
	<-d
	return nil
}

func (b *blockingStarter) finish(id string) {
	b.mu.Lock()
	close(b.doneMap[id])
	b.mu.Unlock()
}

func (b *blockingStarter) next(t *testing.T) string {
	t.Helper()
	select {
	case id := <-b.started:
		return id
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for start")
		return ""
	}
}

func (b *blockingStarter) expectNone(t *testing.T) {
	t.Helper()
	select {
	case id := <-b.started:
		t.Fatalf("unexpected start before slot freed: %v", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueueProcessor_PriorityAndBlocking(t *testing.T) {
	starter := newBlockingStarter(2)

	doneCh := make(chan struct{})
	qp := NewQueueProcessor(1, starter.start, doneCh, nil)
	defer close(doneCh)

	// occupy the only slot so both jobs below are compared in the heap
	qp.Enqueue(Job{FileID: "blocker"})
	if id := starter.next(t); id != "blocker" {
		t.Fatalf("expected blocker first, got %v", id)
	}

	qp.Enqueue(Job{FileID: "low", Priority: 1})
	qp.Enqueue(Job{FileID: "high", Priority: 2})
	starter.expectNone(t)

	starter.finish("blocker")
	if id := starter.next(t); id != "high" {
		t.Fatalf("expected high-priority first, got %v", id)
	}
	starter.expectNone(t)

	starter.finish("high")
	if id := starter.next(t); id != "low" {
		t.Fatalf("expected low-priority next, got %v", id)
	}
	starter.finish("low")
}

func TestQueueProcessor_FIFOWithinPriority(t *testing.T) {
	starter := newBlockingStarter(4)

	doneCh := make(chan struct{})
	qp := NewQueueProcessor(1, starter.start, doneCh, nil)
	defer close(doneCh)

	qp.Enqueue(Job{FileID: "blocker"})
	starter.next(t)

	for _, id := range []string{"a", "b", "c"} {
		qp.Enqueue(Job{FileID: id})
	}
	if got := qp.Pending(); got != 3 {
		t.Fatalf("expected 3 pending jobs, got %d", got)
	}

	starter.finish("blocker")
	for _, want := range []string{"a", "b", "c"} {
		got := starter.next(t)
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
		starter.finish(got)
	}
}

func TestQueueProcessor_MultipleConcurrent(t *testing.T) {
	starter := newBlockingStarter(3)

	doneCh := make(chan struct{})
	qp := NewQueueProcessor(2, starter.start, doneCh, nil)
	defer close(doneCh)

	ids := []string{"one", "two", "three"}
	for _, id := range ids {
		qp.Enqueue(Job{FileID: id})
	}

	first := starter.next(t)
	second := starter.next(t)
	set := map[string]bool{"one": true, "two": true}
	if !set[first] || !set[second] {
		t.Errorf("expected first two to be one and two, got %v and %v", first, second)
	}
	if got := qp.Running(); got != 2 {
		t.Errorf("expected 2 running jobs, got %d", got)
	}

	starter.expectNone(t)
	starter.finish(first)

	if id := starter.next(t); id != "three" {
		t.Errorf("expected three, got %v", id)
	}

	starter.finish(second)
	starter.finish("three")
}

func TestQueueProcessor_UsesSpawn(t *testing.T) {
	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	ran := make(chan string, 1)
	doneCh := make(chan struct{})
	qp := NewQueueProcessor(1, func(job Job) error {
		ran <- job.FileID
		return nil
	}, doneCh, spawn)
	defer close(doneCh)

	qp.Enqueue(Job{FileID: "x"})
	select {
	case id := <-ran:
		if id != "x" {
			t.Fatalf("unexpected job %s", id)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("job never ran")
	}
	wg.Wait()
}
