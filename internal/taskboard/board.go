package taskboard

import (
	"container/heap"
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aitoolkit/librarian-mcp/internal/apperr"
)

// Handler executes one task's work. It must poll task.CancelRequested()
// at reasonable intervals for long-running work and return promptly once
// it observes cancellation or ctx is done.
type Handler func(ctx context.Context, task *Task) (any, error)

// DefaultWorkers is the TaskBoard's default pool size.
const DefaultWorkers = 2

// DefaultTimeout bounds a task that doesn't have a type-specific timeout.
const DefaultTimeout = 5 * time.Minute

// Board is the process-wide priority work queue and worker pool.
type Board struct {
	mu             sync.Mutex
	cond           *sync.Cond
	queue          taskQueue
	tasks          map[string]*Task
	handlers       map[string]Handler
	timeouts       map[string]time.Duration
	defaultTimeout time.Duration
	workers        int
	seq            int64
	closed         bool
}

// New creates a Board with the given worker count (a count below 1 is
// replaced by DefaultWorkers) and handler map. A task whose type isn't in the map fails immediately
// with UnknownTaskType once a worker dequeues it.
func New(workers int, handlers map[string]Handler) *Board {
	if workers < 1 {
		workers = DefaultWorkers
	}
	b := &Board{
		tasks:          make(map[string]*Task),
		handlers:       handlers,
		timeouts:       make(map[string]time.Duration),
		defaultTimeout: DefaultTimeout,
		workers:        workers,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// SetTimeout overrides the per-task timeout for a specific task type.
func (b *Board) SetTimeout(taskType string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeouts[taskType] = d
}

// SetDefaultTimeout overrides the board-wide timeout applied to a task type
// that has no type-specific override (taskboard_default_timeout_seconds).
func (b *Board) SetDefaultTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d > 0 {
		b.defaultTimeout = d
	}
}

// Run starts the worker pool and blocks until ctx is cancelled, then
// wakes all workers so they can observe cancellation and exit.
func (b *Board) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < b.workers; i++ {
		g.Go(func() error {
			b.workerLoop(ctx)
			return nil
		})
	}

	<-ctx.Done()
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()

	return g.Wait()
}

// Submit enqueues a new task and returns its id.
func (b *Board) Submit(projectRoot, taskType string, params map[string]any, priority Priority) (*Task, error) {
	id, err := newTaskID()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "generating task id")
	}

	t := newTask(id, taskType, projectRoot, params, priority)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks[id] = t
	b.seq++
	heap.Push(&b.queue, &queueItem{task: t, priority: priority, seq: b.seq})
	b.cond.Signal()
	return t, nil
}

// Get returns a previously submitted task by id.
func (b *Board) Get(id string) (*Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[id]
	return t, ok
}

// Cancel requests cancellation of a task, returning its resulting status.
func (b *Board) Cancel(id string) (Status, bool) {
	b.mu.Lock()
	t, ok := b.tasks[id]
	b.mu.Unlock()
	if !ok {
		return "", false
	}
	return t.requestCancel(), true
}

// List returns snapshots of tasks matching the optional status/type
// filters (empty string matches anything), ordered by submission time.
func (b *Board) List(projectRoot string, status Status, taskType string) []Snapshot {
	b.mu.Lock()
	tasks := make([]*Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		if projectRoot != "" && t.ProjectRoot != projectRoot {
			continue
		}
		tasks = append(tasks, t)
	}
	b.mu.Unlock()

	out := make([]Snapshot, 0, len(tasks))
	for _, t := range tasks {
		snap := t.Snapshot()
		if status != "" && snap.Status != string(status) {
			continue
		}
		if taskType != "" && snap.Type != taskType {
			continue
		}
		out = append(out, snap)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].SubmittedAt.Before(out[j-1].SubmittedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// workerLoop dequeues and runs tasks until ctx is cancelled and the
// board is closed with an empty queue.
func (b *Board) workerLoop(ctx context.Context) {
	for {
		t := b.dequeue(ctx)
		if t == nil {
			return
		}
		b.run(ctx, t)
	}
}

func (b *Board) dequeue(ctx context.Context) *Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.queue.Len() == 0 {
		if b.closed {
			return nil
		}
		b.cond.Wait()
	}
	item := heap.Pop(&b.queue).(*queueItem)
	return item.task
}

func (b *Board) run(ctx context.Context, t *Task) {
	t.mu.RLock()
	alreadyCancelled := t.status == Cancelled
	t.mu.RUnlock()
	if alreadyCancelled {
		return
	}

	handler, ok := b.handlers[t.Type]
	if !ok {
		t.markRunning()
		t.finish(Failed, nil, apperr.Newf(apperr.UnknownTaskType, "unknown task type %q", t.Type))
		return
	}

	b.mu.Lock()
	timeout, hasOverride := b.timeouts[t.Type]
	if !hasOverride {
		timeout = b.defaultTimeout
	}
	b.mu.Unlock()

	t.markRunning()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	var result any
	var handlerErr error
	go func() {
		result, handlerErr = handler(runCtx, t)
		close(done)
	}()

	select {
	case <-done:
		switch {
		case handlerErr != nil && t.CancelRequested():
			t.finish(Cancelled, nil, handlerErr)
		case handlerErr != nil:
			t.finish(Failed, nil, handlerErr)
		default:
			t.finish(Completed, result, nil)
		}
	case <-runCtx.Done():
		<-done // handler is expected to observe ctx and return promptly
		if runCtx.Err() == context.DeadlineExceeded {
			t.finish(Timeout, nil, context.DeadlineExceeded)
		} else if handlerErr != nil {
			t.finish(Failed, nil, handlerErr)
		} else {
			t.finish(Completed, result, nil)
		}
	}
}

func newTaskID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
