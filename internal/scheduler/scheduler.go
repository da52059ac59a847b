// Package scheduler implements the kernel's priority task queue: a worker
// pool that drains a priority heap, cooperative cancellation via polled
// flags, and a bounded LRU history of terminal tasks for introspection.
package scheduler

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"evkernel/internal/async"
	"evkernel/internal/logging"
)

const (
	defaultHistorySize = 256
)

// Config controls scheduler construction.
type Config struct {
	Workers     int
	HistorySize int
	Logger      logging.Logger
}

// Scheduler is a thread-safe priority work queue with a fixed worker pool.
type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	heap    entryHeap
	nextID  uint64
	nextSeq uint64
	running bool
	workers int
	wg      sync.WaitGroup
	logger  logging.Logger
	history *lru.Cache[ID, Record]
}

// New constructs a Scheduler. Call Start before submitting work.
func New(cfg Config) *Scheduler {
	size := cfg.HistorySize
	if size <= 0 {
		size = defaultHistorySize
	}
	history, _ := lru.New[ID, Record](size)

	s := &Scheduler{
		workers: cfg.Workers,
		logger:  logging.OrNop(cfg.Logger),
		history: history,
		nextID:  1,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the worker pool. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	workers := s.workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		id := i
		async.Go(s.logger, "scheduler-worker", func() {
			defer s.wg.Done()
			s.workerLoop(id)
		})
	}
	s.logger.Info("scheduler started with %d workers", workers)
}

// Stop signals every worker to exit after draining in-flight work, clears
// any still-pending tasks, and blocks until all workers have returned.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.heap = nil
	s.mu.Unlock()

	s.cond.Broadcast()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Submit enqueues work at priority p and returns a handle for tracking and
// cancellation. work should poll the handle's cancellation state at
// well-defined points if it runs for a nontrivial duration. Submitting
// after Stop is a programming error: it returns a handle already in
// StatusFailed rather than one that would sit pending forever.
func (s *Scheduler) Submit(work func(), p Priority) Handle {
	e := s.newEntry(work, p)

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		e.status.Store(int32(StatusFailed))
		s.recordTerminal(e, StatusFailed, fmt.Errorf("scheduler: submit called after stop"))
		return Handle{id: e.id, status: e.status, cancelled: e.cancelled}
	}
	heap.Push(&s.heap, e)
	s.mu.Unlock()
	s.cond.Signal()

	return Handle{id: e.id, status: e.status, cancelled: e.cancelled}
}

// Future is a one-shot result slot for SubmitWithResult.
type Future[T any] struct {
	ch  chan struct{}
	val T
	err error
}

// Wait blocks until the producing task completes and returns its result.
func (f *Future[T]) Wait() (T, error) {
	<-f.ch
	return f.val, f.err
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{ch: make(chan struct{})}
}

func (f *Future[T]) resolve(val T, err error) {
	f.val, f.err = val, err
	close(f.ch)
}

// SubmitWithResult enqueues work and returns a handle plus a Future carrying
// its return value or error.
func SubmitWithResult[T any](s *Scheduler, work func() (T, error), p Priority) (Handle, *Future[T]) {
	fut := newFuture[T]()
	handle := s.Submit(func() {
		val, err := work()
		fut.resolve(val, err)
	}, p)
	return handle, fut
}

func (s *Scheduler) newEntry(work func(), p Priority) *entry {
	s.mu.Lock()
	id := ID(s.nextID)
	s.nextID++
	seq := s.nextSeq
	s.nextSeq++
	s.mu.Unlock()

	status := &atomic.Int32{}
	status.Store(int32(StatusPending))
	cancelled := &atomic.Bool{}

	e := &entry{
		id:        id,
		priority:  p,
		seq:       seq,
		queuedAt:  time.Now(),
		status:    status,
		cancelled: cancelled,
	}
	e.work = s.wrapWork(e, work)
	return e
}

func (s *Scheduler) wrapWork(e *entry, work func()) func() {
	return func() {
		if e.cancelled.Load() {
			e.status.Store(int32(StatusCancelled))
			s.recordTerminal(e, StatusCancelled, nil)
			return
		}
		e.status.Store(int32(StatusRunning))

		var taskErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("scheduled task %d panicked: %v", e.id, r)
					taskErr = panicToError(r)
				}
			}()
			work()
		}()

		if taskErr != nil {
			e.status.Store(int32(StatusFailed))
			s.recordTerminal(e, StatusFailed, taskErr)
			return
		}
		e.status.Store(int32(StatusCompleted))
		s.recordTerminal(e, StatusCompleted, nil)
	}
}

func (s *Scheduler) recordTerminal(e *entry, status Status, err error) {
	rec := Record{
		ID:         e.id,
		Priority:   e.priority,
		Status:     status,
		QueuedAt:   e.queuedAt,
		FinishedAt: time.Now(),
	}
	if err != nil {
		rec.Err = err.Error()
	}
	s.history.Add(e.id, rec)
}

// History returns the terminal-task record for id, if it is still retained.
func (s *Scheduler) History(id ID) (Record, bool) {
	return s.history.Get(id)
}

// PendingCount returns the number of tasks waiting to start.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

// WorkerCount returns the configured worker pool size.
func (s *Scheduler) WorkerCount() int { return s.workers }

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}

func (s *Scheduler) workerLoop(id int) {
	s.logger.Debug("scheduler worker %d started", id)
	for {
		s.mu.Lock()
		for s.running && len(s.heap) == 0 {
			s.cond.Wait()
		}
		if !s.running {
			s.mu.Unlock()
			break
		}
		e := heap.Pop(&s.heap).(*entry)
		s.mu.Unlock()

		e.work()
	}
	s.logger.Debug("scheduler worker %d stopped", id)
}
