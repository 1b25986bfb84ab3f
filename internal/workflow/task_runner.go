package workflow

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go-tonesense/internal/logger"
)

// TaskRunner runs background workflow tasks on a fixed set of workers
type TaskRunner struct {
	workers  int
	jobQueue chan func()

	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
	running sync.WaitGroup
	once    sync.Once

	submitted atomic.Int64
	completed atomic.Int64
	active    atomic.Int64
}

// RunnerStats is a point-in-time view of the runner
type RunnerStats struct {
	Workers   int   `json:"workers"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Active    int64 `json:"active"`
}

// NewTaskRunner creates a runner with the given number of workers
func NewTaskRunner(workers int) *TaskRunner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &TaskRunner{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
	}
}

// Start launches the workers. Calling it again has no effect.
func (r *TaskRunner) Start() {
	r.once.Do(func() {
		for i := 0; i < r.workers; i++ {
			r.running.Add(1)
			go r.worker()
		}
	})
}

func (r *TaskRunner) worker() {
	defer r.running.Done()
	for job := range r.jobQueue {
		r.run(job)
	}
}

func (r *TaskRunner) run(job func()) {
	r.active.Add(1)
	defer func() {
		if rec := recover(); rec != nil {
			logger.WithField("panic", rec).Error("Workflow task panicked")
		}
		r.active.Add(-1)
		r.completed.Add(1)
		r.pending.Done()
	}()
	job()
}

// Submit queues a job. It returns false once the runner is closed.
func (r *TaskRunner) Submit(job func()) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false
	}
	r.pending.Add(1)
	r.submitted.Add(1)
	r.jobQueue <- job
	return true
}

// Wait blocks until every submitted job has finished
func (r *TaskRunner) Wait() {
	r.pending.Wait()
}

// Close stops accepting jobs, lets queued jobs finish, and stops the workers
func (r *TaskRunner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.jobQueue)
	r.mu.Unlock()

	// Jobs queued before Start still need a worker to drain them
	r.Start()
	r.running.Wait()
}

// Stats returns the current counters
func (r *TaskRunner) Stats() RunnerStats {
	return RunnerStats{
		Workers:   r.workers,
		Submitted: r.submitted.Load(),
		Completed: r.completed.Load(),
		Active:    r.active.Load(),
	}
}
