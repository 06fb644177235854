package tasksys

// SchedulerStats is a snapshot of a Scheduler's state at the time Stats
// was called. It's read without locking and may be slightly inconsistent
// during concurrent operation.
type SchedulerStats struct {
	// AttachedThreads is the number of Threads (pool workers plus any
	// Join caller) currently attached to the scheduler.
	AttachedThreads int

	// TasksRunning is the scheduler's anyTasksRunning counter: non-zero
	// while a root task's subtree is still executing or being stolen into.
	TasksRunning int64

	// HasRootTask reports whether a root task is pending or running.
	HasRootTask bool

	// Cancelled reports whether a cancelling exception has been recorded
	// (i.e. some task in the tree panicked).
	Cancelled bool
}

// Stats returns a snapshot of the scheduler's current state.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		AttachedThreads: s.AttachedThreadCount(),
		TasksRunning:    s.anyTasksRunning.Load(),
		HasRootTask:     s.hasRootTask.Load(),
		Cancelled:       s.cancellingException() != nil,
	}
}

// PoolStats is a snapshot of a ThreadPool's state.
type PoolStats struct {
	// NumThreads is the pool's currently configured thread count.
	NumThreads int

	// NumSchedulers is the number of Schedulers currently registered with
	// the pool.
	NumSchedulers int

	// Stopped reports whether Close has been called.
	Stopped bool
}

// Stats returns a snapshot of the thread pool's current state.
func (p *ThreadPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		NumThreads:    p.numThreads,
		NumSchedulers: len(p.schedulers),
		Stopped:       p.isStopped(),
	}
}
