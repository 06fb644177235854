package tasksys

import "sync"

// The functions in this file are the package-level convenience API
// mirroring the original scheduler's static TaskScheduler::create /
// destroy / instance / startThreads / addScheduler / removeScheduler.
// Most applications are better served by constructing their own
// *ThreadPool and *Scheduler directly (NewThreadPool, NewScheduler); this
// global instance exists for callers that want a single process-wide pool,
// the same tradeoff the original made with its static threadPool pointer.

var (
	globalMu   sync.Mutex
	globalPool *ThreadPool
	globalSid  *Scheduler
)

// Create lazily allocates the process-wide ThreadPool (if not already
// created) and configures it for numThreads worker threads, without
// starting them yet. If the pool already exists, Create instead resizes it
// with SetNumThreads, which starts its goroutines; opts are then ignored.
// numThreads == 0 means "use the number of logical CPUs".
func Create(numThreads int, opts ...Option) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	allOpts := append([]Option{WithNumThreads(numThreads)}, opts...)
	if globalPool == nil {
		globalPool = NewThreadPool(allOpts...)
		return nil
	}
	return globalPool.SetNumThreads(numThreads)
}

// Destroy tears down the process-wide ThreadPool, if any.
func Destroy() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool == nil {
		return nil
	}
	err := globalPool.Close()
	globalPool = nil
	globalSid = nil
	return err
}

// StartThreads starts the process-wide ThreadPool's worker goroutines.
func StartThreads() error {
	globalMu.Lock()
	pool := globalPool
	globalMu.Unlock()
	if pool == nil {
		return ErrPoolStopped
	}
	return pool.StartThreads()
}

// Instance returns the process-wide Scheduler, creating both it and the
// process-wide ThreadPool with default settings if neither exists yet.
func Instance() *Scheduler {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalSid != nil {
		return globalSid
	}
	if globalPool == nil {
		globalPool = NewThreadPool()
	}
	globalSid = NewScheduler(globalPool)
	return globalSid
}

// AddScheduler registers s with the process-wide ThreadPool.
func AddScheduler(s *Scheduler) error {
	globalMu.Lock()
	pool := globalPool
	globalMu.Unlock()
	if pool == nil {
		return ErrPoolStopped
	}
	pool.AddScheduler(s)
	return nil
}

// RemoveScheduler unregisters s from the process-wide ThreadPool.
func RemoveScheduler(s *Scheduler) error {
	globalMu.Lock()
	pool := globalPool
	globalMu.Unlock()
	if pool == nil {
		return ErrPoolStopped
	}
	pool.RemoveScheduler(s)
	return nil
}
