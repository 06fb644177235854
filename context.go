package tasksys

import "context"

// TaskContext is handed to every running Closure. It is the explicit,
// idiomatic-Go replacement for the original scheduler's thread-local
// "current thread" pointer: rather than reaching into
// ambient global state, a closure receives exactly the context it is
// allowed to touch — its own thread, its own scheduler, and a standard
// context.Context for cooperative cancellation plumbing a host may want to
// layer on top (deadlines, request-scoped values), independent of
// tasksys's own cancelling-exception mechanism.
type TaskContext struct {
	ctx    context.Context
	thread *Thread
}

// Context returns the context.Context threaded through SpawnRoot, or
// context.Background() if none was supplied.
func (tc *TaskContext) Context() context.Context { return tc.ctx }

// ThreadIndex returns the dense index of the thread currently running this
// closure, among the threads attached to its Scheduler.
func (tc *TaskContext) ThreadIndex() int { return tc.thread.ThreadIndex() }

// ThreadCount returns the number of OS threads the owning ThreadPool is
// currently configured to run.
func (tc *TaskContext) ThreadCount() int { return tc.thread.scheduler.ThreadCount() }

// Spawn forks a new child task off the task currently running on this
// thread and pushes it onto the thread's local queue. n is an optional
// parallelism-width hint (mirrors the original's task.N, e.g. a loop trip
// count); pass 1 when there is no natural width.
//
// Spawn returns ErrQueueFull if the thread's local TaskQueue has no free
// slot, ErrNilClosure if closure is nil, and ErrShutdownInFlight if the
// owning ThreadPool is shutting down.
func (tc *TaskContext) Spawn(closure Closure, n int64) error {
	if closure == nil {
		return ErrNilClosure
	}
	th := tc.thread
	if th.scheduler.isShuttingDown() {
		return ErrShutdownInFlight
	}
	_, err := th.tasks.push(closure, n, th.task)
	return err
}

// Wait drains and runs every task this thread has locally queued underneath
// the task it is currently executing, then — if local work runs out before
// all children finish — falls into the scheduler's steal loop, stealing and
// running work for other threads until every child spawned by the current
// task (transitively) has completed. It returns false if the scheduler's
// cancelling exception was set while waiting, true otherwise.
//
// Wait is the only blocking operation a Closure may call; like the rest of
// the steal loop it never parks a goroutine, it only spins and steals.
func (tc *TaskContext) Wait() bool {
	th := tc.thread
	task := th.task

	drainLocal := func() {
		for th.tasks.executeLocal(th, task) {
		}
	}
	drainLocal()

	if task != nil {
		// task's own dependencies count is 1 (itself, not yet decremented —
		// that happens when the closure running Wait eventually returns)
		// plus one per outstanding child, so ">1" means children remain.
		th.scheduler.stealLoop(th, func() bool { return task.dependencies.Load() > 1 }, drainLocal)
	}

	return th.scheduler.cancellingException() == nil
}
