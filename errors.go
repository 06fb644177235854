package tasksys

import "fmt"

// Sentinel errors returned by the scheduler and thread pool.
var (
	// ErrQueueFull is returned by Spawn when the spawning thread's local
	// TaskQueue has no free slot. The queue is fixed-capacity (see
	// WithQueueCapacity); unlike a general-purpose worker pool, tasksys never
	// grows it at runtime, so a sustained fan-out wider than the capacity is
	// a configuration problem, not a transient condition.
	ErrQueueFull = &SchedulerError{msg: "task queue is full"}

	// ErrUnwaitedSubtask is the value TaskQueue.executeLocal panics with
	// when a task's run leaves the queue taller than it found it, i.e. its
	// closure returned without calling Wait for subtasks it spawned. The
	// panic is not recovered where it is raised; only when it unwinds
	// through a running closure (one inside Wait) does that closure's panic
	// recovery record it as the cancelling exception. Mirrors the original
	// scheduler's "you have to wait for spawned subtasks" invariant.
	ErrUnwaitedSubtask = &SchedulerError{msg: "closure returned without waiting for spawned subtasks"}

	// ErrShutdownInFlight is returned when Spawn or SpawnRoot is called
	// after the owning ThreadPool has been closed.
	ErrShutdownInFlight = &SchedulerError{msg: "thread pool is shutting down"}

	// ErrNilClosure is returned when Spawn or SpawnRoot is given a nil
	// Closure.
	ErrNilClosure = &SchedulerError{msg: "closure is nil"}

	// ErrRootTaskPending is returned by SpawnRoot when a previous root task
	// is still attached and Reset has not been called.
	ErrRootTaskPending = &SchedulerError{msg: "a root task is already pending or running"}

	// ErrPoolStopped is returned by ThreadPool.SetNumThreads (and so by
	// StartThreads on a pool that was never started) once Close has been
	// called, and by the package-level StartThreads, AddScheduler and
	// RemoveScheduler when no process-wide pool exists.
	ErrPoolStopped = &SchedulerError{msg: "thread pool is stopped"}
)

// SchedulerError represents an error raised by the scheduler or thread pool.
// It implements Unwrap so callers can use errors.Is/errors.As against the
// sentinels above even when a SchedulerError wraps a lower-level cause.
type SchedulerError struct {
	msg string
	err error
}

func (e *SchedulerError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("tasksys: %s: %v", e.msg, e.err)
	}
	return fmt.Sprintf("tasksys: %s", e.msg)
}

// Unwrap returns the underlying cause, if any.
func (e *SchedulerError) Unwrap() error {
	return e.err
}

func errInvalidConfig(msg string) error {
	return &SchedulerError{msg: "invalid config: " + msg}
}

func wrap(msg string, err error) error {
	return &SchedulerError{msg: msg, err: err}
}

// PanicError wraps a panic value recovered from inside a running Closure.
// It becomes the scheduler's cancelling exception and is returned from
// Join after the whole task tree has drained; it stays recorded until
// Scheduler.Reset.
type PanicError struct {
	TaskName string
	Value    interface{}
	Stack    string
}

func (p *PanicError) Error() string {
	if p.TaskName != "" {
		return fmt.Sprintf("tasksys: task %q panicked: %v\n%s", p.TaskName, p.Value, p.Stack)
	}
	return fmt.Sprintf("tasksys: task panicked: %v\n%s", p.Value, p.Stack)
}
