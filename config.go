package tasksys

import "runtime"

// Option configures a ThreadPool or Scheduler via the functional-options
// pattern.
type Option func(*config)

// config holds every tunable of both ThreadPool and Scheduler; a single type
// keeps WithX constructors reusable across both NewThreadPool and
// NewScheduler the way the original C++ scheduler shares one set of
// creation-time parameters.
type config struct {
	numThreads      int
	setAffinity     bool
	queueCapacity   int
	logger          Logger
	onThreadStart   func(threadIndex int)
	onThreadStop    func(threadIndex int)
	onTaskPanic     func(err *PanicError)
}

// defaultConfig returns sensible defaults: one OS thread per logical CPU, no
// affinity pinning, and a queue capacity generous enough for typical
// recursive fork/join trees.
func defaultConfig() config {
	return config{
		numThreads:    runtime.NumCPU(),
		setAffinity:   false,
		queueCapacity: 4096,
		logger:        NewDefaultLogger(),
	}
}

func (c *config) validate() error {
	if c.numThreads < 0 {
		return errInvalidConfig("numThreads must be >= 0")
	}
	if c.queueCapacity <= 0 {
		return errInvalidConfig("queueCapacity must be > 0")
	}
	if c.logger == nil {
		return errInvalidConfig("logger must not be nil")
	}
	return nil
}

// WithNumThreads sets the number of worker OS threads the pool manages.
// Zero means "use the number of logical CPUs", matching the original
// scheduler's create(numThreads=0) convention.
func WithNumThreads(n int) Option {
	return func(c *config) { c.numThreads = n }
}

// WithAffinity pins worker i to logical CPU i via golang.org/x/sys/unix on
// platforms that support it (see affinity_linux.go); it is a no-op
// elsewhere.
func WithAffinity(enabled bool) Option {
	return func(c *config) { c.setAffinity = enabled }
}

// WithQueueCapacity sets the fixed number of in-flight Task slots each
// Thread's local TaskQueue can hold. The queue never resizes at runtime
// (see taskqueue.go); Spawn returns ErrQueueFull once it is exhausted.
func WithQueueCapacity(n int) Option {
	return func(c *config) { c.queueCapacity = n }
}

// WithLogger installs a Logger for scheduler and pool lifecycle events.
func WithLogger(logger Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithThreadHooks installs lifecycle callbacks. Given to NewThreadPool,
// they run when a pool-managed goroutine starts and stops, with its global
// index; given to NewScheduler, they run when any thread (pool worker or
// Join caller) attaches to and detaches from that scheduler, with its
// scheduler-local index.
func WithThreadHooks(onStart, onStop func(threadIndex int)) Option {
	return func(c *config) {
		c.onThreadStart = onStart
		c.onThreadStop = onStop
	}
}

// WithPanicHandler installs a callback a Scheduler invokes (in addition to
// the normal cancelling-exception bookkeeping) with the panic it records
// as its cancelling exception. Later panics, which do not replace that
// exception, are not passed to it. NewThreadPool ignores this option.
func WithPanicHandler(fn func(err *PanicError)) Option {
	return func(c *config) { c.onTaskPanic = fn }
}
