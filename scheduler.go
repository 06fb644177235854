package tasksys

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// Scheduler coordinates one fork/join computation across the Threads
// attached to it, whether those Threads are supplied by a ThreadPool's
// worker goroutines or by whichever goroutine calls Join.
//
// A Scheduler is reference-counted (Retain/Close) rather than destructed,
// since Go has no destructors; this stands in for the original's
// Ref<TaskScheduler> drop semantics.
type Scheduler struct {
	pool *ThreadPool
	cfg  config

	// threadLocal is the directory of attached Threads, indexed by dense
	// threadIndex, sized 2x the pool's logical thread count so that the
	// user thread calling Join always has a slot alongside every pool
	// worker.
	threadLocal []atomic.Pointer[Thread]
	threadCounter atomic.Int64

	// anyTasksRunning gates every attached thread's outer steal loop: it is
	// open (> 0) for exactly as long as the root task's subtree has not
	// yet finished, plus transiently while any thief is executing work it
	// stole.
	anyTasksRunning atomic.Int64

	rootTask    atomic.Pointer[Task]
	rootCtx     context.Context
	hasRootTask atomic.Bool
	joinMu      sync.Mutex
	joinCond    *sync.Cond

	cancelling atomic.Pointer[PanicError]
	refCount   atomic.Int64
}

// NewScheduler creates a Scheduler. If pool is non-nil the scheduler is
// registered with it (equivalent to the original's addScheduler), so the
// pool's worker goroutines will service this scheduler's root task once
// SpawnRoot is called; pool may also be nil for a Scheduler whose only
// attached thread will ever be the goroutine that calls Join.
func NewScheduler(pool *ThreadPool, opts ...Option) *Scheduler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		panic(err)
	}

	n := cfg.numThreads
	if pool != nil {
		n = pool.NumThreads()
	}
	if n <= 0 {
		n = runtime.NumCPU()
	}

	s := &Scheduler{
		pool:        pool,
		cfg:         cfg,
		threadLocal: make([]atomic.Pointer[Thread], 2*n),
		rootCtx:     context.Background(),
	}
	s.joinCond = sync.NewCond(&s.joinMu)
	s.refCount.Store(1)

	if pool != nil {
		pool.AddScheduler(s)
	}
	return s
}

// Retain increments the scheduler's reference count. Pair with Close.
func (s *Scheduler) Retain() {
	s.refCount.Add(1)
}

// Close releases a reference to the scheduler. Once the last reference is
// released the scheduler is removed from its ThreadPool, if any.
func (s *Scheduler) Close() error {
	if s.refCount.Add(-1) > 0 {
		return nil
	}
	if s.pool != nil {
		s.pool.RemoveScheduler(s)
	}
	return nil
}

// SpawnRoot installs closure as this scheduler's root task and makes it
// available to whichever thread — pool worker or Join caller — attaches to
// this scheduler first. Only one root task may be pending or running at a
// time; call Reset once the previous one has completed (Join returned)
// before calling SpawnRoot again.
func (s *Scheduler) SpawnRoot(closure Closure) error {
	return s.SpawnRootContext(context.Background(), closure)
}

// SpawnRootContext is SpawnRoot with an explicit context.Context threaded
// through to every TaskContext the root's subtree receives.
func (s *Scheduler) SpawnRootContext(ctx context.Context, closure Closure) error {
	if closure == nil {
		return ErrNilClosure
	}
	if s.isShuttingDown() {
		return ErrShutdownInFlight
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.joinMu.Lock()
	if s.hasRootTask.Load() {
		s.joinMu.Unlock()
		return ErrRootTaskPending
	}

	t := &Task{}
	t.reset(closure, 1, nil, stackPtrNone)
	s.rootTask.Store(t)
	s.rootCtx = ctx
	s.hasRootTask.Store(true)
	s.joinMu.Unlock()
	s.joinCond.Broadcast()
	return nil
}

// Reset clears the completed-root-task flag and any recorded cancelling
// exception so the scheduler can be reused for a new SpawnRoot/Join
// generation without tearing down and rebuilding its attachment to the
// ThreadPool. Mirrors TaskScheduler::reset in the original scheduler.
func (s *Scheduler) Reset() {
	s.cancelling.Store(nil)
	s.hasRootTask.Store(false)
}

// Join attaches the calling goroutine to the scheduler as a Thread, blocks
// until a root task has been spawned, then participates in running it (and
// in stealing work for other attached threads) until the whole tree
// drains. It returns the scheduler's cancelling exception if any task in
// the tree panicked; the exception stays recorded, and is returned by
// every later Join, until Reset.
func (s *Scheduler) Join() error {
	s.joinMu.Lock()
	for !s.hasRootTask.Load() {
		s.joinCond.Wait()
	}
	s.joinMu.Unlock()

	return s.attachAndRun()
}

// attachOnce is the ThreadPool-worker counterpart to Join: it does not
// wait for a root task. If none is pending yet, the attaching thread sees
// anyTasksRunning == 0, returns immediately, and the pool goroutine goes
// back to its dispatch loop, which again picks the oldest registered
// Scheduler — the original ThreadPool's dispatch behavior (TaskScheduler::thread_loop is called directly,
// bypassing join()'s hasRootTask wait).
func (s *Scheduler) attachOnce() error {
	return s.attachAndRun()
}

// attachAndRun allocates a thread index, runs the attached-thread body,
// and detaches, returning the scheduler's cancelling exception if one was
// recorded during the run.
func (s *Scheduler) attachAndRun() error {
	threadIndex, err := s.allocThreadIndex()
	if err != nil {
		return err
	}

	th := newThread(threadIndex, s, s.cfg.queueCapacity)
	s.threadLocal[threadIndex].Store(th)
	if s.cfg.onThreadStart != nil {
		s.cfg.onThreadStart(threadIndex)
	}

	s.runAttachedThread(th)

	s.threadLocal[threadIndex].Store(nil)
	if s.cfg.onThreadStop != nil {
		s.cfg.onThreadStop(threadIndex)
	}
	s.detachThread()

	if exc := s.cancellingException(); exc != nil {
		return exc
	}
	return nil
}

// runAttachedThread is the body every attached Thread — pool worker or
// Join caller — runs once it has a valid threadIndex. It first tries to
// claim the scheduler's pending root task (at most one attached thread
// ever succeeds), drains it to completion if it won, and either way falls
// into the shared steal loop until the whole tree has finished.
func (s *Scheduler) runAttachedThread(th *Thread) {
	if s.claimRootTaskInto(th) {
		s.anyTasksRunning.Add(1)
		for th.tasks.executeLocal(th, nil) {
		}
		s.anyTasksRunning.Add(-1)
	}

	for s.anyTasksRunning.Load() > 0 {
		s.stealLoop(th,
			func() bool { return s.anyTasksRunning.Load() > 0 },
			func() {
				s.anyTasksRunning.Add(1)
				for th.tasks.executeLocal(th, nil) {
				}
				s.anyTasksRunning.Add(-1)
			},
		)
	}
}

// claimRootTaskInto swaps the scheduler's pending root task pointer to nil
// and, if this call won the race, adopts it into th's own queue. At most
// one attached thread's call ever returns true for a given root task.
func (s *Scheduler) claimRootTaskInto(th *Thread) bool {
	t := s.rootTask.Swap(nil)
	if t == nil {
		return false
	}
	if _, err := th.tasks.adopt(t); err != nil {
		s.recordPanic(&PanicError{Value: err})
		return false
	}
	return true
}

// allocThreadIndex hands out the next dense index in threadLocal. It is
// the scheduler-level equivalent of the original's threadCounter++, with
// an added bounds check: threadLocal is sized at construction time and
// tasksys never resizes it underneath concurrent readers, so running out
// of slots is reported as an error instead of an out-of-bounds write.
func (s *Scheduler) allocThreadIndex() (int, error) {
	idx := s.threadCounter.Add(1) - 1
	if int(idx) >= len(s.threadLocal) {
		s.threadCounter.Add(-1)
		return 0, wrap("too many threads attached to scheduler", nil)
	}
	return int(idx), nil
}

// detachThread decrements the attached-thread counter and then blocks
// until every sibling thread has also started detaching, mirroring the
// original's threadCounter-- + spin barrier. This keeps threadLocal
// entries valid for the whole lifetime any sibling might still be
// attempting to steal from them.
func (s *Scheduler) detachThread() {
	remaining := s.threadCounter.Add(-1)
	for remaining > 0 {
		runtime.Gosched()
		remaining = s.threadCounter.Load()
	}
}

// AttachedThreadCount returns the number of threads currently attached to
// the scheduler (pool workers plus any Join callers). It is the
// counterpart of the original's wait_for_threads counter; ThreadPool does
// not consult it, and tests read it directly.
func (s *Scheduler) AttachedThreadCount() int {
	return int(s.threadCounter.Load())
}

// ThreadCount returns the number of OS threads the owning ThreadPool is
// currently configured to run, or 1 if this scheduler has no pool.
func (s *Scheduler) ThreadCount() int {
	if s.pool == nil {
		return 1
	}
	return s.pool.NumThreads()
}

func (s *Scheduler) isShuttingDown() bool {
	return s.pool != nil && s.pool.isStopped()
}

func (s *Scheduler) cancellingException() *PanicError {
	return s.cancelling.Load()
}

func (s *Scheduler) recordPanic(err *PanicError) {
	if !s.cancelling.CompareAndSwap(nil, err) {
		return
	}
	if s.cfg.onTaskPanic != nil {
		s.cfg.onTaskPanic(err)
	}
	s.cfg.logger.Error("task panicked", F("error", err.Error()))
}

func (s *Scheduler) taskContext(th *Thread) *TaskContext {
	return &TaskContext{ctx: s.rootCtx, thread: th}
}

// stealFromOtherThreads tries, once, to steal a single task from each of
// this scheduler's other attached threads in round-robin order starting
// just after th's own index, returning true as soon as one succeeds.
func (s *Scheduler) stealFromOtherThreads(th *Thread) bool {
	threadIndex := th.threadIndex
	threadCount := int(s.threadCounter.Load())

	for i := 1; i < threadCount; i++ {
		other := threadIndex + i
		if other >= threadCount {
			other -= threadCount
		}
		ot := s.threadLocal[other].Load()
		if ot == nil {
			continue
		}
		if ot.tasks.steal(th) {
			return true
		}
	}
	return false
}

// stealLoop is the cooperative idle loop every attached thread runs while
// it has no local work: spin-and-steal for a while, then yield, repeat,
// until pred returns false. Each time a steal succeeds, body is invoked to
// drain whatever was just stolen before resuming the spin. This never
// parks the goroutine — the only blocking operations in this package are
// Join's wait for a root task and ThreadPool's wait for a scheduler to
// service.
func (s *Scheduler) stealLoop(th *Thread, pred func() bool, body func()) {
	for {
		spins := 0
		for spins < 32 {
			threadCount := th.scheduler.ThreadCount()
			if threadCount <= 0 {
				threadCount = 1
			}
			progressed := false
			for j := 0; j < 1024; j += threadCount {
				if !pred() {
					return
				}
				if s.stealFromOtherThreads(th) {
					body()
					progressed = true
					break
				}
			}
			if progressed {
				spins = 0
				continue
			}
			spins++
		}
		if !pred() {
			return
		}
		runtime.Gosched()
	}
}
