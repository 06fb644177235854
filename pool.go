package tasksys

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// poolState mirrors the lifecycle states a goroutine worker pool typically uses
// (running/draining/stopped), adapted here to a pool of OS threads rather
// than a pool of task-executing workers.
type poolState uint32

const (
	poolStateRunning poolState = iota
	poolStateStopped
)

// ThreadPool multiplexes any number of concurrently registered Schedulers
// across a fixed set of OS threads, servicing them in FIFO order: each
// worker goroutine repeatedly picks the oldest registered Scheduler, runs
// one attachment's worth of work for
// it, then goes back to pick the (possibly different) oldest Scheduler
// again.
//
// This is the Go realization of the original TaskScheduler::ThreadPool:
// setNumThreads/startThreads/add/remove/thread_loop all have a direct
// counterpart here.
type ThreadPool struct {
	mu                sync.Mutex
	cond              *sync.Cond
	numThreads        int
	numThreadsRunning int
	setAffinity       bool
	running           bool
	state             atomic.Uint32 // poolState

	schedulers []*Scheduler
	threads    []chan struct{} // one done-signal channel per started goroutine

	logger      Logger
	onThreadOn  func(globalThreadIndex int)
	onThreadOff func(globalThreadIndex int)

	generation uint64 // bumped on every SetNumThreads, lets stale goroutines know to exit
}

// NewThreadPool creates a ThreadPool. It does not start any OS threads
// until StartThreads or SetNumThreads is called, matching the original's
// lazy startup (create() only records numThreads; startThreads() spins up
// the goroutines). It panics if an Option produces an invalid config,
// the same contract flock's own NewPool enforces via a returned error —
// here surfaced immediately since a bad Option is a programmer error, not
// a runtime condition a caller would recover from.
func NewThreadPool(opts ...Option) *ThreadPool {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		panic(err)
	}

	p := &ThreadPool{
		numThreads:  cfg.numThreads,
		setAffinity: cfg.setAffinity,
		logger:      cfg.logger,
		onThreadOn:  cfg.onThreadStart,
		onThreadOff: cfg.onThreadStop,
	}
	p.cond = sync.NewCond(&p.mu)
	p.state.Store(uint32(poolStateRunning))
	return p
}

// StartThreads starts the pool at numThreads thread slots (numThreads-1
// worker goroutines, since global index 0 is reserved for a joining user
// thread) if the pool has not already been started. A no-op once running.
func (p *ThreadPool) StartThreads() error {
	p.mu.Lock()
	running := p.running
	n := p.numThreads
	p.mu.Unlock()
	if running {
		return nil
	}
	return p.SetNumThreads(n)
}

// SetNumThreads resizes the pool to n thread slots. Global index 0 is
// reserved for a joining user thread, so the pool runs n-1 worker
// goroutines at global indices 1..n-1. Each call bumps the generation:
// goroutines started by an earlier call exit once their current scheduler
// attachment returns, and a fresh goroutine is started for every index
// 1..n-1. n == 0 means "use the number of logical CPUs", mirroring the
// original's create(0, ...) convention.
func (p *ThreadPool) SetNumThreads(n int) error {
	if p.isStopped() {
		return ErrPoolStopped
	}
	if n < 0 {
		return errInvalidConfig("numThreads must be >= 0")
	}
	if n == 0 {
		n = defaultConfig().numThreads
	}

	p.mu.Lock()
	p.numThreads = n
	p.running = true
	p.numThreadsRunning = n
	p.generation++
	gen := p.generation
	p.cond.Broadcast()

	// Every goroutine of an earlier generation notices the bump and exits,
	// so each index is started afresh; their done channels stay in
	// p.threads so Close still waits for them. global index 0 is reserved
	// for a joining user thread and is never backed by a pool-managed
	// goroutine.
	for t := 1; t < n; t++ {
		done := make(chan struct{})
		p.threads = append(p.threads, done)
		go p.runGlobalThread(t, gen, done)
	}
	p.mu.Unlock()
	return nil
}

// NumThreads returns the pool's currently configured thread count.
func (p *ThreadPool) NumThreads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numThreads
}

// AddScheduler registers a Scheduler with the pool. Worker goroutines will
// begin servicing it (in FIFO order relative to other registered
// Schedulers) the next time they come up for dispatch.
func (p *ThreadPool) AddScheduler(s *Scheduler) {
	p.mu.Lock()
	p.schedulers = append(p.schedulers, s)
	p.mu.Unlock()
	p.cond.Broadcast()
}

// RemoveScheduler unregisters a Scheduler. Safe to call even if the
// scheduler was never added or was already removed.
func (p *ThreadPool) RemoveScheduler(s *Scheduler) {
	p.mu.Lock()
	for i, sc := range p.schedulers {
		if sc == s {
			p.schedulers = append(p.schedulers[:i], p.schedulers[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
}

// Close stops the pool: every worker goroutine is signalled to exit and
// Close blocks until they have. Safe to call multiple times.
func (p *ThreadPool) Close() error {
	if !p.state.CompareAndSwap(uint32(poolStateRunning), uint32(poolStateStopped)) {
		return nil
	}
	p.mu.Lock()
	p.numThreadsRunning = 0
	p.generation++
	p.cond.Broadcast()
	threads := p.threads
	p.threads = nil
	p.mu.Unlock()

	for _, done := range threads {
		<-done
	}
	return nil
}

func (p *ThreadPool) isStopped() bool {
	return poolState(p.state.Load()) == poolStateStopped
}

// runGlobalThread is the body of one pool-managed OS thread, the Go
// analogue of embree's threadPoolFunction + ThreadPool::thread_loop: pick
// the oldest registered scheduler, allocate a dense thread index on it,
// run that scheduler's attached-thread loop to completion, then repeat
// until the pool shrinks below this goroutine's global index, a later
// SetNumThreads call starts a new generation, or the pool is closed.
func (p *ThreadPool) runGlobalThread(globalThreadIndex int, gen uint64, done chan struct{}) {
	defer close(done)

	if p.setAffinity {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		setThreadAffinity(globalThreadIndex)
	}
	if p.onThreadOn != nil {
		p.onThreadOn(globalThreadIndex)
	}
	defer func() {
		if p.onThreadOff != nil {
			p.onThreadOff(globalThreadIndex)
		}
	}()

	for {
		p.mu.Lock()
		for len(p.schedulers) == 0 && globalThreadIndex < p.numThreadsRunning && p.generation == gen {
			p.cond.Wait()
		}
		if globalThreadIndex >= p.numThreadsRunning || p.generation != gen {
			p.mu.Unlock()
			return
		}
		// FIFO: always serve the oldest registered scheduler.
		sched := p.schedulers[0]
		p.mu.Unlock()

		if err := sched.attachOnce(); err != nil {
			p.logger.Warn("scheduler attachment returned an error", F("error", err.Error()))
		}
		// A scheduler with no root task yet releases the thread instantly;
		// yield so an idle pool of registered-but-quiet schedulers doesn't
		// spin a full OS thread at 100% between root tasks.
		runtime.Gosched()
	}
}
