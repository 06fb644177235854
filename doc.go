// Package tasksys provides a work-stealing task scheduler for fork/join
// parallelism.
//
// tasksys is built around three layers: a per-thread TaskQueue (a
// fixed-capacity work-stealing deque), a Scheduler that coordinates a fork/join
// computation across a fleet of Threads, and a ThreadPool that multiplexes
// one or more Schedulers across a fixed set of OS threads.
//
// # Key Features
//
//   - Lock-free work-stealing deques: owners push/pop at the bottom (LIFO),
//     thieves steal from the top (FIFO)
//   - Cooperative fork/join: Spawn/Wait build a dependency-counted task tree,
//     no channels or goroutine-per-task overhead on the hot path
//   - Cancellation propagation: the first panic recorded by any task aborts
//     the remaining tree and is rethrown at Join
//   - CPU affinity pinning via golang.org/x/sys/unix on Linux
//   - Optional Prometheus metrics exporter (see tasksys/metrics)
//
// # Quick Start
//
//	pool := tasksys.NewThreadPool()
//	if err := pool.SetNumThreads(runtime.NumCPU()); err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	sched := tasksys.NewScheduler(pool)
//	defer sched.Close()
//
//	err := sched.SpawnRoot(func(ctx *tasksys.TaskContext) {
//	    ctx.Spawn(func(ctx *tasksys.TaskContext) {
//	        fmt.Println("left")
//	    }, 1)
//	    ctx.Spawn(func(ctx *tasksys.TaskContext) {
//	        fmt.Println("right")
//	    }, 1)
//	    ctx.Wait()
//	})
//
// # Error Handling
//
// A panic recovered from inside a Closure is wrapped in a *PanicError and
// installed as the scheduler's cancelling exception; it is returned from
// Join after every in-flight task has drained, and stays recorded until
// Scheduler.Reset.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use unless documented
// otherwise. Internally, each Thread's TaskQueue is pushed to and popped
// from only by its owning thread; stealing from it is safe from any
// goroutine.
package tasksys
