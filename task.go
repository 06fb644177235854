package tasksys

import (
	"runtime/debug"
	"sync/atomic"
)

// Closure is the unit of work spawned into the scheduler. It receives the
// TaskContext of the thread currently running it, which is how a closure
// spawns children, waits on them, or inspects its position in the pool —
// the explicit, idiomatic-Go stand-in for the original scheduler's
// thread-local "current thread" pointer.
type Closure func(ctx *TaskContext)

// taskState is the one-shot claim a Task transitions through exactly once:
// from initialized to done, whichever of run() or tryStealInto() wins the
// compare-and-swap.
type taskState int32

const (
	taskInitialized taskState = iota
	taskDone
)

// stackPtrNone marks a Task that did not capture a closure-stack watermark.
// The original scheduler threads a bump-allocator watermark through Task so
// TaskQueue.executeLocal can rewind it on pop; tasksys's closures are
// ordinary heap-allocated Go closures (the GC already gives us what the
// watermark existed to approximate), so the field is carried for data-model
// parity with the original data model but is otherwise inert.
const stackPtrNone int64 = -1

// Task is one node of a fork/join computation tree: a pending or running
// closure, a dependency count keeping track of how many children (plus
// itself) remain outstanding, and a non-owning link to the parent task that
// is notified when this one finishes.
type Task struct {
	closure Closure
	parent  *Task
	n       int64 // requested parallelism width hint, mirrors the original's loop-trip count

	state        atomic.Int32 // taskState
	dependencies atomic.Int32 // 1 (for the task itself) + number of outstanding children

	stackPtr int64 // see stackPtrNone
}

func (t *Task) reset(closure Closure, n int64, parent *Task, stackPtr int64) {
	t.closure = closure
	t.parent = parent
	t.n = n
	t.stackPtr = stackPtr
	t.dependencies.Store(1)
	t.state.Store(int32(taskInitialized))
}

// addDependencies adjusts the outstanding-work counter. Spawning a child
// calls addDependencies(1) on the parent; a task finishing (itself or a
// child) calls addDependencies(-1).
func (t *Task) addDependencies(delta int32) {
	t.dependencies.Add(delta)
}

// run executes the task's closure exactly once — whichever of run() or a
// concurrent tryStealInto() first claims the initialized->done transition —
// then spins in the scheduler's steal loop until every child this task
// spawned has finished, and finally notifies its own parent.
//
// A Task whose state was already claimed by tryStealInto (a "husk" left
// behind at the origin of a successful steal) skips execution entirely:
// its dependencies is zero and its parent is nil, so both the wait loop and
// the parent notification below are no-ops.
func (t *Task) run(th *Thread) {
	if t.state.CompareAndSwap(int32(taskInitialized), int32(taskDone)) {
		t.execute(th)
	}

	sched := th.scheduler
	drainLocal := func() {
		for th.tasks.executeLocal(th, t) {
		}
	}
	sched.stealLoop(th, func() bool { return t.dependencies.Load() > 0 }, drainLocal)

	if t.parent != nil {
		t.parent.addDependencies(-1)
	}
}

// execute runs the closure with panic recovery, installing any recovered
// panic as the scheduler's cancelling exception, then decrements the
// task's own contribution to its dependency count.
func (t *Task) execute(th *Thread) {
	prevTask := th.task
	th.task = t
	defer func() {
		th.task = prevTask
		t.addDependencies(-1)
	}()

	if th.scheduler.cancellingException() != nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			th.scheduler.recordPanic(&PanicError{
				Value: r,
				Stack: string(debug.Stack()),
			})
		}
	}()

	ctx := th.scheduler.taskContext(th)
	t.closure(ctx)
}

// tryStealInto attempts to transplant this task into dst, a free slot in a
// thief's own queue. It claims the task via the same initialized->done CAS
// that run() uses to guarantee the closure executes exactly once even
// though both the owning thread and a thief may race to run the same
// queue slot.
//
// On success the thief's copy (dst) is reset to taskInitialized carrying
// the original closure, parent and dependency count, so that the thief's
// own, later, unconditional run() call on it performs the real execution
// and the real parent notification. The origin slot (the receiver) is left
// behind as an inert husk: dependencies zeroed and parent cleared, so the
// owner's own later, unconditional run() call on that now-popped slot is a
// true no-op from start to finish.
func (t *Task) tryStealInto(dst *Task) bool {
	if !t.state.CompareAndSwap(int32(taskInitialized), int32(taskDone)) {
		return false
	}

	dst.closure = t.closure
	dst.parent = t.parent
	dst.n = t.n
	dst.stackPtr = stackPtrNone
	dst.dependencies.Store(t.dependencies.Load())
	dst.state.Store(int32(taskInitialized))

	t.closure = nil
	t.parent = nil
	t.dependencies.Store(0)
	return true
}
