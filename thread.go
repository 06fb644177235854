package tasksys

// Thread is one worker's view of a Scheduler: its dense index among the
// scheduler's attached threads, its local TaskQueue, and the task it is
// currently running (used by Wait to know what it's waiting on).
//
// Thread is deliberately passed explicitly through every call in this
// package instead of being looked up through a thread-local global, which
// is the one place tasksys's design departs from the original scheduler's
// __thread-pointer idiom.
type Thread struct {
	threadIndex int
	scheduler   *Scheduler
	tasks       *TaskQueue
	task        *Task // task currently executing on this thread, or nil
}

func newThread(threadIndex int, scheduler *Scheduler, queueCapacity int) *Thread {
	return &Thread{
		threadIndex: threadIndex,
		scheduler:   scheduler,
		tasks:       newTaskQueue(queueCapacity),
	}
}

// ThreadIndex returns this thread's dense index among the threads currently
// attached to its Scheduler. Indices are handed out in attach order, so a
// Join caller and pool workers take whichever index is next; the reserved
// index 0 of ThreadPool applies to its global indices, not to these.
func (t *Thread) ThreadIndex() int { return t.threadIndex }
