package tasksys

import "testing"

// ============================================================================
// BASIC LIFECYCLE
// ============================================================================

func TestTask_RunExecutesClosureOnce(t *testing.T) {
	th := newThread(0, &Scheduler{cfg: defaultConfig()}, 16)

	runs := 0
	task := &Task{}
	task.reset(func(ctx *TaskContext) { runs++ }, 1, nil, stackPtrNone)

	task.run(th)

	if runs != 1 {
		t.Fatalf("expected closure to run exactly once, ran %d times", runs)
	}
	if task.state.Load() != int32(taskDone) {
		t.Errorf("expected task state taskDone after run, got %d", task.state.Load())
	}
}

func TestTask_RunNotifiesParent(t *testing.T) {
	th := newThread(0, &Scheduler{cfg: defaultConfig()}, 16)

	parent := &Task{}
	parent.reset(func(ctx *TaskContext) {}, 1, nil, stackPtrNone)
	parent.addDependencies(1) // simulate the child bump Spawn would perform

	child := &Task{}
	child.reset(func(ctx *TaskContext) {}, 1, parent, stackPtrNone)

	child.run(th)

	if got := parent.dependencies.Load(); got != 1 {
		t.Errorf("expected parent dependencies == 1 (itself only) after child ran, got %d", got)
	}
}

// ============================================================================
// STEAL PROTOCOL (R1)
// ============================================================================

func TestTask_TryStealIntoTransplantsAndLeavesHusk(t *testing.T) {
	origin := &Task{}
	parent := &Task{}
	parent.reset(func(ctx *TaskContext) {}, 1, nil, stackPtrNone)
	origin.reset(func(ctx *TaskContext) {}, 7, parent, stackPtrNone)
	origin.dependencies.Store(3)

	dst := &Task{}
	if !origin.tryStealInto(dst) {
		t.Fatal("expected tryStealInto to succeed on an initialized task")
	}

	if dst.closure == nil {
		t.Error("expected destination to receive the closure")
	}
	if dst.parent != parent {
		t.Error("expected destination to receive the parent pointer")
	}
	if dst.n != 7 {
		t.Errorf("expected destination n == 7, got %d", dst.n)
	}
	if dst.dependencies.Load() != 3 {
		t.Errorf("expected destination dependencies == 3, got %d", dst.dependencies.Load())
	}
	if dst.state.Load() != int32(taskInitialized) {
		t.Error("expected destination state to be taskInitialized")
	}

	// The origin must now be an inert husk: state already taskDone, closure
	// and parent cleared, dependencies zeroed, so the owner's later
	// unconditional run() call is a true no-op.
	if origin.closure != nil {
		t.Error("expected origin closure to be cleared")
	}
	if origin.parent != nil {
		t.Error("expected origin parent to be cleared")
	}
	if origin.dependencies.Load() != 0 {
		t.Errorf("expected origin dependencies == 0, got %d", origin.dependencies.Load())
	}
	if origin.state.Load() != int32(taskDone) {
		t.Error("expected origin state to already be taskDone")
	}
}

func TestTask_TryStealIntoLosesRaceToRun(t *testing.T) {
	th := newThread(0, &Scheduler{cfg: defaultConfig()}, 16)

	task := &Task{}
	task.reset(func(ctx *TaskContext) {}, 1, nil, stackPtrNone)

	// run() wins the claim first.
	task.run(th)

	dst := &Task{}
	if task.tryStealInto(dst) {
		t.Fatal("expected tryStealInto to fail once run() already claimed the task")
	}
}

func TestTask_RunOnHuskIsNoOp(t *testing.T) {
	th := newThread(0, &Scheduler{cfg: defaultConfig()}, 16)

	origin := &Task{}
	origin.reset(func(ctx *TaskContext) { t.Fatal("husk closure must never run") }, 1, nil, stackPtrNone)

	dst := &Task{}
	if !origin.tryStealInto(dst) {
		t.Fatal("tryStealInto should have succeeded")
	}

	// The owner's unconditional run() over the now-popped origin slot must
	// be a complete no-op: no closure execution, no parent notification,
	// no blocking (dependencies is already 0).
	origin.run(th)
}
