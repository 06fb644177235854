package tasksys

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// ============================================================================
// SINGLE-THREADED JOIN (NO POOL)
// ============================================================================

func TestScheduler_JoinRunsRootTask(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()

	var ran int32
	if err := s.SpawnRoot(func(ctx *TaskContext) {
		atomic.StoreInt32(&ran, 1)
	}); err != nil {
		t.Fatalf("SpawnRoot: %v", err)
	}

	if err := s.Join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Error("expected root closure to have run")
	}
}

func TestScheduler_NestedSpawnWait(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()

	var sum int64
	err := s.SpawnRoot(func(ctx *TaskContext) {
		var a, b int64
		if spawnErr := ctx.Spawn(func(ctx *TaskContext) { a = 10 }, 1); spawnErr != nil {
			t.Errorf("Spawn: %v", spawnErr)
		}
		b = 20
		ctx.Wait()
		sum = a + b
	})
	if err != nil {
		t.Fatalf("SpawnRoot: %v", err)
	}
	if err := s.Join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if sum != 30 {
		t.Errorf("expected sum == 30, got %d", sum)
	}
}

func TestScheduler_SpawnRootTwiceWithoutResetFails(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()

	if err := s.SpawnRoot(func(ctx *TaskContext) {}); err != nil {
		t.Fatalf("first SpawnRoot: %v", err)
	}
	if err := s.SpawnRoot(func(ctx *TaskContext) {}); err != ErrRootTaskPending {
		t.Fatalf("expected ErrRootTaskPending, got %v", err)
	}

	if err := s.Join(); err != nil {
		t.Fatalf("Join: %v", err)
	}

	s.Reset()
	if err := s.SpawnRoot(func(ctx *TaskContext) {}); err != nil {
		t.Fatalf("SpawnRoot after Reset: %v", err)
	}
	if err := s.Join(); err != nil {
		t.Fatalf("Join after Reset: %v", err)
	}
}

// ============================================================================
// EXCEPTION PROPAGATION
// ============================================================================

func TestScheduler_PanicPropagatesFromJoin(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()

	if err := s.SpawnRoot(func(ctx *TaskContext) {
		panic("boom")
	}); err != nil {
		t.Fatalf("SpawnRoot: %v", err)
	}

	err := s.Join()
	if err == nil {
		t.Fatal("expected Join to return the recovered panic")
	}
	var perr *PanicError
	if !errors.As(err, &perr) {
		t.Fatalf("expected a *PanicError, got %T: %v", err, err)
	}
	if perr.Value != "boom" {
		t.Errorf("expected panic value %q, got %v", "boom", perr.Value)
	}
}

func TestScheduler_SiblingPanicCancelsOutstandingWait(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()

	if err := s.SpawnRoot(func(ctx *TaskContext) {
		_ = ctx.Spawn(func(ctx *TaskContext) { panic("sibling exploded") }, 1)
		ctx.Wait()
	}); err != nil {
		t.Fatalf("SpawnRoot: %v", err)
	}

	if err := s.Join(); err == nil {
		t.Fatal("expected Join to surface the sibling's panic")
	}
}

// ============================================================================
// THREAD POOL INTEGRATION
// ============================================================================

func TestScheduler_JoinWithPoolWorkers(t *testing.T) {
	pool := NewThreadPool(WithNumThreads(4))
	if err := pool.StartThreads(); err != nil {
		t.Fatalf("StartThreads: %v", err)
	}
	defer pool.Close()

	s := NewScheduler(pool)
	defer s.Close()

	const n = 64
	leaves := make([]int64, n)
	err := s.SpawnRoot(func(ctx *TaskContext) {
		var spawnOne func(i int)
		spawnOne = func(i int) {
			if i >= n {
				return
			}
			idx := i
			if spawnErr := ctx.Spawn(func(ctx *TaskContext) {
				atomic.StoreInt64(&leaves[idx], int64(idx))
			}, 1); spawnErr != nil {
				leaves[idx] = int64(idx) // fall back inline
			}
			spawnOne(i + 1)
		}
		spawnOne(0)
		ctx.Wait()
	})
	if err != nil {
		t.Fatalf("SpawnRoot: %v", err)
	}
	if err := s.Join(); err != nil {
		t.Fatalf("Join: %v", err)
	}

	for i, v := range leaves {
		if v != int64(i) {
			t.Errorf("leaves[%d] = %d, want %d", i, v, i)
		}
	}
}

// TestScheduler_WaitBlocksUntilStolenChildCompletes exercises the
// spawn-left/compute-right/wait/combine-inside-the-closure pattern of a
// divide-and-conquer sum: on a multi-worker pool the spawned half is
// reliably stolen, so Wait must not return (and the combine read below it
// must not observe a stale value) until that stolen half has actually
// finished running on whatever thread stole it.
func TestScheduler_WaitBlocksUntilStolenChildCompletes(t *testing.T) {
	pool := NewThreadPool(WithNumThreads(4))
	if err := pool.StartThreads(); err != nil {
		t.Fatalf("StartThreads: %v", err)
	}
	defer pool.Close()

	s := NewScheduler(pool)
	defer s.Close()

	const n = 1 << 16
	data := make([]int64, n)
	for i := range data {
		data[i] = int64(i + 1)
	}
	var want int64
	for _, v := range data {
		want += v
	}

	var parallelSum func(ctx *TaskContext, d []int64, out *int64)
	parallelSum = func(ctx *TaskContext, d []int64, out *int64) {
		const seqThreshold = 64
		if len(d) <= seqThreshold {
			var sum int64
			for _, v := range d {
				sum += v
			}
			*out = sum
			return
		}

		mid := len(d) / 2
		var left, right int64

		if err := ctx.Spawn(func(ctx *TaskContext) {
			parallelSum(ctx, d[:mid], &left)
		}, int64(mid)); err != nil {
			parallelSum(ctx, d[:mid], &left)
		}
		parallelSum(ctx, d[mid:], &right)
		ctx.Wait()

		// Combine immediately inside the closure: if Wait returned before a stolen
		// left-half finished, this would race and likely read a stale
		// (zero) left.
		*out = left + right
	}

	var result int64
	err := s.SpawnRoot(func(ctx *TaskContext) {
		parallelSum(ctx, data, &result)
	})
	if err != nil {
		t.Fatalf("SpawnRoot: %v", err)
	}
	if err := s.Join(); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if result != want {
		t.Errorf("parallelSum = %d, want %d (Wait likely returned before a stolen child finished)", result, want)
	}
}

func TestThreadPool_FIFOServicesMultipleSchedulers(t *testing.T) {
	pool := NewThreadPool(WithNumThreads(2))
	if err := pool.StartThreads(); err != nil {
		t.Fatalf("StartThreads: %v", err)
	}
	defer pool.Close()

	s1 := NewScheduler(pool)
	defer s1.Close()
	s2 := NewScheduler(pool)
	defer s2.Close()

	var ran1, ran2 int32
	if err := s1.SpawnRoot(func(ctx *TaskContext) { atomic.StoreInt32(&ran1, 1) }); err != nil {
		t.Fatalf("s1 SpawnRoot: %v", err)
	}
	if err := s2.SpawnRoot(func(ctx *TaskContext) { atomic.StoreInt32(&ran2, 1) }); err != nil {
		t.Fatalf("s2 SpawnRoot: %v", err)
	}

	if err := s1.Join(); err != nil {
		t.Fatalf("s1 Join: %v", err)
	}
	if err := s2.Join(); err != nil {
		t.Fatalf("s2 Join: %v", err)
	}

	if atomic.LoadInt32(&ran1) != 1 || atomic.LoadInt32(&ran2) != 1 {
		t.Error("expected both schedulers' root tasks to run")
	}
}

func TestThreadPool_SetNumThreadsResizesLive(t *testing.T) {
	pool := NewThreadPool(WithNumThreads(2))
	if err := pool.StartThreads(); err != nil {
		t.Fatalf("StartThreads: %v", err)
	}
	defer pool.Close()

	if err := pool.SetNumThreads(4); err != nil {
		t.Fatalf("SetNumThreads(4): %v", err)
	}
	if got := pool.NumThreads(); got != 4 {
		t.Errorf("expected NumThreads() == 4, got %d", got)
	}

	if err := pool.SetNumThreads(1); err != nil {
		t.Fatalf("SetNumThreads(1): %v", err)
	}
	if got := pool.NumThreads(); got != 1 {
		t.Errorf("expected NumThreads() == 1, got %d", got)
	}
}

func TestThreadPool_CloseStopsFurtherUse(t *testing.T) {
	pool := NewThreadPool(WithNumThreads(1))
	if err := pool.StartThreads(); err != nil {
		t.Fatalf("StartThreads: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Errorf("expected repeated Close to be a no-op, got %v", err)
	}
	if err := pool.SetNumThreads(2); err != ErrPoolStopped {
		t.Errorf("expected ErrPoolStopped after Close, got %v", err)
	}
}

// ============================================================================
// MISC
// ============================================================================

func TestScheduler_AttachedThreadCountDuringJoin(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()

	done := make(chan struct{})
	if err := s.SpawnRoot(func(ctx *TaskContext) {
		close(done)
		time.Sleep(10 * time.Millisecond)
	}); err != nil {
		t.Fatalf("SpawnRoot: %v", err)
	}

	go func() {
		_ = s.Join()
	}()

	<-done
	if s.AttachedThreadCount() < 1 {
		t.Error("expected at least one attached thread while the root task runs")
	}
}

func TestScheduler_SpawnNilClosureErrors(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()

	if err := s.SpawnRoot(nil); err != ErrNilClosure {
		t.Fatalf("expected ErrNilClosure, got %v", err)
	}
}
