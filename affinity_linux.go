//go:build linux

package tasksys

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// setThreadAffinity pins the calling goroutine's OS thread to logical CPU
// cpuIndex, wrapping it modulo runtime.NumCPU() so a pool configured with
// more threads than cores still gets a valid (if shared) affinity mask.
// Grounded in the WithAffinity option's description in config.go; this is
// the one piece of the original scheduler (set_affinity in ThreadPool's
// constructor) that has no portable Go runtime equivalent, hence the
// golang.org/x/sys/unix dependency.
//
// The goroutine must stay on this OS thread for the affinity to mean
// anything, so the caller is expected to have already called
// runtime.LockOSThread.
func setThreadAffinity(cpuIndex int) {
	ncpu := runtime.NumCPU()
	if ncpu <= 0 {
		return
	}

	var set unix.CPUSet
	set.Zero()
	set.Set(cpuIndex % ncpu)

	// Best-effort: an unsupported kernel or a sandboxed environment may
	// deny this; affinity is a scheduling hint, not a correctness
	// requirement, so a failure here is silently ignored.
	_ = unix.SchedSetaffinity(0, &set)
}
