//go:build !linux

package tasksys

// setThreadAffinity is a no-op on platforms without
// golang.org/x/sys/unix.SchedSetaffinity support. Affinity is a scheduling
// hint (see affinity_linux.go); tasksys runs correctly without it.
func setThreadAffinity(cpuIndex int) {}
