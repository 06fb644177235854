// Package metrics exports tasksys Scheduler and ThreadPool statistics as
// Prometheus gauges, polled on an interval. It is the optional domain-stack
// half of tasksys's observability story — logging
// hooks live in the root package, metrics live here so a host that doesn't
// want the github.com/prometheus/client_golang dependency doesn't have to
// import it.
//
// Grounded in Swind-go-task-runner's observability/prometheus package:
// the same register-gauge-vecs-then-poll-on-a-ticker shape, adapted to
// tasksys.Scheduler/tasksys.ThreadPool's Stats() rather than a task
// runner's RunnerStats/PoolStats.
package metrics

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/tahsin716/tasksys"
)

// SchedulerSnapshotProvider provides current Scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() tasksys.SchedulerStats
}

// PoolSnapshotProvider provides current ThreadPool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() tasksys.PoolStats
}

// SnapshotPoller periodically exports Scheduler/ThreadPool Stats()
// snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	schedAttached  *prom.GaugeVec
	schedRunning   *prom.GaugeVec
	schedHasRoot   *prom.GaugeVec
	schedCancelled *prom.GaugeVec

	poolThreads    *prom.GaugeVec
	poolSchedulers *prom.GaugeVec
	poolStopped    *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a poller and registers its collectors with reg
// (prom.DefaultRegisterer if nil).
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	schedAttached := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasksys",
		Name:      "scheduler_attached_threads",
		Help:      "Number of threads currently attached to a scheduler.",
	}, []string{"scheduler"})
	schedRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasksys",
		Name:      "scheduler_tasks_running",
		Help:      "Scheduler anyTasksRunning counter snapshot.",
	}, []string{"scheduler"})
	schedHasRoot := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasksys",
		Name:      "scheduler_has_root_task",
		Help:      "Whether a root task is pending or running (1=yes, 0=no).",
	}, []string{"scheduler"})
	schedCancelled := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasksys",
		Name:      "scheduler_cancelled",
		Help:      "Whether the scheduler's cancelling exception has been set (1=yes, 0=no).",
	}, []string{"scheduler"})

	poolThreads := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasksys",
		Name:      "pool_threads",
		Help:      "ThreadPool configured thread count.",
	}, []string{"pool"})
	poolSchedulers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasksys",
		Name:      "pool_schedulers",
		Help:      "Number of schedulers registered with the pool.",
	}, []string{"pool"})
	poolStopped := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasksys",
		Name:      "pool_stopped",
		Help:      "Whether the pool has been closed (1=yes, 0=no).",
	}, []string{"pool"})

	var err error
	if schedAttached, err = registerCollector(reg, schedAttached); err != nil {
		return nil, err
	}
	if schedRunning, err = registerCollector(reg, schedRunning); err != nil {
		return nil, err
	}
	if schedHasRoot, err = registerCollector(reg, schedHasRoot); err != nil {
		return nil, err
	}
	if schedCancelled, err = registerCollector(reg, schedCancelled); err != nil {
		return nil, err
	}
	if poolThreads, err = registerCollector(reg, poolThreads); err != nil {
		return nil, err
	}
	if poolSchedulers, err = registerCollector(reg, poolSchedulers); err != nil {
		return nil, err
	}
	if poolStopped, err = registerCollector(reg, poolStopped); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:       interval,
		schedulers:     make(map[string]SchedulerSnapshotProvider),
		pools:          make(map[string]PoolSnapshotProvider),
		schedAttached:  schedAttached,
		schedRunning:   schedRunning,
		schedHasRoot:   schedHasRoot,
		schedCancelled: schedCancelled,
		poolThreads:    poolThreads,
		poolSchedulers: poolSchedulers,
		poolStopped:    poolStopped,
	}, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.schedulersMu.RLock()
	for name, provider := range p.schedulers {
		stats := provider.Stats()
		p.schedAttached.WithLabelValues(name).Set(float64(stats.AttachedThreads))
		p.schedRunning.WithLabelValues(name).Set(float64(stats.TasksRunning))
		p.schedHasRoot.WithLabelValues(name).Set(boolToFloat(stats.HasRootTask))
		p.schedCancelled.WithLabelValues(name).Set(boolToFloat(stats.Cancelled))
	}
	p.schedulersMu.RUnlock()

	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolThreads.WithLabelValues(name).Set(float64(stats.NumThreads))
		p.poolSchedulers.WithLabelValues(name).Set(float64(stats.NumSchedulers))
		p.poolStopped.WithLabelValues(name).Set(boolToFloat(stats.Stopped))
	}
	p.poolsMu.RUnlock()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func normalizeLabel(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// registerCollector registers v with reg, returning the already-registered
// instance if v was registered previously under an equivalent descriptor —
// mirrors the common registerCollector helper pattern so re-registering the
// same poller twice (e.g. in tests) doesn't panic.
func registerCollector[T prom.Collector](reg prom.Registerer, v T) (T, error) {
	if err := reg.Register(v); err != nil {
		if are, ok := err.(prom.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return v, nil
}
