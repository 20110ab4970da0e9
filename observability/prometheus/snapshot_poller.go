package prometheus

import (
	"context"
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/taskweave/go-tasking/core"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
// *core.TaskScheduler satisfies it.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
	WorkerStats() []core.WorkerStats
}

// SnapshotPoller periodically exports scheduler Stats() snapshots into
// Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	schedMu sync.RWMutex
	scheds  map[string]SchedulerSnapshotProvider

	schedReady    *prom.GaugeVec
	schedRunning  *prom.GaugeVec
	schedDelayed  *prom.GaugeVec
	schedLive     *prom.GaugeVec
	schedChunks   *prom.GaugeVec
	schedExecuted *prom.GaugeVec
	schedWorkers  *prom.GaugeVec

	workerExecuted *prom.GaugeVec
	workerStolen   *prom.GaugeVec
	workerParked   *prom.GaugeVec
	workerDepth    *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	schedReady := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasking",
		Name:      "scheduler_ready",
		Help:      "Tasks sitting in deques and affinity FIFOs.",
	}, []string{"scheduler"})
	schedRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasking",
		Name:      "scheduler_running",
		Help:      "Task bodies currently executing.",
	}, []string{"scheduler"})
	schedDelayed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasking",
		Name:      "scheduler_delayed",
		Help:      "Tasks held by the delay manager.",
	}, []string{"scheduler"})
	schedLive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasking",
		Name:      "scheduler_live_tasks",
		Help:      "Task slots currently allocated.",
	}, []string{"scheduler"})
	schedChunks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasking",
		Name:      "scheduler_allocator_chunks",
		Help:      "Allocator chunks carved so far.",
	}, []string{"scheduler"})
	schedExecuted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasking",
		Name:      "scheduler_executed_total",
		Help:      "Task bodies completed since start snapshot.",
	}, []string{"scheduler"})
	schedWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasking",
		Name:      "scheduler_workers",
		Help:      "Worker count per scheduler.",
	}, []string{"scheduler"})

	workerExecuted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasking",
		Name:      "worker_executed_total",
		Help:      "Task bodies completed per worker snapshot.",
	}, []string{"scheduler", "worker"})
	workerStolen := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasking",
		Name:      "worker_stolen_total",
		Help:      "Successful steals per worker snapshot.",
	}, []string{"scheduler", "worker"})
	workerParked := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasking",
		Name:      "worker_parked_total",
		Help:      "Park events per worker snapshot.",
	}, []string{"scheduler", "worker"})
	workerDepth := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "tasking",
		Name:      "worker_queue_depth",
		Help:      "Own deque plus affinity FIFO depth per worker.",
	}, []string{"scheduler", "worker"})

	var err error
	if schedReady, err = registerCollector(reg, schedReady); err != nil {
		return nil, err
	}
	if schedRunning, err = registerCollector(reg, schedRunning); err != nil {
		return nil, err
	}
	if schedDelayed, err = registerCollector(reg, schedDelayed); err != nil {
		return nil, err
	}
	if schedLive, err = registerCollector(reg, schedLive); err != nil {
		return nil, err
	}
	if schedChunks, err = registerCollector(reg, schedChunks); err != nil {
		return nil, err
	}
	if schedExecuted, err = registerCollector(reg, schedExecuted); err != nil {
		return nil, err
	}
	if schedWorkers, err = registerCollector(reg, schedWorkers); err != nil {
		return nil, err
	}
	if workerExecuted, err = registerCollector(reg, workerExecuted); err != nil {
		return nil, err
	}
	if workerStolen, err = registerCollector(reg, workerStolen); err != nil {
		return nil, err
	}
	if workerParked, err = registerCollector(reg, workerParked); err != nil {
		return nil, err
	}
	if workerDepth, err = registerCollector(reg, workerDepth); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:       interval,
		scheds:         make(map[string]SchedulerSnapshotProvider),
		schedReady:     schedReady,
		schedRunning:   schedRunning,
		schedDelayed:   schedDelayed,
		schedLive:      schedLive,
		schedChunks:    schedChunks,
		schedExecuted:  schedExecuted,
		schedWorkers:   schedWorkers,
		workerExecuted: workerExecuted,
		workerStolen:   workerStolen,
		workerParked:   workerParked,
		workerDepth:    workerDepth,
	}, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedMu.Lock()
	p.scheds[name] = provider
	p.schedMu.Unlock()
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

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *SnapshotPoller) poll() {
	p.schedMu.RLock()
	defer p.schedMu.RUnlock()

	for name, provider := range p.scheds {
		stats := provider.Stats()
		p.schedReady.WithLabelValues(name).Set(float64(stats.Ready))
		p.schedRunning.WithLabelValues(name).Set(float64(stats.Running))
		p.schedDelayed.WithLabelValues(name).Set(float64(stats.Delayed))
		p.schedLive.WithLabelValues(name).Set(float64(stats.Live))
		p.schedChunks.WithLabelValues(name).Set(float64(stats.Chunks))
		p.schedExecuted.WithLabelValues(name).Set(float64(stats.Executed))
		p.schedWorkers.WithLabelValues(name).Set(float64(stats.Workers))

		for _, ws := range provider.WorkerStats() {
			id := strconv.Itoa(ws.ID)
			p.workerExecuted.WithLabelValues(name, id).Set(float64(ws.Executed))
			p.workerStolen.WithLabelValues(name, id).Set(float64(ws.Stolen))
			p.workerParked.WithLabelValues(name, id).Set(float64(ws.Parked))
			p.workerDepth.WithLabelValues(name, id).Set(float64(ws.QueueDepth))
		}
	}
}
