package prometheus

import (
	"context"
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider is anything reporting PendingCount the way
// scheduler.Scheduler does, extracted so this package never has to import
// the scheduler package directly.
type SchedulerSnapshotProvider interface {
	PendingCount() int
}

// SnapshotPoller periodically samples named SchedulerSnapshotProviders into
// a Prometheus gauge. It exists alongside the push-based MetricsExporter for
// schedulers a host application creates itself beyond the ones
// taskkit.Runtime already samples on its own poller — e.g. extra main-thread
// schedulers backing UI or game-loop threads the Runtime never sees.
type SnapshotPoller struct {
	interval time.Duration

	mu         sync.RWMutex
	schedulers map[string]schedulerEntry

	pending *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type schedulerEntry struct {
	threadID uint64
	provider SchedulerSnapshotProvider
}

// NewSnapshotPoller creates a snapshot poller and registers its collector.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	pending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskkit",
		Name:      "named_scheduler_pending",
		Help:      "Pending continuation count for an explicitly registered scheduler.",
	}, []string{"name", "thread_id"})

	pending, err := registerCollector(reg, pending)
	if err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:   interval,
		schedulers: make(map[string]schedulerEntry),
		pending:    pending,
	}, nil
}

// AddScheduler registers (or replaces) a named scheduler to sample on every
// poll tick. threadID is the scheduler's owning thread, recorded as a label
// so it lines up with MetricsExporter's scheduler_pending series.
func (p *SnapshotPoller) AddScheduler(name string, threadID uint64, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.mu.Lock()
	p.schedulers[name] = schedulerEntry{threadID: threadID, provider: provider}
	p.mu.Unlock()
}

// RemoveScheduler stops sampling the scheduler registered under name.
func (p *SnapshotPoller) RemoveScheduler(name string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	delete(p.schedulers, name)
	p.mu.Unlock()
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
	p.mu.RLock()
	defer p.mu.RUnlock()
	for name, entry := range p.schedulers {
		p.pending.WithLabelValues(name, strconv.FormatUint(entry.threadID, 10)).Set(float64(entry.provider.PendingCount()))
	}
}
