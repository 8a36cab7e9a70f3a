package taskkit

import (
	"runtime"
	"time"

	"github.com/taskkit/taskkit/alloc"
)

// Metrics is taskkit's observability hook, retargeted from the teacher's
// core.Metrics (task duration/panic/queue-depth/rejection) onto the
// runtime's own domain: scheduler backlog, pool worker activity, and
// allocator slab pressure. observability/prometheus.MetricsExporter
// implements this against github.com/prometheus/client_golang.
type Metrics interface {
	// RecordSchedulerPending records how many continuations are waiting on
	// the scheduler owned by threadID.
	RecordSchedulerPending(threadID uint64, pending int)

	// RecordWorkerBusy records whether a thread-pool worker is currently
	// executing its scheduler's Update (true) or idle on its doorbell
	// (false).
	RecordWorkerBusy(pool string, worker int, busy bool)

	// RecordSlabCount records the number of slabs the pool allocator has
	// carved from the system allocator.
	RecordSlabCount(count int)

	// RecordRemoteFreeDepth records the length of the allocator's
	// cross-thread deferred-free queue.
	RecordRemoteFreeDepth(depth int)
}

// NilMetrics discards every recorded metric, mirroring the teacher's
// NilMetrics default.
type NilMetrics struct{}

func (NilMetrics) RecordSchedulerPending(uint64, int) {}
func (NilMetrics) RecordWorkerBusy(string, int, bool) {}
func (NilMetrics) RecordSlabCount(int)                {}
func (NilMetrics) RecordRemoteFreeDepth(int)          {}

var _ Metrics = NilMetrics{}

// Config configures a Runtime. Initialize starts from DefaultConfig and
// applies each Option over it, mirroring the teacher's
// TaskSchedulerConfig/DefaultTaskSchedulerConfig shape. A field an Option
// sets to its zero value keeps that zero value; it does not fall back to
// the default.
type Config struct {
	// ThreadPoolSize is the number of worker goroutines backing
	// task.RunOnThreadPool. Defaults to runtime.GOMAXPROCS(0).
	ThreadPoolSize int

	// MainThreadSchedulerCount is how many independent main-thread
	// schedulers Initialize pre-creates (one per simulated "main thread"
	// a host application drives itself, e.g. one per UI/game loop
	// thread). Defaults to 1.
	MainThreadSchedulerCount int

	// Allocator backs every task frame's coroutine state. Defaults to a
	// alloc.NewPoolAllocator with a modest slab size.
	Allocator alloc.Allocator

	// Logger receives structured runtime diagnostics. Defaults to a
	// stderr ZerologLogger.
	Logger Logger

	// Metrics receives runtime observability counters. Defaults to
	// NilMetrics.
	Metrics Metrics

	// MetricsPollInterval controls how often a Runtime with metrics
	// configured samples scheduler/pool/allocator state. Defaults to
	// 500ms.
	MetricsPollInterval time.Duration
}

// Option mutates a Config being built by Initialize.
type Option func(*Config)

// WithThreadPoolSize sets the number of thread-pool workers.
func WithThreadPoolSize(n int) Option {
	return func(c *Config) { c.ThreadPoolSize = n }
}

// WithMainThreadSchedulerCount sets how many main-thread schedulers
// Initialize pre-creates.
func WithMainThreadSchedulerCount(n int) Option {
	return func(c *Config) { c.MainThreadSchedulerCount = n }
}

// WithAllocator overrides the pool allocator backing task frames.
func WithAllocator(a alloc.Allocator) Option {
	return func(c *Config) { c.Allocator = a }
}

// WithLogger overrides the runtime's structured logger.
func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics installs a Metrics recorder, e.g.
// observability/prometheus.NewMetricsExporter.
func WithMetrics(m Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// DefaultConfig returns the configuration Initialize starts from before
// applying options.
func DefaultConfig() Config {
	return Config{
		ThreadPoolSize:           runtime.GOMAXPROCS(0),
		MainThreadSchedulerCount: 1,
		Allocator:                alloc.NewPoolAllocator(),
		Logger:                   NewDefaultLogger(),
		Metrics:                  NilMetrics{},
		MetricsPollInterval:      500 * time.Millisecond,
	}
}
