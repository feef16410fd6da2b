package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RunFunc performs one cycle of a background job. The returned count is the
// number of records the cycle touched (rows anonymized, keys deleted).
type RunFunc func(ctx context.Context) (int, error)

// Config configures a periodic job.
type Config struct {
	// Type labels the job in metrics and logs (e.g., JobTypeIdempotencyCleanup).
	Type string
	// Interval is the duration between cycles.
	Interval time.Duration
	// Timeout bounds each cycle.
	Timeout time.Duration
	// Logger for job activity.
	Logger *slog.Logger
	// Metrics for centralized background job tracking. May be nil.
	Metrics *Metrics
}

// DefaultInterval is the default duration between job cycles.
const DefaultInterval = time.Hour

// DefaultTimeout is the default timeout for a single cycle.
const DefaultTimeout = 30 * time.Second

// Periodic runs a RunFunc on a fixed interval until stopped.
type Periodic struct {
	config Config
	run    RunFunc

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPeriodic creates a periodic job. Zero-valued config fields get defaults.
func NewPeriodic(config Config, run RunFunc) *Periodic {
	if config.Interval == 0 {
		config.Interval = DefaultInterval
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Periodic{config: config, run: run}
}

// Start begins the periodic job.
// Returns immediately; the job runs in a background goroutine.
func (j *Periodic) Start(ctx context.Context) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.loop(ctx)
}

// Stop signals the job to stop and waits for the current cycle to finish.
func (j *Periodic) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *Periodic) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Periodic) loop(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("background job stopping due to context cancellation",
				"job_type", j.config.Type)
			return
		case <-j.stopCh:
			j.config.Logger.Info("background job stopping due to stop signal",
				"job_type", j.config.Type)
			return
		case <-ticker.C:
			j.cycle(ctx)
		}
	}
}

func (j *Periodic) cycle(parentCtx context.Context) {
	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	start := time.Now()
	count, err := j.run(ctx)
	duration := time.Since(start).Seconds()

	if j.config.Metrics != nil {
		j.config.Metrics.ObserveJobDuration(j.config.Type, duration)
	}

	if err != nil {
		j.config.Logger.Error("background job cycle failed",
			"job_type", j.config.Type,
			"error", err,
			"duration_seconds", duration)
		if j.config.Metrics != nil {
			j.config.Metrics.IncJobsTotal(j.config.Type, StatusFailure)
			errorType := "job_error"
			if ctx.Err() != nil {
				errorType = "timeout"
			}
			j.config.Metrics.IncJobErrors(j.config.Type, errorType)
		}
		return
	}

	if count > 0 {
		j.config.Logger.Info("background job cycle completed",
			"job_type", j.config.Type,
			"records", count,
			"duration_seconds", duration)
	}
	if j.config.Metrics != nil {
		j.config.Metrics.IncJobsTotal(j.config.Type, StatusSuccess)
	}
}
