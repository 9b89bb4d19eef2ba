// Package worker drives the jobs on their intervals, one run per job at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/card-notifier/pkg/lock"
	"github.com/jwalitptl/card-notifier/pkg/logbuffer"
	"github.com/jwalitptl/card-notifier/pkg/logger"
	"github.com/jwalitptl/card-notifier/pkg/metrics"
)

// ErrJobRunning is returned when another run of the same job holds its lock.
var ErrJobRunning = errors.New("job is already running")

// ErrUnknownJob is returned by RunByName for a name no job was registered under.
var ErrUnknownJob = errors.New("unknown job")

type Config struct {
	// LockTTL bounds how long a crashed run can block the next one. Live runs
	// keep refreshing their lease, so a run may take longer than LockTTL.
	LockTTL time.Duration
}

// Schedule runs Job every Interval.
type Schedule struct {
	Job      Job
	Interval time.Duration
}

// Report describes one finished run.
type Report struct {
	Job string `json:"job"`
	// RequestID is set when the run was triggered over HTTP.
	RequestID string        `json:"request_id,omitempty"`
	Items     int           `json:"items"`
	Lines     []string      `json:"lines"`
	Duration  time.Duration `json:"duration"`
}

type Runner struct {
	locker  lock.Locker
	config  Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	jobs    map[string]Job
}

func NewRunner(
	locker lock.Locker,
	config Config,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	jobs ...Job,
) *Runner {
	// Config validation instead of defaults
	if config.LockTTL <= 0 {
		panic("LockTTL must be greater than 0")
	}

	byName := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		byName[j.Name()] = j
	}
	return &Runner{
		locker:  locker,
		config:  config,
		logger:  logger,
		metrics: metrics,
		jobs:    byName,
	}
}

// Names lists the registered jobs in sorted order.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunByName runs the registered job called name once.
func (r *Runner) RunByName(ctx context.Context, name string) (*Report, error) {
	job, ok := r.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return r.RunOnce(ctx, job)
}

// RunOnce runs job under its lock. The report is returned even when the job fails.
func (r *Runner) RunOnce(ctx context.Context, job Job) (*Report, error) {
	name := job.Name()

	lease, err := r.locker.Acquire(ctx, "job:"+name, r.config.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			r.metrics.LockContention.WithLabelValues(name).Inc()
			r.metrics.JobRuns.WithLabelValues(name, "skipped").Inc()
			return nil, ErrJobRunning
		}
		r.metrics.JobRuns.WithLabelValues(name, "error").Inc()
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", name, err)
	}

	log := r.logger.WithContext(ctx).WithFields(map[string]interface{}{"job": name})

	runCtx, stop := lease.Keep(ctx, r.config.LockTTL, func(err error) {
		r.metrics.LockLost.WithLabelValues(name).Inc()
		log.Error(err, "Job lock lost, cancelling run")
	})
	defer func() {
		stop()
		if err := lease.Release(context.Background()); err != nil {
			log.Error(err, "Failed to release job lock")
		}
	}()

	buf := logbuffer.NewMirrored(log)

	timer := prometheus.NewTimer(r.metrics.JobDuration.WithLabelValues(name))
	started := time.Now()
	items, runErr := job.Run(runCtx, buf)
	timer.ObserveDuration()

	report := &Report{
		Job:       name,
		RequestID: logger.RequestIDFromContext(ctx),
		Items:     items,
		Lines:     buf.Lines(),
		Duration:  time.Since(started),
	}
	r.metrics.JobItems.WithLabelValues(name).Add(float64(items))

	if runErr != nil {
		r.metrics.JobRuns.WithLabelValues(name, "error").Inc()
		log.Error(runErr, "Job run failed", "items", items, "lines", len(report.Lines))
		return report, runErr
	}

	r.metrics.JobRuns.WithLabelValues(name, "success").Inc()
	log.Info("Job run finished", "items", items, "lines", len(report.Lines), "duration_ms", report.Duration.Milliseconds())
	return report, nil
}

// Start runs every schedule on its own ticker until ctx is cancelled.
func (r *Runner) Start(ctx context.Context, schedules []Schedule) {
	var wg sync.WaitGroup
	for _, s := range schedules {
		if s.Interval <= 0 {
			panic("Interval must be greater than 0")
		}
		wg.Add(1)
		go func(s Schedule) {
			defer wg.Done()
			r.loop(ctx, s)
		}(s)
	}
	wg.Wait()
}

func (r *Runner) loop(ctx context.Context, s Schedule) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	name := s.Job.Name()
	r.logger.Info("Starting job loop", "job", name, "interval", s.Interval.String())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Shutting down job loop", "job", name)
			return
		case <-ticker.C:
			// Failures are logged and counted by RunOnce.
			if _, err := r.RunOnce(ctx, s.Job); errors.Is(err, ErrJobRunning) {
				r.logger.Debug("Previous run still active, tick skipped", "job", name)
			}
		}
	}
}
