// Package jobs runs scheduled maintenance on top of robfig/cron.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"courier-dispatch/internal/logx"
)

const pruneTimeout = time.Minute

type historyPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneJob deletes location history older than the retention window.
type PruneJob struct {
	repo      historyPruner
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	pruned    prometheus.Counter
	logger    logx.Logger
	now       func() time.Time
}

// NewPruneJob builds the job. schedule is a six-field cron expression (with seconds).
func NewPruneJob(repo historyPruner, retention time.Duration, schedule string, logger logx.Logger) (*PruneJob, error) {
	if repo == nil {
		return nil, errors.New("history repository is required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("invalid retention: %s", retention)
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &PruneJob{
		repo:      repo,
		retention: retention,
		schedule:  schedule,
		cron:      cron.New(cron.WithSeconds()),
		logger:    logger.With(logx.String("component", "history_prune_job")),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithMetrics attaches the pruned rows counter.
func (j *PruneJob) WithMetrics(pruned prometheus.Counter) *PruneJob {
	j.pruned = pruned
	return j
}

// Start schedules the job. An invalid schedule is reported here.
func (j *PruneJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
		defer cancel()
		_, _ = j.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	j.logger.Info("history prune job started", logx.String("schedule", j.schedule), logx.Duration("retention", j.retention))
	return nil
}

// Stop waits for a running prune to finish or ctx to expire.
func (j *PruneJob) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
	j.logger.Info("history prune job stopped")
}

// RunOnce removes samples older than now minus retention.
func (j *PruneJob) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.retention)
	n, err := j.repo.PruneBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("history prune failed", logx.Err(err))
		return 0, err
	}
	if j.pruned != nil {
		j.pruned.Add(float64(n))
	}
	if n > 0 {
		j.logger.Info("history pruned", logx.Int64("rows", n), logx.Time("cutoff", cutoff))
	}
	return n, nil
}
