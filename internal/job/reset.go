// Package job runs periodic background work against the ledger.
package job

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/scorekeeper/internal/metrics"
	"github.com/and161185/scorekeeper/internal/model"
	"github.com/and161185/scorekeeper/internal/notify"
)

// Resetter is the part of the ledger used by the weekly reset.
type Resetter interface {
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
	ResetChallenges(ctx context.Context, id uuid.UUID) error
	CurrentChallenges() model.ChallengeState
}

// Config tunes the reset schedule.
type Config struct {
	Interval    time.Duration
	Timeout     time.Duration
	Concurrency int
}

// Result summarises one reset run.
type Result struct {
	Total  int
	Reset  int
	Failed int
}

// WeeklyReset periodically replaces every user's weekly challenges.
type WeeklyReset struct {
	ledger   Resetter
	notifier notify.Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
	cfg      Config
}

// NewWeeklyReset constructs the job. Zero config values fall back to a
// weekly interval, a five minute run timeout and 8 workers.
func NewWeeklyReset(ledger Resetter, n notify.Notifier, m *metrics.Metrics, log *zap.Logger, cfg Config) *WeeklyReset {
	if cfg.Interval <= 0 {
		cfg.Interval = 7 * 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if n == nil {
		n = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WeeklyReset{
		ledger:   ledger,
		notifier: n,
		metrics:  m,
		log:      log.With(zap.String("component", "job.weekly_reset")),
		cfg:      cfg,
	}
}

// Start runs the job on every tick until ctx is done.
func (j *WeeklyReset) Start(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	j.log.Info("scheduled", zap.Duration("interval", j.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
				j.log.Error("reset run failed", zap.Error(err))
			}
		}
	}
}

// RunOnce resets all users. A failure for one user is logged and counted
// and does not stop the others. The run is bounded by the configured timeout.
func (j *WeeklyReset) RunOnce(ctx context.Context) (res Result, err error) {
	start := time.Now()
	defer func() {
		if j.metrics != nil {
			j.metrics.ResetRuns.WithLabelValues(metrics.Outcome(err)).Inc()
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, j.cfg.Timeout)
	defer cancel()

	ids, err := j.ledger.ListUserIDs(ctx)
	if err != nil {
		return res, err
	}
	res.Total = len(ids)

	var okN, failN atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Concurrency)
	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if rerr := j.ledger.ResetChallenges(gctx, id); rerr != nil {
				failN.Add(1)
				j.count("error")
				j.log.Warn("reset user", zap.String("user_id", id.String()), zap.Error(rerr))
				return nil
			}
			okN.Add(1)
			j.count("ok")
			return nil
		})
	}
	_ = g.Wait()

	res.Reset, res.Failed = int(okN.Load()), int(failN.Load())
	if cerr := ctx.Err(); cerr != nil {
		err = cerr
		if errors.Is(cerr, context.DeadlineExceeded) {
			j.log.Warn("reset run timed out", zap.Int("reset", res.Reset), zap.Int("total", res.Total))
		}
		return res, err
	}

	if perr := j.notifier.Publish(context.WithoutCancel(ctx), notify.EventNewChallenges, j.ledger.CurrentChallenges()); perr != nil {
		j.log.Warn("publish new challenges", zap.Error(perr))
	}
	j.log.Info("reset done",
		zap.Int("total", res.Total),
		zap.Int("reset", res.Reset),
		zap.Int("failed", res.Failed),
		zap.Duration("dur", time.Since(start)),
	)
	return res, nil
}

func (j *WeeklyReset) count(outcome string) {
	if j.metrics != nil {
		j.metrics.ResetUsers.WithLabelValues(outcome).Inc()
	}
}
