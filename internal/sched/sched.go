// Package sched runs clock-driven jobs on a seconds-resolution cron
// pinned to IST, so schedules read in exchange time regardless of the
// host timezone.
package sched

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var ist = time.FixedZone("IST", 5*3600+1800)

// Runner schedules jobs against the exchange clock. Specs are six-field
// cron expressions (seconds first) evaluated in IST.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(ist)),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers a named job. The job runs with the runner's base
// context so shutdown cancels in-flight work.
func (r *Runner) Add(spec, name string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() {
		r.logger.Debug("cron job firing", zap.String("job", name))
		job(r.baseCtx)
	})
	if err != nil {
		return 0, err
	}
	r.logger.Info("scheduled job", zap.String("job", name), zap.String("spec", spec))
	return id, nil
}

func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("jobs", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop halts scheduling and waits for running jobs to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}
