package cron

import (
	"context"
	"fmt"

	"TradeReview/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Runner schedules periodic jobs with second-level cron specs.
type Runner struct {
	cron    *cron.Cron
	logger  *logger.Logger
	baseCtx context.Context
	cancel  context.CancelFunc
}

func New(l *logger.Logger) *Runner {
	if l == nil {
		l = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  l,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Add registers job under spec. Jobs receive a context cancelled on Stop.
func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("cron job panic", logger.String("job", name), logger.Any("panic", rec))
			}
		}()
		job(r.baseCtx)
	})
	if err != nil {
		return 0, fmt.Errorf("cron add %s: %w", name, err)
	}
	r.logger.Info("cron job registered", logger.String("job", name), logger.String("spec", spec))
	return id, nil
}

func (r *Runner) Start() {
	r.logger.Info("cron started")
	r.cron.Start()
}

func (r *Runner) Stop() {
	r.cancel()
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}
