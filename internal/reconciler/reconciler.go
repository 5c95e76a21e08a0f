// Package reconciler periodically verifies the ledger's conservation
// property: deposits minus withdrawals must equal spendable balances plus
// outstanding escrow. Drift indicates a corrupted store and is surfaced
// through logs and metrics rather than repaired automatically.
package reconciler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/DeBounty-Network/escrow_layer/internal/domain/ledger"
	"github.com/DeBounty-Network/escrow_layer/internal/metrics"
	"github.com/DeBounty-Network/escrow_layer/internal/query"
	"github.com/DeBounty-Network/escrow_layer/pkg/logger"
)

// Reconciler runs conservation sweeps on a cron schedule.
type Reconciler struct {
	query    *query.Service
	log      *logger.Logger
	schedule string
	cron     *cron.Cron
}

// New creates a reconciler. The schedule uses standard cron syntax; an
// empty schedule defaults to once a minute.
func New(svc *query.Service, schedule string, log *logger.Logger) *Reconciler {
	if schedule == "" {
		schedule = "* * * * *"
	}
	if log == nil {
		log = logger.NewDefault("reconciler")
	}
	return &Reconciler{
		query:    svc,
		log:      log.WithComponent("reconciler"),
		schedule: schedule,
	}
}

// Start schedules the sweep and runs one immediately.
func (r *Reconciler) Start() error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := r.Sweep(ctx); err != nil {
			r.log.WithError(err).Error("conservation sweep failed")
		}
	}); err != nil {
		return err
	}
	r.cron.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := r.Sweep(ctx); err != nil {
		r.log.WithError(err).Error("initial conservation sweep failed")
	}
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (r *Reconciler) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// Sweep computes the pool report once, publishes gauges and returns the
// observed drift.
func (r *Reconciler) Sweep(ctx context.Context) (int64, error) {
	report, err := r.query.Pool(ctx)
	if err != nil {
		return 0, err
	}

	metrics.SetConservationDrift(report.Drift)
	if err := r.publishTaskCounts(ctx); err != nil {
		return 0, err
	}

	if report.Drift != 0 {
		r.log.WithField("drift", report.Drift).
			WithField("deposited", report.Deposited).
			WithField("withdrawn", report.Withdrawn).
			WithField("balances", report.TotalBalances).
			WithField("escrowed", report.TotalEscrowed).
			Error("ledger conservation violated")
	} else {
		r.log.WithField("escrowed", report.TotalEscrowed).Debug("conservation sweep clean")
	}
	return report.Drift, nil
}

func (r *Reconciler) publishTaskCounts(ctx context.Context) error {
	tasks, err := r.query.Tasks(ctx, "")
	if err != nil {
		return err
	}

	counts := map[ledger.TaskStatus]int{
		ledger.StatusOpen:      0,
		ledger.StatusAssigned:  0,
		ledger.StatusCompleted: 0,
	}
	for _, task := range tasks {
		counts[task.Status]++
	}
	for status, count := range counts {
		metrics.SetTaskStatusCount(string(status), count)
	}
	return nil
}
