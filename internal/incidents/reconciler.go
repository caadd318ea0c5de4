package incidents

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Reconciler periodically re-derives every service status so a stored
// status that drifted from its incidents is repaired.
type Reconciler struct {
	service  *Service
	schedule string

	mu        sync.Mutex
	scheduler *cron.Cron
}

// NewReconciler creates a reconciler running on a cron schedule
// (standard five-field spec or descriptors like "@every 5m").
func NewReconciler(service *Service, schedule string) *Reconciler {
	return &Reconciler{
		service:  service,
		schedule: schedule,
	}
}

// Start schedules the reconciliation job. Overlapping runs are skipped.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scheduler != nil {
		return fmt.Errorf("reconciler is already running")
	}

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(r.schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			slog.Error("status reconciliation failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", r.schedule, err)
	}

	scheduler.Start()
	r.scheduler = scheduler

	slog.Info("status reconciler started", "schedule", r.schedule)
	return nil
}

// Stop stops scheduling and waits for a running job or ctx expiry.
func (r *Reconciler) Stop(ctx context.Context) {
	r.mu.Lock()
	scheduler := r.scheduler
	r.scheduler = nil
	r.mu.Unlock()

	if scheduler == nil {
		return
	}

	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
	}
	slog.Info("status reconciler stopped")
}

// RunOnce re-derives all service statuses and returns how many were repaired.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	results, err := r.service.RecomputeAll(ctx, "")

	repaired := 0
	for _, res := range results {
		if !res.Changed {
			continue
		}
		repaired++
		slog.Warn("repaired drifted service status",
			"service_id", res.ServiceID,
			"stored_status", res.Previous,
			"derived_status", res.Status,
		)
	}
	reconcilerRepaired.Add(float64(repaired))

	if err != nil {
		reconcilerRuns.WithLabelValues("failed").Inc()
		return repaired, fmt.Errorf("reconcile: %w", err)
	}
	reconcilerRuns.WithLabelValues("success").Inc()

	slog.Debug("status reconciliation finished", "services", len(results), "repaired", repaired)
	return repaired, nil
}
