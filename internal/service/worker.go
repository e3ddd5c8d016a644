package service

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// expiryNoticeDays is how far ahead owners are warned before expiry.
const expiryNoticeDays = 5

// LifecycleWorker runs the daily instance accounting on a cron schedule.
// The same jobs are also reachable through the internal HTTP cron
// endpoints for platforms without a reliable in-process scheduler.
type LifecycleWorker struct {
	lifecycle *LifecycleService
	schedule  string
	cron      *cron.Cron
}

func NewLifecycleWorker(lifecycle *LifecycleService, schedule string) *LifecycleWorker {
	if schedule == "" {
		schedule = "5 0 * * *"
	}
	return &LifecycleWorker{lifecycle: lifecycle, schedule: schedule}
}

func (w *LifecycleWorker) Start(ctx context.Context) error {
	w.cron = cron.New()
	if _, err := w.cron.AddFunc(w.schedule, func() { w.runOnce(ctx) }); err != nil {
		return err
	}
	w.cron.Start()
	log.Printf("[Worker] lifecycle worker started: schedule=%q", w.schedule)

	go func() {
		<-ctx.Done()
		w.cron.Stop()
		log.Printf("[Worker] lifecycle worker stopped")
	}()
	return nil
}

func (w *LifecycleWorker) runOnce(ctx context.Context) {
	expired, err := w.lifecycle.Tick(ctx)
	if err != nil {
		log.Printf("[Worker] daily tick failed: %v", err)
		return
	}
	sent, err := w.lifecycle.NotifyExpiring(ctx, expiryNoticeDays)
	if err != nil {
		log.Printf("[Worker] expiry notices failed: %v", err)
		return
	}
	log.Printf("[Worker] daily tick done: expired=%d notices=%d", expired, sent)
}
