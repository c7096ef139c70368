package main

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// StartAutoOptimizeScheduler periodically runs the optimization workflow.
// The schedule is a standard 5-field cron expression (minute hour
// day-of-month month day-of-week). Examples: "0 6 * * *" (daily 6am),
// "0 6 * * 1" (Mondays 6am). Scheduled runs share the manual run's guard, so
// a run triggered from the API is never doubled by the scheduler.
func StartAutoOptimizeScheduler(cfg Config, srv *Server) {
	schedule := strings.TrimSpace(cfg.AutoOptimizeSchedule)
	if schedule == "" {
		log.Println("Auto-optimize disabled (auto_optimize_schedule not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid auto_optimize_schedule '%s': %v, auto-optimize disabled", schedule, err)
		return
	}

	log.Printf("Auto-optimize scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now().In(cfg.Location)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next auto-optimize at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			ctx, startErr := srv.optimizeGuard.TryStart(context.Background())
			if startErr != nil {
				log.Printf("Auto-optimize skipped: %v", startErr)
				continue
			}
			outcome, runErr := srv.runOptimizationSession(ctx)
			srv.optimizeGuard.Finish(runErr)
			if runErr != nil {
				if errors.Is(runErr, ErrNoDataAvailable) {
					log.Println("Auto-optimize skipped: no energy data yet")
					continue
				}
				log.Printf("Auto-optimize error: %v", runErr)
				continue
			}
			log.Printf("Auto-optimize complete result=%s saved_kwh=%.2f recommendations=%d",
				outcome.Result.ID, outcome.Result.EnergySavedKWh, len(outcome.Recommendations))
		}
	}()
}
