package jobs

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"github.com/johnjansen/bayeuxkit/audit"
	"github.com/johnjansen/bayeuxkit/broker"
)

// Task type names routed through the Asynq ServeMux.
const (
	TaskReportStats = "bayeux:report-stats"
	TaskAuditVacuum = "bayeux:audit-vacuum"
)

// handleReportStats logs a point-in-time registry snapshot. Intended to
// run every minute or so via a scheduler; cheap enough that overlapping
// runs are harmless.
func handleReportStats(ctx *broker.Context) func(context.Context, *asynq.Task) error {
	return func(_ context.Context, _ *asynq.Task) error {
		stats := ctx.Stats()
		log.Printf("jobs: stats sessions=%d channels=%d cache_entries=%d",
			stats.ActiveSessions, stats.ActiveChannels, stats.CacheEntries)
		return nil
	}
}

// handleAuditVacuum compacts the audit sqlite file. Intended to run on a
// slow cadence (daily) since VACUUM rewrites the whole database file.
func handleAuditVacuum(sink *audit.Sink) func(context.Context, *asynq.Task) error {
	return func(c context.Context, _ *asynq.Task) error {
		if err := sink.Vacuum(c); err != nil {
			return err
		}
		log.Println("jobs: audit log vacuumed")
		return nil
	}
}
