package bayeuxkit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/markbates/grift/grift"

	"github.com/johnjansen/bayeuxkit/jobs"
	"github.com/johnjansen/bayeuxkit/migrations"

	_ "github.com/mattn/go-sqlite3"
)

func init() {
	registerMigrationTasks()
	registerBrokerTasks()
	registerJobTasks()
}

// registerMigrationTasks registers tasks that manage the audit log's
// sqlite schema directly (the audit package opens its own connection;
// these tasks are for operators who want to apply/inspect that schema
// without starting the whole app).
func registerMigrationTasks() {
	_ = grift.Namespace("bayeux", func() {
		_ = grift.Desc("migrate", "Apply all pending audit log migrations")
		_ = grift.Add("migrate", func(c *grift.Context) error {
			db, err := auditDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			runner := migrations.NewRunner(db, migrations.BayeuxMigrations, "sqlite3")
			if err := runner.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("audit log migrations applied")
			return nil
		})

		_ = grift.Desc("migrate:status", "Show audit log migration status")
		_ = grift.Add("migrate:status", func(c *grift.Context) error {
			db, err := auditDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			runner := migrations.NewRunner(db, migrations.BayeuxMigrations, "sqlite3")
			applied, pending, err := runner.Status(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			fmt.Printf("applied (%d):\n", len(applied))
			for _, m := range applied {
				fmt.Printf("  - %s\n", m)
			}
			fmt.Printf("pending (%d):\n", len(pending))
			for _, m := range pending {
				fmt.Printf("  - %s\n", m)
			}
			return nil
		})
	})
}

// registerBrokerTasks registers ops tasks against the live broker
// registry via the global Kit set by Wire.
func registerBrokerTasks() {
	_ = grift.Namespace("bayeux", func() {
		_ = grift.Desc("stats", "Show broker registry statistics")
		_ = grift.Add("stats", func(c *grift.Context) error {
			kit := globalKit
			if kit == nil {
				fmt.Println("bayeuxkit is not wired into this process")
				return nil
			}
			stats := kit.Broker.Stats()
			fmt.Println("broker statistics")
			fmt.Printf("  active sessions: %d\n", stats.ActiveSessions)
			fmt.Printf("  active channels: %d\n", stats.ActiveChannels)
			fmt.Printf("  wildcard cache entries: %d\n", stats.CacheEntries)
			return nil
		})

		_ = grift.Desc("publish", "Publish a JSON payload to a channel: bayeux:publish <channel> <json>")
		_ = grift.Add("publish", func(c *grift.Context) error {
			if len(c.Args) < 2 {
				return fmt.Errorf("usage: bayeux:publish <channel> <json>")
			}
			kit := globalKit
			if kit == nil {
				return fmt.Errorf("bayeuxkit is not wired into this process")
			}

			channel := c.Args[0]
			payload := json.RawMessage(c.Args[1])
			if !json.Valid(payload) {
				return fmt.Errorf("invalid JSON payload: %s", c.Args[1])
			}

			if err := kit.Broker.Publish(channel, payload); err != nil {
				return fmt.Errorf("publish failed: %w", err)
			}
			fmt.Printf("published to %s\n", channel)
			return nil
		})
	})
}

// registerJobTasks registers background job tasks.
func registerJobTasks() {
	_ = grift.Namespace("jobs", func() {
		_ = grift.Desc("worker", "Start the background job worker")
		_ = grift.Add("worker", func(c *grift.Context) error {
			kit := globalKit
			if kit == nil || kit.Jobs == nil {
				return fmt.Errorf("jobs runtime not configured - ensure bayeuxkit is wired into your app")
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

			fmt.Println("starting job worker, press Ctrl+C to stop")

			errChan := make(chan error, 1)
			go func() {
				if err := kit.Jobs.Start(); err != nil {
					errChan <- err
				}
			}()

			select {
			case <-sigChan:
				fmt.Println("shutting down worker")
			case err := <-errChan:
				return fmt.Errorf("worker error: %w", err)
			}

			return kit.Jobs.Stop()
		})

		_ = grift.Desc("report-stats", "Enqueue a one-off stats report job")
		_ = grift.Add("report-stats", func(c *grift.Context) error {
			kit := globalKit
			if kit == nil || kit.Jobs == nil {
				return fmt.Errorf("jobs runtime not configured")
			}
			return kit.Jobs.Enqueue(jobs.TaskReportStats, nil)
		})

		_ = grift.Desc("audit-vacuum", "Enqueue an audit log vacuum job")
		_ = grift.Add("audit-vacuum", func(c *grift.Context) error {
			kit := globalKit
			if kit == nil || kit.Jobs == nil {
				return fmt.Errorf("jobs runtime not configured")
			}
			return kit.Jobs.Enqueue(jobs.TaskAuditVacuum, nil)
		})

		_ = grift.Desc("stats", "Show job runtime status")
		_ = grift.Add("stats", func(c *grift.Context) error {
			kit := globalKit
			if kit == nil || kit.Jobs == nil {
				fmt.Println("jobs runtime not configured")
				return nil
			}
			fmt.Printf("ready: %v\n", kit.Jobs.IsReady())
			return nil
		})
	})
}

// auditDB opens the sqlite file named by BAYEUX_AUDIT_DB, defaulting to
// a local dev file, for tasks invoked outside a wired process.
func auditDB() (*sql.DB, error) {
	path := os.Getenv("BAYEUX_AUDIT_DB")
	if path == "" {
		path = "bayeux_audit.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}
	return db, nil
}

// globalKit holds the Kit instance set by Wire, so grift tasks running
// in the same process can reach the live broker/jobs runtime.
var globalKit *Kit

// SetGlobalKit sets the global Kit instance for grift tasks. Called
// automatically by Wire.
func SetGlobalKit(kit *Kit) {
	globalKit = kit
}
