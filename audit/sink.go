// Package audit is a one-way event sink: it subscribes to events.Bus and
// appends every broker lifecycle notification to a sqlite-backed log,
// purely for operational history. The broker never reads this log
// back, so losing it costs nothing but history.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/johnjansen/bayeuxkit/events"
	"github.com/johnjansen/bayeuxkit/migrations"
)

// Sink owns a sqlite connection and a goroutine draining one events.Bus
// subscription into it.
type Sink struct {
	db     *sql.DB
	runner *migrations.Runner

	mu   sync.Mutex
	done chan struct{}
	stop func()
}

// Open opens (creating if necessary) a sqlite database at path and
// brings its schema up to date via the embedded bayeux migrations.
// path may be ":memory:" for tests.
func Open(path string) (*Sink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: pinging %s: %w", path, err)
	}

	runner := migrations.NewRunner(db, migrations.BayeuxMigrations, "sqlite3")
	if err := runner.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: applying schema: %w", err)
	}

	return &Sink{db: db, runner: runner}, nil
}

// Follow subscribes to bus and records every event until Close is
// called or bus itself stops. Safe to call once per Sink.
func (s *Sink) Follow(bus *events.Bus) {
	ch, unsubscribe := bus.Subscribe()
	done := make(chan struct{})

	s.mu.Lock()
	s.done = done
	s.stop = unsubscribe
	s.mu.Unlock()

	go func() {
		defer close(done)
		for e := range ch {
			if err := s.record(e); err != nil {
				log.Printf("audit: recording event: %v", err)
			}
		}
	}()
}

// record appends a single event to audit_log. Channels is stored as a
// JSON array so KindSubscribe's multi-channel payload survives round
// trip without a join table.
func (s *Sink) record(e events.Event) error {
	var channelsJSON []byte
	if len(e.Channels) > 0 {
		var err error
		channelsJSON, err = json.Marshal(e.Channels)
		if err != nil {
			return fmt.Errorf("marshaling channels: %w", err)
		}
	}

	_, err := s.db.Exec(
		"INSERT INTO audit_log (client_id, kind, channels) VALUES (?, ?, ?)",
		e.ClientID, string(e.Kind), nullableString(channelsJSON),
	)
	return err
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// Vacuum compacts the underlying sqlite file. Intended to run on a slow
// cadence (the jobs.TaskAuditVacuum task) since VACUUM rewrites the
// whole database file and briefly locks it.
func (s *Sink) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Count returns the number of rows currently in the audit log, mostly
// useful for tests and the grift bayeux:stats task.
func (s *Sink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&n)
	return n, err
}

// Close stops following the bus, if Follow was called, and closes the
// sqlite connection.
func (s *Sink) Close() error {
	s.mu.Lock()
	stop := s.stop
	done := s.done
	s.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	return s.db.Close()
}
