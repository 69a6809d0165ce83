package migrations

import (
	"embed"
)

// BayeuxMigrations contains the schema for the audit log sink
// (package audit): a one-way append log of broker lifecycle events,
// never consulted by the broker itself.
//
//go:embed bayeux/*.sql
var BayeuxMigrations embed.FS

// GetBayeuxMigrations returns the embedded filesystem containing the
// audit log's migrations, for wiring into a migrations.NewRunner.
func GetBayeuxMigrations() embed.FS {
	return BayeuxMigrations
}

// MigrationList returns the audit log migration names in application
// order.
func MigrationList() []string {
	return []string{
		"001_create_audit_log",
		"002_create_audit_log_indexes",
	}
}

// Version returns the version of the audit log migration set.
func Version() string {
	return "0.1.0"
}
