// ABOUTME: Database schema for nodes, controllers, and the command and response queues
// ABOUTME: One statement per entry so both SQLite and PostgreSQL can execute them

package store

import (
	"strings"

	"github.com/2389/prachand/internal/pool"
)

const serialColumn = "{{serial}}"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS nodes (
		id                  {{serial}},
		host_identifier     TEXT NOT NULL UNIQUE,
		node_key            TEXT NOT NULL UNIQUE,
		node_invalid        BOOLEAN NOT NULL DEFAULT FALSE,
		os_arch             TEXT NOT NULL DEFAULT 'unknown',
		os_build            TEXT NOT NULL DEFAULT 'unknown',
		os_major            TEXT NOT NULL DEFAULT 'unknown',
		os_minor            TEXT NOT NULL DEFAULT 'unknown',
		os_name             TEXT NOT NULL DEFAULT 'unknown',
		os_platform         TEXT NOT NULL DEFAULT 'unknown',
		hardware_vendor     TEXT NOT NULL DEFAULT 'unknown',
		hw_model            TEXT NOT NULL DEFAULT 'unknown',
		hw_version          TEXT NOT NULL DEFAULT 'unknown',
		hw_cpu_logical_core TEXT NOT NULL DEFAULT 'unknown',
		hw_cpu_type         TEXT NOT NULL DEFAULT 'unknown',
		hw_physical_memory  TEXT NOT NULL DEFAULT 'unknown',
		hostname            TEXT NOT NULL DEFAULT 'unknown',
		agent_version       TEXT NOT NULL DEFAULT 'unknown',
		enrolled_on         BIGINT NOT NULL,
		last_seen           BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_last_seen ON nodes(last_seen)`,

	`CREATE TABLE IF NOT EXISTS controllers (
		id                    {{serial}},
		controller_identifier TEXT NOT NULL UNIQUE,
		controller_key        TEXT NOT NULL,
		created_on            BIGINT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS command_queue (
		id              {{serial}},
		host_identifier TEXT NOT NULL,
		command         TEXT NOT NULL,
		queue_time      BIGINT NOT NULL,
		sent            BOOLEAN NOT NULL DEFAULT FALSE,
		sent_time       BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_command_queue_pending ON command_queue(host_identifier, sent, id)`,

	`CREATE TABLE IF NOT EXISTS response_queue (
		host_identifier TEXT NOT NULL,
		command_id      BIGINT NOT NULL,
		timestamp       BIGINT NOT NULL,
		response        TEXT NOT NULL,
		PRIMARY KEY (host_identifier, command_id)
	)`,
}

// schemaFor renders the schema for a dialect's auto-increment syntax.
func schemaFor(d pool.Dialect) []string {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d == pool.DialectPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}

	out := make([]string, len(schema))
	for i, stmt := range schema {
		out[i] = strings.ReplaceAll(stmt, serialColumn, serial)
	}
	return out
}
