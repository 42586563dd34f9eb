package audit

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT DEFAULT '',
		action TEXT NOT NULL CHECK(action IN ('EXPORT','PRINT','SCAN','REFRESH')),
		module TEXT NOT NULL,
		record_id TEXT DEFAULT '',
		summary TEXT DEFAULT '',
		ip_address TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at)`,
	`CREATE TABLE IF NOT EXISTS data_exports (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		format TEXT NOT NULL CHECK(format IN ('xlsx','csv')),
		record_count INTEGER DEFAULT 0,
		range_label TEXT DEFAULT '',
		exported_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}

// Migrate creates the audit tables if they do not exist.
func Migrate(db *sql.DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("audit migration: %w", err)
		}
	}
	return nil
}
