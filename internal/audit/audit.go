package audit

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"billcard/internal/logger"
	"billcard/internal/models"
	"billcard/internal/websocket"
)

// Action constants.
const (
	ActionExport  = "EXPORT"
	ActionPrint   = "PRINT"
	ActionScan    = "SCAN"
	ActionRefresh = "REFRESH"
)

// DefaultLimit is the number of entries Recent returns when asked for none.
const DefaultLimit = 100

// Entry is an audit_log row to be written.
type Entry struct {
	Action   string
	Module   string
	RecordID string
	Summary  string
}

// LogAudit writes an audit row tagged with the request's ID and client IP, then
// notifies connected viewers. Failures are logged, never returned.
func LogAudit(db *sql.DB, hub *websocket.Hub, r *http.Request, e Entry) {
	log := logger.FromContext(r.Context())
	requestID := logger.RequestID(r.Context())
	_, err := db.Exec(`INSERT INTO audit_log (request_id, action, module, record_id, summary, ip_address)
		VALUES (?, ?, ?, ?, ?, ?)`,
		requestID, e.Action, e.Module, e.RecordID, e.Summary, GetClientIP(r))
	if err != nil {
		log.Error().Err(err).Str("action", e.Action).Msg("audit log write failed")
		return
	}
	if hub != nil {
		hub.BroadcastChange("audit", strings.ToLower(e.Action), e.RecordID, "")
	}
}

// LogDataExport records a generated export in data_exports and the audit trail.
func LogDataExport(db *sql.DB, hub *websocket.Hub, r *http.Request, exp models.DataExport) {
	log := logger.FromContext(r.Context())
	_, err := db.Exec(`INSERT INTO data_exports (id, entity_type, format, record_count, range_label)
		VALUES (?, ?, ?, ?, ?)`, exp.ID, exp.EntityType, exp.Format, exp.RecordCount, exp.RangeLabel)
	if err != nil {
		log.Error().Err(err).Str("export_id", exp.ID).Msg("export record write failed")
	}
	summary := fmt.Sprintf("Exported %d records from %s as %s", exp.RecordCount, exp.EntityType, exp.Format)
	if exp.RangeLabel != "" {
		summary += " (" + exp.RangeLabel + ")"
	}
	LogAudit(db, hub, r, Entry{Action: ActionExport, Module: exp.EntityType, RecordID: exp.ID, Summary: summary})
}

// Recent returns the newest audit entries, newest first.
func Recent(db *sql.DB, limit int) ([]models.AuditEntry, error) {
	return RecentByAction(db, "", limit)
}

// RecentByAction is Recent narrowed to one action; an empty action matches all.
func RecentByAction(db *sql.DB, action string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	query := `SELECT id, COALESCE(request_id,''), action, module, COALESCE(record_id,''),
		COALESCE(summary,''), COALESCE(ip_address,''), created_at
		FROM audit_log`
	var args []interface{}
	if action != "" {
		query += " WHERE action = ?"
		args = append(args, action)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Action, &e.Module, &e.RecordID, &e.Summary, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Exports returns the newest export records, newest first.
func Exports(db *sql.DB, limit int) ([]models.DataExport, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := db.Query(`SELECT id, entity_type, format, record_count, COALESCE(range_label,''), exported_at
		FROM data_exports ORDER BY exported_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	exports := []models.DataExport{}
	for rows.Next() {
		var e models.DataExport
		if err := rows.Scan(&e.ID, &e.EntityType, &e.Format, &e.RecordCount, &e.RangeLabel, &e.ExportedAt); err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		exports = append(exports, e)
	}
	return exports, rows.Err()
}

// CleanupOld deletes audit entries older than retentionDays.
func CleanupOld(db *sql.DB, retentionDays int, log zerolog.Logger) (int64, error) {
	result, err := db.Exec("DELETE FROM audit_log WHERE created_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", retentionDays))
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err == nil && n > 0 {
		log.Info().Int64("deleted", n).Int("retention_days", retentionDays).Msg("audit log pruned")
	}
	return n, err
}

// GetClientIP extracts the real client IP from the request (handles proxies).
func GetClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
