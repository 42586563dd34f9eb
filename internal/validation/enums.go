package validation

// Common enum values accepted by request parameters.
var (
	ValidExportFormats = []string{"xlsx", "csv"}
	ValidAuditActions  = []string{"EXPORT", "PRINT", "SCAN", "REFRESH"}
)
