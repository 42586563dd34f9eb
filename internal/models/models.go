package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// Flex is a string field the transaction API sends as a string, a number or null.
type Flex string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (f *Flex) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = Flex(s)
		return nil
	}
	if b[0] == '{' || b[0] == '[' {
		*f = ""
		return nil
	}
	*f = Flex(string(b))
	return nil
}

// String returns the trimmed value.
func (f Flex) String() string {
	return strings.TrimSpace(string(f))
}

// RawTransaction is one record as returned by the transaction API. Any field may be absent.
type RawTransaction struct {
	TransactionID       Flex `json:"transaction_id"`
	ID                  Flex `json:"id"`
	TransactionDate     Flex `json:"transaction_date"`
	TransactionQuantity Flex `json:"transaction_quantity"`
	PartNumber          Flex `json:"part_number"`
	Description         Flex `json:"description"`
	Subinventory        Flex `json:"subinventory"`
	DocumentReference   Flex `json:"document_reference"`
	SourceReference     Flex `json:"source_reference"`
	TransactionTypeName Flex `json:"transaction_type_name"`
	Username            Flex `json:"username"`
	BeginQty            Flex `json:"begin_qty"`
	BeginQtyTimestamp   Flex `json:"begin_qty_timestamp"`
	CurrentStock        Flex `json:"current_stock"`
}

// Identifier returns transaction_id, falling back to id.
func (r RawTransaction) Identifier() string {
	if s := r.TransactionID.String(); s != "" {
		return s
	}
	return r.ID.String()
}

// AuditEntry is a row of the audit trail.
type AuditEntry struct {
	ID        int    `json:"id"`
	RequestID string `json:"request_id"`
	Action    string `json:"action"`
	Module    string `json:"module"`
	RecordID  string `json:"record_id"`
	Summary   string `json:"summary"`
	IPAddress string `json:"ip_address"`
	CreatedAt string `json:"created_at"`
}

// DataExport records one generated export file.
type DataExport struct {
	ID          string `json:"id"`
	EntityType  string `json:"entity_type"`
	Format      string `json:"format"`
	RecordCount int    `json:"record_count"`
	RangeLabel  string `json:"range_label"`
	ExportedAt  string `json:"exported_at"`
}

// LabelSheetRequest is the body of POST /api/v1/labels/sheet.
type LabelSheetRequest struct {
	Parts        []string `json:"parts"`
	Subinventory string   `json:"subinventory"`
	Columns      int      `json:"columns"`
	Size         int      `json:"size"`
}

// ScanResult represents a scanned code resolved to a part.
type ScanResult struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Label string `json:"label"`
	Link  string `json:"link"`
	Exact bool   `json:"exact"`
}
