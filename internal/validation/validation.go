package validation

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidationError represents a structured validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects multiple field errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// RequireField checks a required string field is non-empty.
func RequireField(ve *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required")
	}
}

// ValidateEnum checks a field is one of allowed values.
func ValidateEnum(ve *ValidationErrors, field, value string, allowed []string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	ve.Add(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// ValidateDate checks a field is a valid date (YYYY-MM-DD).
func ValidateDate(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	_, err := time.Parse("2006-01-02", value)
	if err != nil {
		ve.Add(field, "must be a valid date (YYYY-MM-DD)")
	}
}

// ValidateIntRange checks a field is within a specified range.
func ValidateIntRange(ve *ValidationErrors, field string, value, min, max int) {
	if value < min || value > max {
		ve.Add(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
}

// ValidateMaxLength checks string doesn't exceed max length.
func ValidateMaxLength(ve *ValidationErrors, field, value string, max int) {
	if len(value) > max {
		ve.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// Limits on request parameters.
const (
	MaxPageSize     = 500
	DefaultPageSize = 50
	MaxSearchLength = 200
	MaxLabelParts   = 500
	MaxLabelSize    = 1024
	MinLabelSize    = 64
)

// PartNumberPattern matches part numbers as the transaction API issues them.
var PartNumberPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-_./ ]*$`)

// ValidatePartNumber validates a part number field.
func ValidatePartNumber(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if len(value) > 100 || !PartNumberPattern.MatchString(value) {
		ve.Add(field, "must contain only letters, numbers, spaces, hyphens, underscores, dots, and slashes")
	}
}

// ValidateDecimal checks a field parses as a finite decimal (if non-empty).
// NaN and Inf spellings are rejected.
func ValidateDecimal(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if _, err := decimal.NewFromString(value); err != nil {
		ve.Add(field, "must be a number")
	}
}

// Pagination reads page and limit from query values, defaulting to page 1 and DefaultPageSize.
func Pagination(ve *ValidationErrors, q url.Values) (page, limit int) {
	page, limit = 1, DefaultPageSize
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			ve.Add("page", "must be a positive integer")
		} else {
			page = n
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			ve.Add("limit", "must be an integer")
		} else {
			ValidateIntRange(ve, "limit", n, 1, MaxPageSize)
			limit = n
		}
	}
	return page, limit
}

var filenameReplacer = strings.NewReplacer(
	"..", "_", "/", "_", "\\", "_", "|", "_", "&", "_", ";", "_",
	"$", "_", "`", "_", "<", "_", ">", "_", "(", "", ")", "",
	"{", "", "}", "", "[", "", "]", "", "!", "", "*", "_", "?", "_",
	"\"", "", "'", "", " ", "_", "\r", "", "\n", "", "\t", "_", "\x00", "",
)

// SanitizeFilename removes dangerous characters and path components.
func SanitizeFilename(filename string) string {
	filename = filenameReplacer.Replace(filepath.Base(filename))
	if len(filename) > 255 {
		ext := filepath.Ext(filename)
		nameWithoutExt := filename[:len(filename)-len(ext)]
		if len(nameWithoutExt) > 200 {
			nameWithoutExt = nameWithoutExt[:200]
		}
		filename = nameWithoutExt + ext
	}
	return filename
}
