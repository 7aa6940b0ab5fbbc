// Package errors provides structured error types for cpsdecode.
// Every error carries a category, code, message and a recoverable flag so
// that anomalies (logged, processing continues) and hard failures (the unit
// of work is abandoned) are told apart the same way across components.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCategory classifies errors by pipeline stage.
type ErrorCategory string

const (
	ErrCategoryLayout   ErrorCategory = "LAYOUT"
	ErrCategorySchema   ErrorCategory = "SCHEMA"
	ErrCategoryRegistry ErrorCategory = "REGISTRY"
	ErrCategoryDecode   ErrorCategory = "DECODE"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Layout codes
	CodeParseAnomaly = "PARSE_ANOMALY"

	// Schema codes
	CodeIntegrityViolation = "INTEGRITY_VIOLATION"
	CodeIntegrityWarning   = "INTEGRITY_WARNING"
	CodeEmptySchema        = "EMPTY_SCHEMA"

	// Registry codes
	CodeNoApplicableSchema     = "NO_APPLICABLE_SCHEMA"
	CodeDuplicateEffectiveDate = "DUPLICATE_EFFECTIVE_DATE"
	CodeInvalidDate            = "INVALID_DATE"

	// Decode codes
	CodeDecodeAnomaly        = "DECODE_ANOMALY"
	CodeUnexpectedTextColumn = "UNEXPECTED_TEXT_COLUMN"

	// Storage codes
	CodeReadFailed  = "READ_FAILED"
	CodeWriteFailed = "WRITE_FAILED"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Error is the structured error type used throughout the system.
type Error struct {
	Category    ErrorCategory
	Code        string
	Message     string
	Details     map[string]interface{}
	Cause       error
	Recoverable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:    category,
		Code:        code,
		Message:     message,
		Recoverable: isRecoverable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:    category,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: isRecoverable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// Fields returns the details as a flat map suitable for structured logging,
// with the code attached.
func (e *Error) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		out[k] = v
	}
	out["code"] = e.Code
	return out
}

// IsRecoverable checks whether an error (or its chain) is recoverable.
// Plain errors are treated as hard failures.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an *Error.
func GetCategory(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// isRecoverable determines whether processing may continue after an error.
func isRecoverable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryLayout && code == CodeParseAnomaly:
		return true
	case category == ErrCategorySchema && code == CodeIntegrityWarning:
		return true
	case category == ErrCategoryDecode && code == CodeDecodeAnomaly:
		return true
	case category == ErrCategoryDecode && code == CodeUnexpectedTextColumn:
		return true
	default:
		return false
	}
}

// List is an ordered collection of errors produced while processing one unit
// of work (a layout document or an extract).
type List []*Error

// Error implements error.
func (l List) Error() string {
	if len(l) == 0 {
		return "no errors"
	}
	if len(l) == 1 {
		return l[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors:\n", len(l)))
	for i, err := range l {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Fatal returns the entries that are not recoverable.
func (l List) Fatal() List {
	var out List
	for _, e := range l {
		if !e.Recoverable {
			out = append(out, e)
		}
	}
	return out
}

// Recoverable returns the entries that are recoverable.
func (l List) Recoverable() List {
	var out List
	for _, e := range l {
		if e.Recoverable {
			out = append(out, e)
		}
	}
	return out
}

// CountByCode tallies entries per code.
func (l List) CountByCode() map[string]int {
	counts := make(map[string]int)
	for _, e := range l {
		counts[e.Code]++
	}
	return counts
}

// Codes returns the distinct codes in sorted order.
func (l List) Codes() []string {
	counts := l.CountByCode()
	codes := make([]string, 0, len(counts))
	for c := range counts {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Convenience constructors for common errors.

func NewParseAnomaly(message string) *Error {
	return New(ErrCategoryLayout, CodeParseAnomaly, message)
}

func NewIntegrityViolation(message string) *Error {
	return New(ErrCategorySchema, CodeIntegrityViolation, message)
}

func NewIntegrityWarning(message string) *Error {
	return New(ErrCategorySchema, CodeIntegrityWarning, message)
}

func NewRegistryError(code, message string) *Error {
	return New(ErrCategoryRegistry, code, message)
}

func NewDecodeError(code, message string) *Error {
	return New(ErrCategoryDecode, code, message)
}

func NewStorageError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewConfigError(message string) *Error {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
