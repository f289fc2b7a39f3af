// Package apperror provides structured error handling for the costing and stock ledger.
// Domain failures are returned as *AppError values; nothing in the core swallows them.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Validation errors (400 / 422)
	CodeValidation        = "VALIDATION_ERROR"
	CodeSchemaValidation  = "SCHEMA_VALIDATION"
	CodeKindChange        = "KIND_CHANGE_REJECTED"
	CodeMissingExternalID = "MISSING_EXTERNAL_ID"

	// Ledger rule violations (409 / 422)
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeReceiptInUse           = "RECEIPT_IN_USE"
	CodeStockCycle             = "STOCK_CYCLE"
	CodeQuantityDrift          = "QUANTITY_DRIFT"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Reference integrity (409)
	CodeOrphanReference    = "ORPHAN_REFERENCE"
	CodeAmbiguousReference = "AMBIGUOUS_REFERENCE"
	CodeLegacyReference    = "LEGACY_REFERENCE"
	CodeStructuralChange   = "STRUCTURAL_CHANGE"

	// Reconciliation status attached to unmatched entries with candidates.
	CodeReconciliationAmbiguous = "RECONCILIATION_AMBIGUOUS"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict    = "CONFLICT"
	CodeDuplicate   = "DUPLICATE_ENTRY"
	CodeIdempotency = "IDEMPOTENCY_CONFLICT"
)

// AppError is the standard error type of the service.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (offending keys, quantities, ids)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewSchemaValidation reports a cost line whose meta does not fit its kind.
// The offending keys are sorted so the message is stable.
func NewSchemaValidation(kind string, keys []string, message string) *AppError {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return &AppError{
		Code:       CodeSchemaValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"kind": kind, "keys": sorted},
	}
}

// NewInvalidQuantity rejects a quantity that does not fit the 4-digit
// fixed-point representation.
func NewInvalidQuantity(value, reason string) *AppError {
	return &AppError{
		Code:       CodeSchemaValidation,
		Message:    "invalid quantity: " + reason,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"value": value, "reason": reason},
	}
}

// NewKindChange rejects an in-place reclassification of a cost line.
func NewKindChange(lineID any, from, to string) *AppError {
	return &AppError{
		Code:       CodeKindChange,
		Message:    "cost line kind cannot be changed in place; recreate the line",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"line_id": lineID, "from": from, "to": to},
	}
}

// NewMissingExternalID reports a purchase order line without a stable external id.
func NewMissingExternalID(lineNo int) *AppError {
	return &AppError{
		Code:       CodeMissingExternalID,
		Message:    "purchase order line has no external line id",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"field": "external_line_id", "line_no": lineNo},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientStock creates a stock shortage error
func NewInsufficientStock(itemCode string, requested, available string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"item_code": itemCode,
			"requested": requested,
			"available": available,
		},
	}
}

// NewReceiptInUse rejects undoing a receipt whose quantity was already drawn down.
func NewReceiptInUse(movementID any) *AppError {
	return &AppError{
		Code:       CodeReceiptInUse,
		Message:    "receipt has been consumed; reverse the consumption first",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"movement_id": movementID},
	}
}

// NewOrphanReference reports a record pointing at something that does not exist.
func NewOrphanReference(entityType string, entityID any, refType string, refID any) *AppError {
	return &AppError{
		Code:       CodeOrphanReference,
		Message:    fmt.Sprintf("%s references missing %s", entityType, refType),
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"entity_type": entityType,
			"entity_id":   entityID,
			"ref_type":    refType,
			"ref_id":      refID,
		},
	}
}

// NewAmbiguousReference rejects ext_refs carrying both a movement and a stock id.
func NewAmbiguousReference(lineID any) *AppError {
	return &AppError{
		Code:       CodeAmbiguousReference,
		Message:    "ext_refs carries both stock_movement_id and stock_id",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"line_id": lineID, "keys": []string{"stock_id", "stock_movement_id"}},
	}
}

// NewLegacyReference rejects a direct stock reference that was never migrated.
func NewLegacyReference(lineID any) *AppError {
	return &AppError{
		Code:       CodeLegacyReference,
		Message:    "ext_refs references a stock row directly; migrate it to a stock movement",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"line_id": lineID, "keys": []string{"stock_id"}},
	}
}

// NewStructuralChange rejects removing a purchase order line that already produced receipts.
func NewStructuralChange(externalLineID string, message string) *AppError {
	return &AppError{
		Code:       CodeStructuralChange,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"external_line_id": externalLineID},
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another user. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused for
// a different request (different operation or body hash).
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}
