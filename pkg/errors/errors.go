package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryState         ErrorCategory = "state"
	CategoryCollaborator  ErrorCategory = "collaborator"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryPersistence   ErrorCategory = "persistence"
	CategoryParse         ErrorCategory = "parse"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Validation errors
	CodeAmountMismatch ErrorCode = "amount_mismatch"
	CodeMissingField   ErrorCode = "missing_field"
	CodeInvalidAmount  ErrorCode = "invalid_amount"
	CodeInvalidDate    ErrorCode = "invalid_date"
	CodeDuplicateID    ErrorCode = "duplicate_id"

	// State errors
	CodeNotEligible       ErrorCode = "not_eligible"
	CodeInvalidTransition ErrorCode = "invalid_transition"
	CodeRequestInFlight   ErrorCode = "request_in_flight"
	CodeStaleResponse     ErrorCode = "stale_response"

	// Collaborator errors
	CodeServiceUnavailable ErrorCode = "service_unavailable"
	CodeMalformedResponse  ErrorCode = "malformed_response"
	CodeTimeout            ErrorCode = "timeout"

	// Lookup errors
	CodeTransactionNotFound ErrorCode = "transaction_not_found"
	CodeSessionNotFound     ErrorCode = "session_not_found"
	CodeFileNotFound        ErrorCode = "file_not_found"

	// Persistence, parse and configuration errors
	CodeStorageFailed   ErrorCode = "storage_failed"
	CodeInvalidFormat   ErrorCode = "invalid_format"
	CodeMissingColumn   ErrorCode = "missing_column"
	CodeInvalidConfig   ErrorCode = "invalid_config"
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", msg, e.Suggestion)
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a ReconcilerError with the same category and code.
// A target with an empty code matches on category alone.
func (e *ReconcilerError) Is(target error) bool {
	t, ok := target.(*ReconcilerError)
	if !ok {
		return false
	}
	if t.Code == "" {
		return e.Category == t.Category
	}
	return e.Category == t.Category && e.Code == t.Code
}

// GetExitCode returns an appropriate exit code for the error
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryState, CategoryNotFound, CategoryInternal:
		return 5
	case CategoryCollaborator:
		return 6
	case CategoryPersistence:
		return 7
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Sentinels usable with errors.Is to test a category.
var (
	ErrValidation   = &ReconcilerError{Category: CategoryValidation}
	ErrInvalidState = &ReconcilerError{Category: CategoryState}
	ErrUnavailable  = &ReconcilerError{Category: CategoryCollaborator}
	ErrNotFound     = &ReconcilerError{Category: CategoryNotFound}
)

// Validation creates an error for input rejected before any mutation.
func Validation(code ErrorCode, field string, value interface{}) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeAmountMismatch:
		message = fmt.Sprintf("amounts in '%s' do not sum to the expected total: %v", field, value)
		suggestion = "adjust the parts so that they add up to the original amount"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "use a decimal amount such as '12.34'"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use the YYYY-MM-DD date format"
	case CodeDuplicateID:
		message = fmt.Sprintf("identifier in '%s' is already in use or retired: %v", field, value)
		suggestion = "choose an identifier that has never been used"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return New(CategoryValidation, code, message).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// InvalidState creates an error for an operation attempted in the wrong state.
func InvalidState(code ErrorCode, operation string, detail string) *ReconcilerError {
	message := fmt.Sprintf("%s is not allowed: %s", operation, detail)

	var suggestion string
	switch code {
	case CodeNotEligible:
		suggestion = "select ledger and bank transactions whose totals are equal and non-zero"
	case CodeInvalidTransition:
		suggestion = "session status only moves forward: in_progress, completed, certified, archived"
	case CodeRequestInFlight:
		suggestion = "wait for the pending suggestion request to finish"
	}

	err := New(CategoryState, code, message).WithContext("operation", operation)
	if suggestion != "" {
		err.WithSuggestion(suggestion)
	}
	return err
}

// CollaboratorUnavailable wraps a failure of an external collaborator such as
// the matching service. Callers use it to tell "service failed" apart from
// "nothing found".
func CollaboratorUnavailable(code ErrorCode, collaborator string, err error) *ReconcilerError {
	var message string

	switch code {
	case CodeTimeout:
		message = fmt.Sprintf("%s timed out", collaborator)
	case CodeMalformedResponse:
		message = fmt.Sprintf("%s returned a malformed response", collaborator)
	default:
		message = fmt.Sprintf("%s is unavailable", collaborator)
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryCollaborator, code, message)
	} else {
		result = New(CategoryCollaborator, code, message)
	}

	return result.
		WithSuggestion("try again later; manual reconciliation remains available").
		WithContext("collaborator", collaborator)
}

// NotFound creates an error for an id that is not present.
func NotFound(code ErrorCode, kind string, id string) *ReconcilerError {
	return New(CategoryNotFound, code, fmt.Sprintf("%s '%s' not found", kind, id)).
		WithContext("kind", kind).
		WithContext("id", id)
}

// Persistence wraps a storage backend failure.
func Persistence(operation string, key string, err error) *ReconcilerError {
	return Wrap(err, CategoryPersistence, CodeStorageFailed, fmt.Sprintf("storage %s failed for key '%s'", operation, key)).
		WithContext("operation", operation).
		WithContext("key", key)
}

// ParseError creates a parsing-related error
func ParseError(code ErrorCode, file string, line int, column string, value string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column '%s' in file %s", column, file)
		suggestion = "verify the file has all required columns with correct headers"
	default:
		message = fmt.Sprintf("invalid data in file %s at line %d, column '%s': '%s'", file, line, column, value)
		suggestion = "correct the data format or remove the invalid entry"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file", file).
		WithContext("line", line).
		WithContext("column", column)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(setting string, value interface{}, err error) *ReconcilerError {
	message := fmt.Sprintf("invalid configuration for '%s': %v", setting, value)

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, CodeInvalidConfig, message)
	} else {
		result = New(CategoryConfiguration, CodeInvalidConfig, message)
	}

	return result.
		WithSuggestion("check the configuration file and RECONCILER_* environment variables").
		WithContext("setting", setting)
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	re, ok := AsReconcilerError(err)
	return ok && re.Code == code
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }

func IsCollaboratorUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// GetExitCode maps any error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}
	if re, ok := AsReconcilerError(err); ok {
		return re.GetExitCode()
	}
	return 1
}
