package errors

import (
	"errors"
	"fmt"
	"strings"
)

// AmanError is the structured error type for amanrag.
// It carries a stable code plus the context needed to log it, decide on a
// fallback, and show it to a user.
type AmanError struct {
	// Code is the unique error code (e.g., "ERR_403_INVALID_QUERY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is derived from the code.
	Category Category

	// Severity is derived from the code.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Sentinels for errors.Is matching. Matching is by code, so any AmanError
// carrying the same code satisfies errors.Is against these.
var (
	ErrInvalidQuery   = &AmanError{Code: ErrCodeInvalidQuery}
	ErrQueryEmpty     = &AmanError{Code: ErrCodeQueryEmpty}
	ErrDenseRetrieval = &AmanError{Code: ErrCodeDenseRetrieval}
	ErrIndexNotBuilt  = &AmanError{Code: ErrCodeIndexNotBuilt}
	ErrEmptyCorpus    = &AmanError{Code: ErrCodeEmptyCorpus}
	ErrCircuitOpen    = &AmanError{Code: ErrCodeCircuitOpen}
	ErrUnknownBackend = &AmanError{Code: ErrCodeUnknownBackend}
)

// Error implements the error interface.
func (e *AmanError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("[%s]", e.Code)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AmanError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AmanError with the same code.
func (e *AmanError) Is(target error) bool {
	if t, ok := target.(*AmanError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *AmanError) WithDetail(key, value string) *AmanError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *AmanError) WithSuggestion(suggestion string) *AmanError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AmanError with the given code and message.
func New(code string, message string, cause error) *AmanError {
	return &AmanError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a new AmanError with a formatted message and no cause.
func Newf(code string, format string, args ...any) *AmanError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an AmanError from an existing error.
// The error's message becomes the AmanError message.
func Wrap(code string, err error) *AmanError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AmanError {
	return New(ErrCodeConfigInvalid, message, cause).
		WithSuggestion("check .amanrag.yaml and AMANRAG_* environment variables")
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *AmanError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InvalidQuery reports a request without any usable query text.
func InvalidQuery(message string) *AmanError {
	return New(ErrCodeInvalidQuery, message, nil).
		WithSuggestion("provide a non-empty query containing letters or CJK characters")
}

// DenseFailure wraps a failure of the dense retrieval boundary.
// Timeouts keep the retryable network code so callers can tell them apart.
func DenseFailure(backend string, cause error) *AmanError {
	var ae *AmanError
	if errors.As(cause, &ae) && ae.Code == ErrCodeCircuitOpen {
		return New(ErrCodeDenseRetrieval, "dense backend "+backend+" unavailable: circuit open", cause).
			WithDetail("backend", backend)
	}
	return New(ErrCodeDenseRetrieval, "dense backend "+backend+" failed", cause).
		WithDetail("backend", backend)
}

// DenseTimeout reports a dense call that exceeded its deadline.
func DenseTimeout(backend string, cause error) *AmanError {
	return New(ErrCodeNetworkTimeout, "dense backend "+backend+" timed out", cause).
		WithDetail("backend", backend)
}

// IndexNotBuilt reports a search against a retriever that has no snapshot.
func IndexNotBuilt(component string) *AmanError {
	return New(ErrCodeIndexNotBuilt, component+" index not built", nil).
		WithSuggestion("run 'amanrag index' or configure corpus.path")
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AmanError {
	return New(ErrCodeInternal, message, cause)
}

// IsDenseFailure reports whether err came from the dense boundary,
// including timeouts and an open circuit.
func IsDenseFailure(err error) bool {
	switch GetCode(err) {
	case ErrCodeDenseRetrieval, ErrCodeNetworkTimeout, ErrCodeCircuitOpen:
		return true
	}
	return false
}

// IsEmptyIndex reports whether err means "nothing to search". Callers treat
// it as an empty result rather than a failure.
func IsEmptyIndex(err error) bool {
	return errors.Is(err, ErrIndexNotBuilt) || errors.Is(err, ErrEmptyCorpus)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var ae *AmanError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// GetCode extracts the outermost AmanError code in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ae *AmanError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category of the outermost AmanError in the chain.
func GetCategory(err error) Category {
	var ae *AmanError
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ""
}

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var ae *AmanError
	if !errors.As(err, &ae) {
		ae = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", ae.Message)
	if ae.Cause != nil && ae.Cause.Error() != ae.Message {
		fmt.Fprintf(&sb, "  Cause: %s\n", ae.Cause.Error())
	}
	if ae.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", ae.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", ae.Code)
	return sb.String()
}

// LogAttrs flattens an error into key-value pairs for slog.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}
	var ae *AmanError
	if !errors.As(err, &ae) {
		return []any{"error", err.Error()}
	}
	attrs := []any{
		"error", ae.Error(),
		"error_code", ae.Code,
		"category", string(ae.Category),
		"retryable", ae.Retryable,
	}
	if ae.Cause != nil {
		attrs = append(attrs, "cause", ae.Cause.Error())
	}
	return attrs
}
