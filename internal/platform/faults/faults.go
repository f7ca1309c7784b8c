package faults

import (
	"fmt"

	crerr "github.com/cockroachdb/errors"
)

// Type is the closed set of fault categories the core distinguishes.
type Type string

const (
	TypeConnectionError       Type = "CONNECTION_ERROR"
	TypeTransactionError      Type = "TRANSACTION_ERROR"
	TypeConstraintViolation   Type = "CONSTRAINT_VIOLATION"
	TypeDeadlock              Type = "DEADLOCK"
	TypeDatabaseError         Type = "DATABASE_ERROR"
	TypeValidationError       Type = "VALIDATION_ERROR"
	TypeInvalidInput          Type = "INVALID_INPUT"
	TypeBusinessRuleViolation Type = "BUSINESS_RULE_VIOLATION"
	TypeMemoryError           Type = "MEMORY_ERROR"
	TypeTimeoutError          Type = "TIMEOUT_ERROR"
	TypeResourceExhausted     Type = "RESOURCE_EXHAUSTED"
	TypeSystemError           Type = "SYSTEM_ERROR"
	TypeJobTimeout            Type = "JOB_TIMEOUT"
	TypeJobCancelled          Type = "JOB_CANCELLED"
	TypeQueueFull             Type = "QUEUE_FULL"
	TypeQueueError            Type = "QUEUE_ERROR"
	TypeServiceUnavailable    Type = "SERVICE_UNAVAILABLE"
	TypeNetworkError          Type = "NETWORK_ERROR"
	TypePermissionDenied      Type = "PERMISSION_DENIED"
	TypeFeatureDisabled       Type = "FEATURE_DISABLED"
	TypeConfigurationError    Type = "CONFIGURATION_ERROR"
	TypeCalculationError      Type = "CALCULATION_ERROR"
	TypeDataInconsistency     Type = "DATA_INCONSISTENCY"
	TypeUnknownError          Type = "UNKNOWN_ERROR"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Fault is a classified error with enough structure for the queue and the
// error handler to make retry/rollback/escalate decisions without string
// matching downstream.
type Fault struct {
	Type      Type
	Code      string
	Severity  Severity
	Retryable bool
	Message   string
	Context   map[string]any
	cause     error
}

func (f *Fault) Error() string {
	if f == nil {
		return "<nil fault>"
	}
	if f.Code != "" && f.Code != string(f.Type) {
		return fmt.Sprintf("%s/%s: %s", f.Type, f.Code, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Type, f.Message)
}

func (f *Fault) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.cause
}

// New builds a fault with severity and retryability derived from its type.
func New(t Type, message string) *Fault {
	return &Fault{
		Type:      t,
		Code:      string(t),
		Severity:  severityFor(t, message),
		Retryable: retryableFor(t, message),
		Message:   message,
	}
}

// Wrap builds a fault of an explicit type around an underlying error.
func Wrap(t Type, err error, message string) *Fault {
	if message == "" && err != nil {
		message = err.Error()
	}
	f := New(t, message)
	f.cause = err
	return f
}

// WithCode overrides the fault code, keeping type-derived severity and
// retryability intact.
func (f *Fault) WithCode(code string) *Fault {
	f.Code = code
	return f
}

func (f *Fault) WithContext(key string, value any) *Fault {
	if f.Context == nil {
		f.Context = make(map[string]any, 4)
	}
	f.Context[key] = value
	return f
}

// Is reports whether err carries a fault of the given type anywhere in its
// chain.
func Is(err error, t Type) bool {
	f := From(err)
	return f != nil && f.Type == t
}

// From extracts the fault from an error chain, or nil.
func From(err error) *Fault {
	var f *Fault
	if crerr.As(err, &f) {
		return f
	}
	return nil
}

// IsRetryable reports the retryability of an already-classified error and
// classifies unclassified ones on the fly.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Retryable
}
