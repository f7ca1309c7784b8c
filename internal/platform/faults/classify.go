package faults

import (
	"context"
	"errors"
	"strings"
)

// Classify maps any raw error to a Fault. Classification is deterministic:
// the same raw error always yields the same fault. Errors that already carry
// a Fault pass through unchanged.
func Classify(err error) *Fault {
	if err == nil {
		return nil
	}
	if f := From(err); f != nil {
		return f
	}

	message := err.Error()
	t := typeFromMessage(err, message)

	f := &Fault{
		Type:      t,
		Code:      string(t),
		Severity:  severityFor(t, message),
		Retryable: retryableFor(t, message),
		Message:   message,
		cause:     err,
	}
	return f
}

func typeFromMessage(err error, message string) Type {
	switch {
	case isContextTimeout(err):
		return TypeTimeoutError
	case isContextCancel(err):
		return TypeJobCancelled
	}

	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "deadlock"):
		return TypeDeadlock
	case containsAny(lower, "constraint", "duplicate key", "unique violation", "foreign key"):
		return TypeConstraintViolation
	case containsAny(lower, "transaction", "tx aborted", "rollback"):
		return TypeTransactionError
	case containsAny(lower, "connection refused", "connection reset", "connection_error", "connection error", "broken pipe", "no such host"):
		return TypeConnectionError
	case containsAny(lower, "database", "sql:", "pq:"):
		return TypeDatabaseError
	case containsAny(lower, "queue is full", "queue full"):
		return TypeQueueFull
	case containsAny(lower, "queue"):
		return TypeQueueError
	case containsAny(lower, "job timeout", "job timed out"):
		return TypeJobTimeout
	case containsAny(lower, "timeout", "timed out", "deadline exceeded"):
		return TypeTimeoutError
	case containsAny(lower, "cancelled", "canceled"):
		return TypeJobCancelled
	case containsAny(lower, "out of memory", "memory"):
		return TypeMemoryError
	case containsAny(lower, "too many", "exhausted", "resource limit"):
		return TypeResourceExhausted
	case containsAny(lower, "service unavailable", "unavailable"):
		return TypeServiceUnavailable
	case containsAny(lower, "network", "dns", "dial tcp"):
		return TypeNetworkError
	case containsAny(lower, "unauthorized", "forbidden", "permission"):
		return TypePermissionDenied
	case containsAny(lower, "feature disabled", "feature is disabled"):
		return TypeFeatureDisabled
	case containsAny(lower, "configuration", "config invalid", "missing config"):
		return TypeConfigurationError
	case containsAny(lower, "data inconsistency", "inconsistent"):
		return TypeDataInconsistency
	case containsAny(lower, "calculation"):
		return TypeCalculationError
	case containsAny(lower, "business rule"):
		return TypeBusinessRuleViolation
	case containsAny(lower, "validation", "validation_error"):
		return TypeValidationError
	case containsAny(lower, "invalid", "malformed", "must be", "is required"):
		return TypeInvalidInput
	case containsAny(lower, "panic", "runtime error", "system"):
		return TypeSystemError
	default:
		return TypeUnknownError
	}
}

func severityFor(t Type, message string) Severity {
	lower := strings.ToLower(message)
	if containsAny(lower, "critical", "fatal") {
		return SeverityCritical
	}

	var severity Severity
	switch t {
	case TypeSystemError, TypeMemoryError, TypeDatabaseError, TypeDataInconsistency:
		severity = SeverityCritical
	case TypeTransactionError, TypeConstraintViolation, TypeCalculationError, TypeQueueError:
		severity = SeverityHigh
	default:
		severity = SeverityMedium
	}

	if severity != SeverityCritical && containsAny(lower, "warning") {
		return SeverityLow
	}
	return severity
}

func retryableFor(t Type, message string) bool {
	lower := strings.ToLower(message)
	if containsAny(lower, "invalid", "malformed", "unauthorized", "forbidden") {
		return false
	}

	switch t {
	case TypeValidationError, TypeInvalidInput, TypeBusinessRuleViolation,
		TypeConstraintViolation, TypePermissionDenied, TypeConfigurationError,
		TypeFeatureDisabled, TypeDataInconsistency:
		return false
	case TypeTimeoutError, TypeJobTimeout, TypeNetworkError, TypeConnectionError,
		TypeDeadlock, TypeQueueError, TypeQueueFull, TypeServiceUnavailable,
		TypeResourceExhausted, TypeTransactionError:
		return true
	default:
		return false
	}
}

func isContextTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func isContextCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
