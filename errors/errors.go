// Package errors provides standardized error handling for the routing and
// dispatch engine. It classifies failures into the three categories the
// dispatch pipeline cares about: transient (retry the delivery), invalid
// (local to one item or manifest entry, never retried), and fatal
// (the send action itself fails).
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes.
type ErrorClass int

const (
	// ErrorTransient represents temporary delivery errors that may be retried
	// (printer offline, network blip, broker reconnecting).
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors local to one item or manifest entry
	// (malformed style descriptor, unroutable input). Never retried.
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that fail the whole send
	// action (no transport reachable at all, broken configuration).
	ErrorFatal
)

// String returns the string representation of ErrorClass.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions.
var (
	// Lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrAlreadyStopped = errors.New("component already stopped")
	ErrShuttingDown   = errors.New("component is shutting down")

	// Routing errors
	ErrEmptySnapshot   = errors.New("order snapshot has no items")
	ErrUnknownTag      = errors.New("route tag not present in tag registry")
	ErrStationNotFound = errors.New("station not found in registry")
	ErrNoActiveStation = errors.New("no active stations configured")

	// Ticket construction errors
	ErrBadStyle          = errors.New("malformed style descriptor")
	ErrUnsupportedOpcode = errors.New("unsupported printer control code")
	ErrEmptyTicket       = errors.New("ticket has no printable content")

	// Delivery errors
	ErrPrinterOffline    = errors.New("printer unreachable")
	ErrDeliveryTimeout   = errors.New("delivery timed out")
	ErrAckRejected       = errors.New("destination rejected payload")
	ErrChannelFull       = errors.New("station channel at capacity")
	ErrNoTransport       = errors.New("no delivery transport available")
	ErrJobCancelled      = errors.New("print job cancelled")
	ErrRetriesExhausted  = errors.New("delivery retries exhausted")
	ErrSubscriberClosed  = errors.New("subscriber connection closed")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification and the component
// and operation it came from.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and the delivery should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrPrinterOffline) ||
		errors.Is(err, ErrDeliveryTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrChannelFull) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Unclassified network-ish errors are treated as retryable.
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection",
		"network",
		"temporary",
		"unavailable",
		"busy",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error should fail the whole send action.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrNoTransport) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig)
}

// IsInvalid checks if an error is local to one item or manifest entry.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrBadStyle) ||
		errors.Is(err, ErrUnsupportedOpcode) ||
		errors.Is(err, ErrEmptyTicket) ||
		errors.Is(err, ErrUnknownTag)
}

// Classify returns the error class for an error. Unknown errors default to
// transient so the dispatch retry budget decides their fate.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	return ErrorTransient
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context.
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorTransient, err, component, method,
		fmt.Sprintf("%s.%s: %s: %v", component, method, action, err))
}

// WrapInvalid wraps an error as invalid with context.
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorInvalid, err, component, method,
		fmt.Sprintf("%s.%s: %s: %v", component, method, action, err))
}

// WrapFatal wraps an error as fatal with context.
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorFatal, err, component, method,
		fmt.Sprintf("%s.%s: %s: %v", component, method, action, err))
}
