package helpers

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"volume-observer/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type MarketObserverError struct {
	Message string
	Cause   error
}

func (e *MarketObserverError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *MarketObserverError) Unwrap() error {
	return e.Cause
}

// Distinct error types for errors.As checks
type InvalidInputError struct{ MarketObserverError }
type EmptyResultError struct{ MarketObserverError }
type ModelIncompleteError struct{ MarketObserverError }
type ConfigurationError struct{ MarketObserverError }
type DatabaseError struct{ MarketObserverError }
type ValidationError struct{ MarketObserverError }

// -----------------------------------------------------------------------------

func NewInvalidInputError(format string, args ...interface{}) error {
	return &InvalidInputError{MarketObserverError{Message: fmt.Sprintf(format, args...)}}
}

func NewEmptyResultError(format string, args ...interface{}) error {
	return &EmptyResultError{MarketObserverError{Message: fmt.Sprintf(format, args...)}}
}

func NewModelIncompleteError(format string, args ...interface{}) error {
	return &ModelIncompleteError{MarketObserverError{Message: fmt.Sprintf(format, args...)}}
}

func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{MarketObserverError{Message: fmt.Sprintf(format, args...)}}
}

func NewDatabaseError(operation string, cause error) error {
	return &DatabaseError{MarketObserverError{Message: fmt.Sprintf("%s failed", operation), Cause: cause}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff runs fn up to maxRetries times, doubling the delay between attempts.
func RetryWithBackoff(log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		if log != nil {
			log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, maxRetries, operation, err, delay)
		}
		time.Sleep(delay)
	}

	return lastErr
}

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

type ErrorHandler struct {
	Logger *logger.Logger
	count  atomic.Int64
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	if log == nil {
		log = logger.NewLogger(nil, "ErrorHandler")
	}
	return &ErrorHandler{Logger: log}
}

// -----------------------------------------------------------------------------

// Handle logs err with its category and returns the HTTP-ish status class it maps to.
func (e *ErrorHandler) Handle(err error, context string) int {
	if err == nil {
		return 200
	}
	e.count.Add(1)

	var (
		invalid    *InvalidInputError
		empty      *EmptyResultError
		validation *ValidationError
		config     *ConfigurationError
		incomplete *ModelIncompleteError
		database   *DatabaseError
	)
	switch {
	case errors.As(err, &invalid), errors.As(err, &empty), errors.As(err, &validation):
		e.Logger.Warning("Invalid input in %s: %v", context, err)
		return 400
	case errors.As(err, &config), errors.As(err, &incomplete):
		e.Logger.Warning("Rejected request in %s: %v", context, err)
		return 422
	case errors.As(err, &database):
		e.Logger.Error("Storage error in %s: %v", context, err)
		return 500
	default:
		e.Logger.Error("Error in %s: %v", context, err)
		return 500
	}
}

// ErrorCount is the number of errors handled so far.
func (e *ErrorHandler) ErrorCount() int {
	return int(e.count.Load())
}
