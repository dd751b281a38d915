package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents transient network failures and 5xx responses
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit represents 429 responses and soft-block pages
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeNotFound represents non-429 4xx responses
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeParseAmbiguity represents a page where no container selector matched
	ErrorTypeParseAmbiguity ErrorType = "parse_ambiguity"
	// ErrorTypeMalformedRecord represents a single listing node that could not be extracted
	ErrorTypeMalformedRecord ErrorType = "malformed_record"
	// ErrorTypeQueryExhausted represents a query abandoned after a page-level terminal failure
	ErrorTypeQueryExhausted ErrorType = "query_exhausted"
	// ErrorTypeCancelled represents a query aborted by its context
	ErrorTypeCancelled ErrorType = "cancelled"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeStore represents series store errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// ScrapeError represents a typed error raised somewhere in the collection pipeline
type ScrapeError struct {
	Type    ErrorType
	Source  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Source, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *ScrapeError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// New creates a new ScrapeError
func New(errType ErrorType, source, message string, err error) *ScrapeError {
	return &ScrapeError{
		Type:    errType,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(source, message string, err error) *ScrapeError {
	return New(ErrorTypeNetwork, source, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(source, message string) *ScrapeError {
	return New(ErrorTypeRateLimit, source, message, nil)
}

// NewNotFound creates a new not found error
func NewNotFound(source string, statusCode int) *ScrapeError {
	return New(ErrorTypeNotFound, source, fmt.Sprintf("unexpected status code: %d", statusCode), nil)
}

// NewParseAmbiguity creates a new parse ambiguity error
func NewParseAmbiguity(source string, candidates []string) *ScrapeError {
	return New(ErrorTypeParseAmbiguity, source, fmt.Sprintf("no container matched %v", candidates), nil)
}

// NewMalformedRecord creates a new malformed record error
func NewMalformedRecord(source, reason string) *ScrapeError {
	return New(ErrorTypeMalformedRecord, source, reason, nil)
}

// NewQueryExhausted creates a new query exhausted error
func NewQueryExhausted(source string, page int, err error) *ScrapeError {
	return New(ErrorTypeQueryExhausted, source, fmt.Sprintf("gave up at page %d", page), err)
}

// NewCancelled creates a new cancellation error
func NewCancelled(source string, err error) *ScrapeError {
	return New(ErrorTypeCancelled, source, "query cancelled", err)
}

// NewCache creates a new cache error
func NewCache(source, message string, err error) *ScrapeError {
	return New(ErrorTypeCache, source, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(source, message string, err error) *ScrapeError {
	return New(ErrorTypePublisher, source, message, err)
}

// NewStore creates a new store error
func NewStore(source, message string, err error) *ScrapeError {
	return New(ErrorTypeStore, source, message, err)
}

// NewValidation creates a new validation error
func NewValidation(source, message string) *ScrapeError {
	return New(ErrorTypeValidation, source, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *ScrapeError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// IsType reports whether any ScrapeError in err's chain has the given type
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var se *ScrapeError
		if !stderrors.As(err, &se) {
			return false
		}
		if se.Type == errType {
			return true
		}
		err = se.Err
	}
	return false
}

// TypeOf returns the type of the outermost ScrapeError in err's chain
func TypeOf(err error) ErrorType {
	var se *ScrapeError
	if stderrors.As(err, &se) {
		return se.Type
	}
	return ""
}
