// Package crawler drives the reference resolution loop: it scans the
// store for unresolved tweet references, fetches them concurrently in
// chunks, merges the results and relinks conversations until the
// reachable graph reaches a fixed point.
package crawler

import (
	"errors"
	"fmt"
)

// Error codes for crawl cycle failures
const (
	// ErrCodeCredentialsMissing indicates no read credentials are configured
	ErrCodeCredentialsMissing = "CREDENTIALS_MISSING"
	// ErrCodeFetchFailed indicates a tweet lookup chunk failed after dispatch
	ErrCodeFetchFailed = "FETCH_FAILED"
	// ErrCodeStorageWriteFailed indicates a merge transaction did not commit
	ErrCodeStorageWriteFailed = "STORAGE_WRITE_FAILED"
	// ErrCodeDataIntegrity indicates stored rows contradict each other
	ErrCodeDataIntegrity = "DATA_INTEGRITY"
	// ErrCodeCycleAborted indicates the cycle stopped before draining
	ErrCodeCycleAborted = "CYCLE_ABORTED"
)

// CrawlError carries an error code alongside the underlying failure so
// callers can branch on the class of fault without string matching.
type CrawlError struct {
	Code    string // Error code identifying the type of error
	Message string // Human readable error message
	Err     error  // Underlying error if any
}

// Error implements the error interface for CrawlError.
func (e *CrawlError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *CrawlError) Unwrap() error {
	return e.Err
}

// NewCrawlError creates a new CrawlError with the given parameters.
func NewCrawlError(code string, message string, err error) *CrawlError {
	return &CrawlError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCrawlError checks if an error is a CrawlError matching the given code.
func IsCrawlError(err error, code string) bool {
	if err == nil {
		return false
	}
	var e *CrawlError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
