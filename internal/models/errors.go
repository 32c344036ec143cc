package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeNetwork       = "NETWORK_ERROR"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeServerError   = "SERVER_ERROR"
	ErrCodeStorage       = "STORAGE_ERROR"
	ErrCodeSerialization = "SERIALIZATION_ERROR"
	ErrCodeConfig        = "CONFIG_ERROR"
)

// Sentinel errors
var (
	ErrNotFound       = errors.New("not found")
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrInvalidRecord  = errors.New("invalid record")
	ErrInvalidName    = errors.New("invalid name")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrOffline        = errors.New("offline")
	ErrTooLarge       = errors.New("file too large")
)

// APIError represents an error body returned by the remote API.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// NetworkError is a transient remote failure: timeout, refused connection
// or a non-2xx response. It is always safe to retry later.
type NetworkError struct {
	Op         string
	URL        string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s %s: timed out", e.Op, e.URL)
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s %s: HTTP %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: HTTP %d", e.Op, e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Code returns the structured error code.
func (e *NetworkError) Code() string {
	switch {
	case e.Timeout:
		return ErrCodeTimeout
	case e.StatusCode >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeNetwork
	}
}

// StorageError reports a local storage capability problem (quota,
// permission, invalidated handle, missing node).
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// SerializationError marks malformed record or queue content.
type SerializationError struct {
	Source string
	Err    error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.Source, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// SaveError is returned when neither the remote nor the local write of a
// record succeeded.
type SaveError struct {
	RecordID string
	Remote   error
	Local    error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save %s: remote: %v; local: %v", e.RecordID, e.Remote, e.Local)
}

func (e *SaveError) Unwrap() []error {
	return []error{e.Remote, e.Local}
}

// IsTransient reports whether err is a retryable network failure.
func IsTransient(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsStorage reports whether err is a local storage failure.
func IsStorage(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}

// IsSerialization reports whether err is a malformed-content failure.
func IsSerialization(err error) bool {
	var serErr *SerializationError
	return errors.As(err, &serErr)
}
