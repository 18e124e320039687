package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error describes a failed pipeline operation with the bucket and key it
// concerned, when there is one.
type Error struct {
	// Op is the operation that failed (e.g. "build", "list", "put")
	Op string

	// Kind decides how the pipeline reacts to the failure
	Kind Kind

	// Code is reported in the JSON report; it defaults to Kind.Code()
	Code ErrorCode

	// Bucket is the target bucket (if applicable)
	Bucket string

	// Key is the object key (if applicable)
	Key string

	// Err is the underlying error
	Err error
}

func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithCode overrides the error code.
func (e *Error) WithCode(code ErrorCode) *Error {
	e.Code = code
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// New creates an Error of the given kind.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Code: kind.Code(), Err: err}
}

// NewBucketError creates an Error with bucket context.
func NewBucketError(op string, kind Kind, bucket string, err error) *Error {
	return &Error{Op: op, Kind: kind, Code: kind.Code(), Bucket: bucket, Err: err}
}

// NewObjectError creates an Error with bucket and key context.
func NewObjectError(op string, kind Kind, bucket, key string, err error) *Error {
	return &Error{Op: op, Kind: kind, Code: kind.Code(), Bucket: bucket, Key: key, Err: err}
}

// Sentinel errors, usable with errors.Is.
var (
	// ErrInvalidTarget indicates the environment target is unknown or incomplete
	ErrInvalidTarget = errors.New("invalid environment target")

	// ErrMissingCredentials indicates no access key or secret key was supplied
	ErrMissingCredentials = errors.New("missing store credentials")

	// ErrEmptyOutput indicates the build produced no files
	ErrEmptyOutput = errors.New("build output is empty")

	// ErrBucketNotFound indicates that the target bucket does not exist
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrAccessDenied indicates that the store refused the credentials or the operation
	ErrAccessDenied = errors.New("access denied")

	// ErrTooManyRequests indicates that the store throttled the request
	ErrTooManyRequests = errors.New("too many requests")

	// ErrTimeout indicates that a single store call exceeded its timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrPartialUpload indicates that some uploads failed and others succeeded
	ErrPartialUpload = errors.New("some uploads failed")

	// ErrUploadFailed indicates that every attempted upload failed
	ErrUploadFailed = errors.New("all uploads failed")

	// ErrCancelled indicates the run was cancelled before all uploads were attempted
	ErrCancelled = errors.New("run cancelled")
)

// KindOf reports the Kind of err. Cancellation of a context counts as
// KindCancelled even when it was not wrapped in an Error; anything else
// that is not an Error is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// CodeOf reports the ErrorCode of err.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return KindOf(err).Code()
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch {
	case errors.Is(err, ErrUploadFailed):
		return ExitUploadFailed
	case errors.Is(err, ErrPartialUpload):
		return ExitPartialUpload
	}
	switch KindOf(err) {
	case KindConfig:
		return ExitConfig
	case KindBuild:
		return ExitBuild
	case KindListing:
		return ExitListing
	case KindTransient, KindPermanent:
		return ExitPartialUpload
	case KindCancelled:
		return ExitCancelled
	default:
		return ExitInternal
	}
}

// IsAccessDenied checks if an error indicates access was denied.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsBucketNotFound checks if an error indicates that the bucket was not found.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}
