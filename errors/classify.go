package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"

	"github.com/aws/smithy-go"
)

// Store error codes that indicate a temporary condition.
var transientCodes = map[string]bool{
	"SlowDown":                    true,
	"Throttling":                  true,
	"ThrottlingException":         true,
	"RequestLimitExceeded":        true,
	"TooManyRequests":             true,
	"TooManyRequestsException":    true,
	"RequestTimeout":              true,
	"RequestTimeoutException":     true,
	"InternalError":               true,
	"ServiceUnavailable":          true,
	"ServiceUnavailableException": true,
	"OperationAborted":            true,
}

// Store error codes that no retry can fix.
var permanentCodes = map[string]bool{
	"AccessDenied":          true,
	"AccessDeniedException": true,
	"AllAccessDisabled":     true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
	"InvalidToken":          true,
	"AccountProblem":        true,
	"NoSuchBucket":          true,
	"InvalidBucketName":     true,
	"InvalidArgument":       true,
	"InvalidDigest":         true,
	"BadDigest":             true,
	"EntityTooLarge":        true,
	"KeyTooLongError":       true,
	"MethodNotAllowed":      true,
	"PermanentRedirect":     true,
}

// httpStatus is implemented by the SDK's response errors.
type httpStatus interface {
	HTTPStatusCode() int
}

// Classify decides whether a failed store call is worth retrying.
//
// Context cancellation is KindCancelled. A per-call deadline, throttling,
// 408, 429, 5xx and network errors are KindTransient. Authentication,
// other 4xx answers and local file errors are KindPermanent. Anything
// unrecognised is treated as KindTransient so the bounded retry budget
// decides.
func Classify(err error) Kind {
	if err == nil {
		return KindInternal
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindTransient, KindPermanent, KindCancelled:
			return e.Kind
		}
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return KindPermanent
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if transientCodes[code] {
			return KindTransient
		}
		if permanentCodes[code] {
			return KindPermanent
		}
	}

	var status httpStatus
	if errors.As(err, &status) {
		code := status.HTTPStatusCode()
		switch {
		case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
			return KindTransient
		case code >= 500:
			return KindTransient
		case code >= 400:
			return KindPermanent
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	return KindTransient
}

// StoreCode reports the ErrorCode matching a failed store call.
func StoreCode(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) {
		return CodeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		if errors.Is(err, fs.ErrNotExist) {
			return CodeNotFound
		}
		return CodeInternal
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
			return CodeUnauthorized
		case "AccessDenied", "AccessDeniedException", "AllAccessDisabled", "AccountProblem":
			return CodeForbidden
		case "NoSuchBucket":
			return CodeNotFound
		case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded",
			"TooManyRequests", "TooManyRequestsException":
			return CodeRateLimit
		case "RequestTimeout", "RequestTimeoutException":
			return CodeTimeout
		case "InternalError", "ServiceUnavailable", "ServiceUnavailableException":
			return CodeUnavailable
		}
	}

	var status httpStatus
	if errors.As(err, &status) {
		code := status.HTTPStatusCode()
		switch {
		case code == http.StatusUnauthorized:
			return CodeUnauthorized
		case code == http.StatusForbidden:
			return CodeForbidden
		case code == http.StatusNotFound:
			return CodeNotFound
		case code == http.StatusTooManyRequests:
			return CodeRateLimit
		case code == http.StatusRequestTimeout:
			return CodeTimeout
		case code >= 500:
			return CodeUnavailable
		case code >= 400:
			return CodeInvalidInput
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CodeTimeout
		}
		return CodeNetwork
	}

	return CodeUnknown
}

// sentinelFor maps a store error code to one of the package sentinels.
func sentinelFor(code ErrorCode) error {
	switch code {
	case CodeUnauthorized, CodeForbidden:
		return ErrAccessDenied
	case CodeRateLimit:
		return ErrTooManyRequests
	case CodeTimeout:
		return ErrTimeout
	default:
		return nil
	}
}

// WrapStoreError builds an Error for a failed store call. The kind is
// chosen by the caller, the code comes from StoreCode, and a matching
// sentinel is joined into the chain so errors.Is works on the result.
func WrapStoreError(op string, kind Kind, bucket, key string, err error) *Error {
	code := StoreCode(err)

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket" {
		err = fmt.Errorf("%w: %w", ErrBucketNotFound, err)
	} else if s := sentinelFor(code); s != nil {
		err = fmt.Errorf("%w: %w", s, err)
	}

	return &Error{Op: op, Kind: kind, Code: code, Bucket: bucket, Key: key, Err: err}
}
