// Package errors defines the error model of the publish pipeline: a
// structured Error carrying the failed operation and its target, a Kind
// that decides how the pipeline reacts, string ErrorCodes for reports, and
// the classification of object store failures into transient and permanent.
package errors

// ErrorCode identifies an error condition in reports and logs.
// Codes are strings so they serialize naturally to JSON.
type ErrorCode string

const (
	// Configuration errors.

	// CodeInvalidConfig indicates the configuration or invocation is invalid.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// CodeInvalidInput indicates an argument was malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Permission errors.

	// CodeUnauthorized indicates the store rejected the credentials.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeForbidden indicates the credentials lack permission for the operation.
	CodeForbidden ErrorCode = "FORBIDDEN"

	// CodeNotFound indicates the bucket or a local file does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// Infrastructure errors.

	// CodeNetwork indicates a network operation failed.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates the store throttled the request.
	CodeRateLimit ErrorCode = "RATE_LIMIT_EXCEEDED"

	// CodeUnavailable indicates the store answered with a server error.
	CodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Pipeline errors.

	// CodeBuildFailed indicates the site generator failed.
	CodeBuildFailed ErrorCode = "BUILD_FAILED"

	// CodeListingFailed indicates the remote listing could not be completed.
	CodeListingFailed ErrorCode = "LISTING_FAILED"

	// CodePublishFailed indicates one or more uploads failed.
	CodePublishFailed ErrorCode = "PUBLISH_FAILED"

	// CodeCancelled indicates the run was cancelled from outside.
	CodeCancelled ErrorCode = "CANCELLED"

	// System errors.

	// CodeInternal indicates an internal error occurred.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeUnknown indicates an unclassified error.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Kind groups errors by the reaction they require from the pipeline.
type Kind int

const (
	// KindInternal is a programming or environment error outside the other kinds.
	KindInternal Kind = iota
	// KindConfig is an invalid invocation or configuration.
	KindConfig
	// KindBuild is a failure of the build stage.
	KindBuild
	// KindListing is a failure to enumerate or inspect remote objects.
	KindListing
	// KindTransient is a store failure worth retrying.
	KindTransient
	// KindPermanent is a store or local failure that retrying cannot fix.
	KindPermanent
	// KindCancelled is an external cancellation of the run.
	KindCancelled
)

var kindNames = map[Kind]string{
	KindInternal:  "internal",
	KindConfig:    "config",
	KindBuild:     "build",
	KindListing:   "listing",
	KindTransient: "transient",
	KindPermanent: "permanent",
	KindCancelled: "cancelled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Code returns the default ErrorCode reported for errors of this kind.
func (k Kind) Code() ErrorCode {
	switch k {
	case KindConfig:
		return CodeInvalidConfig
	case KindBuild:
		return CodeBuildFailed
	case KindListing:
		return CodeListingFailed
	case KindTransient, KindPermanent:
		return CodePublishFailed
	case KindCancelled:
		return CodeCancelled
	case KindInternal:
		return CodeInternal
	default:
		return CodeUnknown
	}
}

// Process exit codes.
const (
	ExitOK            = 0
	ExitInternal      = 1
	ExitConfig        = 2
	ExitBuild         = 3
	ExitListing       = 4
	ExitPartialUpload = 5
	ExitUploadFailed  = 6
	ExitCancelled     = 7
)
