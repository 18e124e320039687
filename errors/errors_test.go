package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"testing"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusError(code int) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: code}},
		Err:      errors.New("http response error"),
	}
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"op only", New("build", KindBuild, cause), "build: boom"},
		{"bucket", NewBucketError("list", KindListing, "site", cause), "list bucket site: boom"},
		{"object", NewObjectError("put", KindPermanent, "site", "dev/a.html", cause), "put site/dev/a.html: boom"},
		{"key only", New("hash", KindBuild, cause).WithKey("a.html"), "hash a.html: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.ErrorIs(t, tt.err, cause)
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConfig, KindOf(New("load", KindConfig, ErrInvalidTarget)))
	assert.Equal(t, KindListing, KindOf(fmt.Errorf("wrapped: %w", New("list", KindListing, errors.New("x")))))
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", New("load", KindConfig, ErrInvalidTarget), ExitConfig},
		{"build", New("build", KindBuild, errors.New("hugo exited 255")), ExitBuild},
		{"listing", NewBucketError("list", KindListing, "b", errors.New("x")), ExitListing},
		{"partial", New("sync", KindPermanent, ErrPartialUpload), ExitPartialUpload},
		{"all failed", New("sync", KindPermanent, ErrUploadFailed), ExitUploadFailed},
		{"cancelled", New("sync", KindCancelled, ErrCancelled), ExitCancelled},
		{"bare cancel", context.Canceled, ExitCancelled},
		{"internal", errors.New("nil pointer"), ExitInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"cancelled", context.Canceled, KindCancelled},
		{"per-call deadline", fmt.Errorf("put: %w", context.DeadlineExceeded), KindTransient},
		{"slow down", apiError("SlowDown"), KindTransient},
		{"internal error", apiError("InternalError"), KindTransient},
		{"access denied", apiError("AccessDenied"), KindPermanent},
		{"bad key id", apiError("InvalidAccessKeyId"), KindPermanent},
		{"no such bucket", apiError("NoSuchBucket"), KindPermanent},
		{"503", statusError(http.StatusServiceUnavailable), KindTransient},
		{"500", statusError(http.StatusInternalServerError), KindTransient},
		{"429", statusError(http.StatusTooManyRequests), KindTransient},
		{"408", statusError(http.StatusRequestTimeout), KindTransient},
		{"403", statusError(http.StatusForbidden), KindPermanent},
		{"400", statusError(http.StatusBadRequest), KindPermanent},
		{"missing file", &fs.PathError{Op: "open", Path: "/site/a.html", Err: fs.ErrNotExist}, KindPermanent},
		{"connection reset", &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}, KindTransient},
		{"unknown", errors.New("something odd"), KindTransient},
		{"already classified", New("put", KindPermanent, errors.New("x")), KindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWrapStoreError(t *testing.T) {
	t.Run("access denied joins sentinel", func(t *testing.T) {
		err := WrapStoreError("put", KindPermanent, "site", "a.html", apiError("AccessDenied"))
		require.NotNil(t, err)
		assert.True(t, IsAccessDenied(err))
		assert.Equal(t, CodeForbidden, err.Code)
		assert.Equal(t, KindPermanent, KindOf(err))

		var apiErr smithy.APIError
		assert.True(t, errors.As(err, &apiErr))
	})

	t.Run("missing bucket", func(t *testing.T) {
		err := WrapStoreError("list", KindListing, "site", "", apiError("NoSuchBucket"))
		assert.True(t, IsBucketNotFound(err))
		assert.Equal(t, CodeNotFound, CodeOf(err))
	})

	t.Run("timeout", func(t *testing.T) {
		err := WrapStoreError("put", KindTransient, "site", "a.html", context.DeadlineExceeded)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, CodeTimeout, err.Code)
	})

	t.Run("throttled by status", func(t *testing.T) {
		err := WrapStoreError("put", KindTransient, "site", "a.html", statusError(http.StatusTooManyRequests))
		assert.ErrorIs(t, err, ErrTooManyRequests)
		assert.Equal(t, CodeRateLimit, err.Code)
	})
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "listing", KindListing.String())
	assert.Equal(t, "unknown", Kind(99).String())
	assert.Equal(t, CodeBuildFailed, KindBuild.Code())
}
