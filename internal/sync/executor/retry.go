package executor

import "github.com/kubetraining/sitesync/internal/sync/retry"

// RetryPolicy bounds the retries of a transient upload failure.
type RetryPolicy = retry.Policy

// DefaultRetryPolicy returns 3 retries starting at 500ms, doubling up to 10s.
func DefaultRetryPolicy() RetryPolicy {
	return retry.Default()
}
