package scanner

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubetraining/sitesync/errors"
	"github.com/kubetraining/sitesync/internal/sync/retry"
	"github.com/kubetraining/sitesync/internal/testutil"
	"github.com/kubetraining/sitesync/synctypes"
)

func TestScanRemote(t *testing.T) {
	bucket := testutil.NewFakeBucket("site")
	bucket.PageSize = 2
	bucket.Seed("dev/a.html", []byte("a"))
	bucket.Seed("dev/css/b.css", []byte("b"))
	bucket.Seed("dev/old-post.png", []byte("old"))
	bucket.Seed("prd/a.html", []byte("prod"))
	bucket.Seed("dev/", nil)

	s := NewScanner(bucket, memfs.New())
	target := synctypes.Target{Name: synctypes.Dev, Bucket: "site", Prefix: "/dev/"}

	objects, err := s.ScanRemote(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, objects, 3, "objects outside the prefix and directory markers are ignored")

	assert.Equal(t, "a.html", objects[0].Key)
	assert.Equal(t, "dev/a.html", objects[0].FullKey)
	assert.Equal(t, testutil.CalculateMD5([]byte("a")), objects[0].Hash)
	assert.Equal(t, int64(1), objects[0].Size)
	assert.Equal(t, "css/b.css", objects[1].Key)
	assert.Equal(t, "old-post.png", objects[2].Key)

	assert.Equal(t, 2, bucket.ListCount(), "listing is paged")
	assert.Zero(t, bucket.HeadCount(), "plain etags need no head call")
}

func TestScanRemoteOpaqueETags(t *testing.T) {
	body := []byte("large asset")
	bucket := testutil.NewFakeBucket("site")
	bucket.SeedObject("big.js", testutil.FakeObject{
		Body:     body,
		ETag:     testutil.MultipartETag(body, 3),
		Metadata: map[string]string{synctypes.MetadataContentMD5: testutil.CalculateMD5(body)},
	})
	bucket.SeedObject("legacy.bin", testutil.FakeObject{
		Body: []byte("unknown"),
		ETag: testutil.MultipartETag([]byte("unknown"), 2),
	})

	s := NewScanner(bucket, memfs.New(), WithConcurrency(2))
	objects, err := s.ScanRemote(context.Background(), synctypes.Target{Bucket: "site"})
	require.NoError(t, err)
	require.Len(t, objects, 2)

	assert.Equal(t, testutil.CalculateMD5(body), objects[0].Hash, "recorded content-md5 resolves the opaque etag")
	assert.True(t, objects[0].Verifiable())
	assert.Empty(t, objects[1].Hash)
	assert.False(t, objects[1].Verifiable())
	assert.Equal(t, 2, bucket.HeadCount())
}

func TestScanRemoteFailsClosed(t *testing.T) {
	t.Run("listing error", func(t *testing.T) {
		bucket := testutil.NewFakeBucket("site")
		bucket.Seed("a.html", []byte("a"))
		bucket.ListErr = &smithy.GenericAPIError{Code: "InternalError", Message: "boom"}

		objects, err := NewScanner(bucket, memfs.New(), WithRetryPolicy(fastRetry(2))).
			ScanRemote(context.Background(), synctypes.Target{Bucket: "site"})
		require.Error(t, err)
		assert.Nil(t, objects)
		assert.Equal(t, errors.KindListing, errors.KindOf(err))
		assert.Equal(t, 3, bucket.ListCount(), "retry budget is spent before failing")
	})

	t.Run("missing bucket", func(t *testing.T) {
		bucket := testutil.NewFakeBucket("site")
		_, err := NewScanner(bucket, memfs.New()).ScanRemote(context.Background(), synctypes.Target{Bucket: "other"})
		require.Error(t, err)
		assert.True(t, errors.IsBucketNotFound(err))
		assert.Equal(t, errors.KindListing, errors.KindOf(err))
	})

	t.Run("head error", func(t *testing.T) {
		bucket := testutil.NewFakeBucket("site")
		bucket.SeedObject("big.js", testutil.FakeObject{Body: []byte("x"), ETag: "abc-2"})
		bucket.HeadErr = &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}

		objects, err := NewScanner(bucket, memfs.New()).ScanRemote(context.Background(), synctypes.Target{Bucket: "site"})
		require.Error(t, err)
		assert.Nil(t, objects)
		assert.Equal(t, errors.KindListing, errors.KindOf(err))
		assert.True(t, errors.IsAccessDenied(err))
		assert.Equal(t, 1, bucket.HeadCount(), "access denied is not retried")
	})

	t.Run("error on a later page", func(t *testing.T) {
		calls := 0
		mock := &testutil.MockS3Client{
			ListObjectsV2Func: func(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
				calls++
				if calls == 1 {
					truncated := true
					token := "next"
					return &s3.ListObjectsV2Output{IsTruncated: &truncated, NextContinuationToken: &token}, nil
				}
				return nil, fmt.Errorf("connection reset by peer")
			},
		}

		objects, err := NewScanner(mock, memfs.New(), WithRetryPolicy(fastRetry(1))).
			ScanRemote(context.Background(), synctypes.Target{Bucket: "site"})
		require.Error(t, err)
		assert.Nil(t, objects)
		assert.Equal(t, errors.KindListing, errors.KindOf(err))
		assert.Equal(t, 3, mock.ListCalls(), "one good page, then the failing page and its retry")
	})
}

func fastRetry(retries int) retry.Policy {
	return retry.Policy{MaxRetries: retries, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

// flakyList serves listings from bucket after failing the first failures
// calls with fail.
func flakyList(bucket *testutil.FakeBucket, failures int, fail func(ctx context.Context) error) *testutil.MockS3Client {
	var calls atomic.Int64
	return &testutil.MockS3Client{
		ListObjectsV2Func: func(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
			if calls.Add(1) <= int64(failures) {
				return nil, fail(ctx)
			}
			return bucket.ListObjectsV2(ctx, in, opts...)
		},
		HeadObjectFunc: bucket.HeadObject,
	}
}

func TestScanRemoteRetriesTransientFailures(t *testing.T) {
	unavailable := func(context.Context) error {
		return &smithy.GenericAPIError{Code: "ServiceUnavailable", Message: "try again"}
	}
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	tests := []struct {
		name      string
		fail      func(ctx context.Context) error
		failures  int
		retries   int
		wantCalls int
		wantErr   bool
	}{
		{name: "service unavailable then success", fail: unavailable, failures: 2, retries: 3, wantCalls: 3},
		{name: "call timeout then success", fail: slow, failures: 1, retries: 3, wantCalls: 2},
		{name: "budget exhausted", fail: unavailable, failures: 10, retries: 2, wantCalls: 3, wantErr: true},
		{name: "budget exhausted by timeouts", fail: slow, failures: 10, retries: 1, wantCalls: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket := testutil.NewFakeBucket("site")
			bucket.Seed("dev/a.html", []byte("a"))
			bucket.Seed("dev/b.css", []byte("b"))
			client := flakyList(bucket, tt.failures, tt.fail)

			s := NewScanner(client, memfs.New(),
				WithRetryPolicy(fastRetry(tt.retries)),
				WithCallTimeout(20*time.Millisecond),
			)
			objects, err := s.ScanRemote(context.Background(), synctypes.Target{Name: synctypes.Dev, Bucket: "site", Prefix: "dev"})

			assert.Equal(t, tt.wantCalls, client.ListCalls())
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, objects)
				assert.Equal(t, errors.KindListing, errors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Len(t, objects, 2)
		})
	}
}

func TestScanRemoteRetriesHead(t *testing.T) {
	body := []byte("large asset")
	bucket := testutil.NewFakeBucket("site")
	bucket.SeedObject("big.js", testutil.FakeObject{
		Body:     body,
		ETag:     testutil.MultipartETag(body, 3),
		Metadata: map[string]string{synctypes.MetadataContentMD5: testutil.CalculateMD5(body)},
	})

	var heads atomic.Int64
	client := &testutil.MockS3Client{
		ListObjectsV2Func: bucket.ListObjectsV2,
		HeadObjectFunc: func(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			if heads.Add(1) == 1 {
				return nil, &smithy.GenericAPIError{Code: "SlowDown", Message: "reduce your request rate"}
			}
			return bucket.HeadObject(ctx, in, opts...)
		},
	}

	objects, err := NewScanner(client, memfs.New(), WithRetryPolicy(fastRetry(2))).
		ScanRemote(context.Background(), synctypes.Target{Bucket: "site"})
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, testutil.CalculateMD5(body), objects[0].Hash)
	assert.Equal(t, 2, client.HeadCalls())
}

func TestScanRemoteCallTimeout(t *testing.T) {
	mock := &testutil.MockS3Client{
		ListObjectsV2Func: func(ctx context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
			deadline, ok := ctx.Deadline()
			require.True(t, ok, "every list call carries a deadline")
			assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)
			return &s3.ListObjectsV2Output{}, nil
		},
	}

	s := NewScanner(mock, memfs.New(), WithCallTimeout(5*time.Second))
	objects, err := s.ScanRemote(context.Background(), synctypes.Target{Bucket: "site"})
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestScanRemoteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScanner(testutil.NewFakeBucket("site"), memfs.New()).ScanRemote(ctx, synctypes.Target{Bucket: "site"})
	require.Error(t, err)
	assert.Equal(t, errors.KindCancelled, errors.KindOf(err))
}
