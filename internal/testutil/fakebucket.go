package testutil

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kubetraining/sitesync/internal/s3api"
)

// FakeObject is an object stored in a FakeBucket.
type FakeObject struct {
	Body         []byte
	ETag         string
	Metadata     map[string]string
	ContentType  string
	CacheControl string
	LastModified time.Time
}

// FakeBucket is an in-memory bucket implementing S3API. It stores what is
// put, pages listings and lets tests inject failures per key.
type FakeBucket struct {
	Name string

	// PageSize bounds the number of keys per listing page (default 1000)
	PageSize int

	// PutHook runs before a put is stored; a non-nil error fails the call.
	// attempt counts the puts for the key, starting at 1.
	PutHook func(ctx context.Context, key string, attempt int) error

	// ListErr fails every listing call
	ListErr error

	// HeadErr fails every head call
	HeadErr error

	mu       sync.Mutex
	objects  map[string]FakeObject
	putCalls map[string]int
	putOrder []string
	heads    int
	lists    int
}

// NewFakeBucket creates an empty bucket.
func NewFakeBucket(name string) *FakeBucket {
	return &FakeBucket{
		Name:     name,
		objects:  make(map[string]FakeObject),
		putCalls: make(map[string]int),
	}
}

// Seed stores an object as if it had been uploaded with a plain MD5 ETag.
func (b *FakeBucket) Seed(key string, body []byte) {
	b.SeedObject(key, FakeObject{Body: body, ETag: CalculateMD5(body)})
}

// SeedObject stores an object verbatim.
func (b *FakeBucket) SeedObject(key string, obj FakeObject) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if obj.LastModified.IsZero() {
		obj.LastModified = time.Now()
	}
	b.objects[key] = obj
}

// Object returns the object stored at key.
func (b *FakeBucket) Object(key string) (FakeObject, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[key]
	return obj, ok
}

// Keys returns every key in the bucket, sorted.
func (b *FakeBucket) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PutCount returns the number of put calls made for key.
func (b *FakeBucket) PutCount(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.putCalls[key]
}

// TotalPuts returns the number of put calls made.
func (b *FakeBucket) TotalPuts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.putOrder)
}

// HeadCount returns the number of head calls made.
func (b *FakeBucket) HeadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.heads
}

// ListCount returns the number of listing calls made.
func (b *FakeBucket) ListCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lists
}

func (b *FakeBucket) checkBucket(bucket *string) error {
	if aws.ToString(bucket) != b.Name {
		return &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "The specified bucket does not exist"}
	}
	return nil
}

// ListObjectsV2 lists keys under the prefix in lexical order.
func (b *FakeBucket) ListObjectsV2(
	ctx context.Context,
	params *s3.ListObjectsV2Input,
	_ ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	b.mu.Lock()
	b.lists++
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.ListErr != nil {
		return nil, b.ListErr
	}
	if err := b.checkBucket(params.Bucket); err != nil {
		return nil, err
	}

	prefix := aws.ToString(params.Prefix)
	after := aws.ToString(params.ContinuationToken)
	limit := b.PageSize
	if limit <= 0 {
		limit = 1000
	}
	if params.MaxKeys != nil && int(*params.MaxKeys) < limit {
		limit = int(*params.MaxKeys)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) && k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{Name: params.Bucket, Prefix: params.Prefix}
	truncated := len(keys) > limit
	if truncated {
		keys = keys[:limit]
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	out.IsTruncated = aws.Bool(truncated)
	out.KeyCount = aws.Int32(int32(len(keys)))

	for _, k := range keys {
		obj := b.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			ETag:         aws.String(`"` + obj.ETag + `"`),
			Size:         aws.Int64(int64(len(obj.Body))),
			LastModified: aws.Time(obj.LastModified),
		})
	}
	return out, nil
}

// HeadObject returns the stored object's metadata.
func (b *FakeBucket) HeadObject(
	ctx context.Context,
	params *s3.HeadObjectInput,
	_ ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	b.mu.Lock()
	b.heads++
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.HeadErr != nil {
		return nil, b.HeadErr
	}
	if err := b.checkBucket(params.Bucket); err != nil {
		return nil, err
	}

	obj, ok := b.Object(aws.ToString(params.Key))
	if !ok {
		return nil, &types.NotFound{Message: aws.String("Not Found")}
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.Body))),
		ETag:          aws.String(`"` + obj.ETag + `"`),
		ContentType:   aws.String(obj.ContentType),
		LastModified:  aws.Time(obj.LastModified),
		Metadata:      obj.Metadata,
	}, nil
}

// PutObject stores the object after running PutHook. A Content-MD5 header
// that does not match the body is rejected with BadDigest.
func (b *FakeBucket) PutObject(
	ctx context.Context,
	params *s3.PutObjectInput,
	_ ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	key := aws.ToString(params.Key)

	b.mu.Lock()
	b.putCalls[key]++
	attempt := b.putCalls[key]
	b.putOrder = append(b.putOrder, key)
	b.mu.Unlock()

	if b.PutHook != nil {
		if err := b.PutHook(ctx, key, attempt); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.checkBucket(params.Bucket); err != nil {
		return nil, err
	}

	var body []byte
	if params.Body != nil {
		var err error
		if body, err = io.ReadAll(params.Body); err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
	}

	sum := md5.Sum(body)
	if want := aws.ToString(params.ContentMD5); want != "" && want != base64.StdEncoding.EncodeToString(sum[:]) {
		return nil, &smithy.GenericAPIError{Code: "BadDigest", Message: "The Content-MD5 you specified did not match what was received."}
	}

	etag := hex.EncodeToString(sum[:])
	meta := make(map[string]string, len(params.Metadata))
	for k, v := range params.Metadata {
		meta[strings.ToLower(k)] = v
	}

	b.SeedObject(key, FakeObject{
		Body:         bytes.Clone(body),
		ETag:         etag,
		Metadata:     meta,
		ContentType:  aws.ToString(params.ContentType),
		CacheControl: aws.ToString(params.CacheControl),
		LastModified: time.Now(),
	})

	return &s3.PutObjectOutput{ETag: aws.String(`"` + etag + `"`)}, nil
}

var _ s3api.S3API = (*FakeBucket)(nil)
