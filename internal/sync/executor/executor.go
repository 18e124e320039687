// Package executor uploads the entries of a manifest to the target bucket.
//
// Uploads run on a bounded worker pool. Each entry is retried on its own
// when it fails transiently, and a failure never stops its siblings: the
// outcome of every key is collected into a SyncResult once all workers are
// done.
package executor

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-git/go-billy/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kubetraining/sitesync/errors"
	"github.com/kubetraining/sitesync/internal/s3api"
	"github.com/kubetraining/sitesync/synctypes"
)

// Defaults used when no option overrides them.
const (
	DefaultConcurrency = 8
	DefaultCallTimeout = 60 * time.Second
)

// Executor uploads manifest entries.
type Executor struct {
	client      s3api.Uploader
	filesystem  billy.Filesystem
	concurrency int
	callTimeout time.Duration
	retry       RetryPolicy
	metadata    map[string]string
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithConcurrency sets the number of upload workers.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithCallTimeout bounds every PUT attempt.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Executor) {
		e.retry = p
	}
}

// WithMetadata adds user metadata to every uploaded object.
func WithMetadata(meta map[string]string) Option {
	return func(e *Executor) {
		for k, v := range meta {
			if v != "" {
				e.metadata[k] = v
			}
		}
	}
}

// WithRateLimit caps PUT attempts at perSecond across all workers. Zero
// or less means no limit.
func WithRateLimit(perSecond float64) Option {
	return func(e *Executor) {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an executor uploading through client and reading asset
// content from filesystem.
func New(client s3api.Uploader, filesystem billy.Filesystem, opts ...Option) *Executor {
	e := &Executor{
		client:      client,
		filesystem:  filesystem,
		concurrency: DefaultConcurrency,
		callTimeout: DefaultCallTimeout,
		retry:       DefaultRetryPolicy(),
		metadata:    make(map[string]string),
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute uploads every manifest entry to target and reports the outcome
// of each key.
//
// When ctx is cancelled no further entry is dispatched and no further
// retry is started; the entries left are reported as not attempted. A PUT
// already in flight runs to completion or to its own timeout.
func (e *Executor) Execute(ctx context.Context, manifest synctypes.Manifest, target synctypes.Target) *synctypes.SyncResult {
	start := time.Now()
	c := newCollector()

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i, entry := range manifest.Entries {
		if ctx.Err() != nil {
			for _, rest := range manifest.Entries[i:] {
				c.notAttempted(rest.Asset.Key)
			}
			break
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				c.notAttempted(entry.Asset.Key)
				return nil
			}
			e.upload(ctx, entry, target, c)
			return nil
		})
	}
	_ = g.Wait()

	result := c.result()
	result.Duration = time.Since(start)

	if len(result.NotAttempted) > 0 {
		e.logger.WarnContext(ctx, "uploads not attempted",
			"env", string(target.Name), "count", len(result.NotAttempted))
	}
	return result
}

// upload puts one entry, retrying transient failures.
func (e *Executor) upload(ctx context.Context, entry synctypes.ManifestEntry, target synctypes.Target, c *collector) {
	key := target.ObjectKey(entry.Asset.Key)
	attempts := 0
	var lastErr error
	dispatched := true

	operation := func() error {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				if attempts == 0 {
					dispatched = false
				}
				return backoff.Permanent(err)
			}
		}
		attempts++
		err := e.putOnce(ctx, entry.Asset, key, target)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Classify(err) != errors.KindTransient {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		e.logger.WarnContext(ctx, "upload attempt failed, retrying",
			"key", key, "attempt", attempts, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(operation, e.retry.NewBackOff(ctx), notify)
	if !dispatched {
		c.notAttempted(entry.Asset.Key)
		return
	}
	if err == nil {
		c.succeeded(entry.Asset.Key, entry.Asset.Size)
		e.logger.InfoContext(ctx, "uploaded",
			"key", key, "bytes", entry.Asset.Size, "reason", string(entry.Reason), "attempts", attempts)
		return
	}

	if lastErr == nil {
		lastErr = err
	}
	kind := errors.Classify(lastErr)
	wrapped := errors.WrapStoreError("put", kind, target.Bucket, key, lastErr)

	failure := synctypes.KeyFailure{
		Key:       entry.Asset.Key,
		Reason:    wrapped.Error(),
		Code:      string(wrapped.Code),
		Attempts:  attempts,
		Transient: kind == errors.KindTransient,
	}
	if failure.Transient && ctx.Err() != nil && attempts < e.retry.MaxAttempts() {
		failure.Reason += " (retries stopped: run cancelled)"
	}
	c.failed(failure)

	e.logger.ErrorContext(ctx, "upload failed",
		"key", key, "attempts", attempts, "transient", failure.Transient, "error", failure.Reason)
}

// putOnce makes a single PUT attempt. The call is detached from ctx
// cancellation and bounded by the per-call timeout instead.
func (e *Executor) putOnce(ctx context.Context, asset synctypes.Asset, key string, target synctypes.Target) error {
	f, err := e.filesystem.Open(asset.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(target.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(asset.Size),
		Metadata:      e.objectMetadata(asset),
	}
	if asset.ContentType != "" {
		input.ContentType = aws.String(asset.ContentType)
	}
	if target.CacheControl != "" {
		input.CacheControl = aws.String(target.CacheControl)
	}
	if sum, err := hex.DecodeString(asset.Hash); err == nil && len(sum) > 0 {
		input.ContentMD5 = aws.String(base64.StdEncoding.EncodeToString(sum))
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.callTimeout)
	defer cancel()

	_, err = e.client.PutObject(callCtx, input)
	return err
}

func (e *Executor) objectMetadata(asset synctypes.Asset) map[string]string {
	meta := make(map[string]string, len(e.metadata)+1)
	for k, v := range e.metadata {
		meta[k] = v
	}
	if asset.Hash != "" {
		meta[synctypes.MetadataContentMD5] = asset.Hash
	}
	return meta
}

// collector gathers per-key outcomes from the workers.
type collector struct {
	mu  sync.Mutex
	res synctypes.SyncResult
}

func newCollector() *collector {
	return &collector{res: synctypes.SyncResult{
		Succeeded:    []string{},
		Failed:       []synctypes.KeyFailure{},
		NotAttempted: []string{},
	}}
}

func (c *collector) succeeded(key string, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res.Succeeded = append(c.res.Succeeded, key)
	c.res.BytesUploaded += size
}

func (c *collector) failed(f synctypes.KeyFailure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res.Failed = append(c.res.Failed, f)
}

func (c *collector) notAttempted(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res.NotAttempted = append(c.res.NotAttempted, key)
}

func (c *collector) result() *synctypes.SyncResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := c.res
	sort.Strings(res.Succeeded)
	sort.Strings(res.NotAttempted)
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].Key < res.Failed[j].Key })
	return &res
}
