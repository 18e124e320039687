package scanner

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/kubetraining/sitesync/errors"
	"github.com/kubetraining/sitesync/synctypes"
)

// ScanRemote lists every object under the target prefix and resolves its
// content hash. Transient failures of a call are retried under the retry
// policy; a call that still fails aborts the scan and a partial listing is
// never returned.
func (s *Scanner) ScanRemote(ctx context.Context, target synctypes.Target) ([]synctypes.RemoteObject, error) {
	objects, err := s.listObjects(ctx, target)
	if err != nil {
		return nil, err
	}

	if err := s.resolveHashes(ctx, target, objects); err != nil {
		return nil, err
	}

	return objects, nil
}

func (s *Scanner) listObjects(ctx context.Context, target synctypes.Target) ([]synctypes.RemoteObject, error) {
	var objects []synctypes.RemoteObject
	var continuationToken *string
	prefix := target.ListPrefix()
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewBucketError("list", errors.KindCancelled, target.Bucket, err)
		}

		input := &s3.ListObjectsV2Input{
			Bucket:            aws.String(target.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
			MaxKeys:           aws.Int32(1000),
		}

		result, err := s.listPage(ctx, target, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.NewBucketError("list", errors.KindCancelled, target.Bucket, ctx.Err())
			}
			return nil, errors.WrapStoreError("list", errors.KindListing, target.Bucket, prefix, err)
		}
		pages++

		for _, obj := range result.Contents {
			fullKey := aws.ToString(obj.Key)
			key, ok := target.RelativeKey(fullKey)
			if !ok || key == "" || strings.HasSuffix(key, "/") {
				continue
			}

			etag := strings.ToLower(strings.Trim(aws.ToString(obj.ETag), `"`))
			remote := synctypes.RemoteObject{
				Key:          key,
				FullKey:      fullKey,
				ETag:         etag,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			}
			if !synctypes.IsOpaqueETag(etag) {
				remote.Hash = etag
			}
			objects = append(objects, remote)
		}

		if !aws.ToBool(result.IsTruncated) {
			break
		}
		continuationToken = result.NextContinuationToken
	}

	s.logger.DebugContext(ctx, "remote listing complete",
		"bucket", target.Bucket, "prefix", prefix, "objects", len(objects), "pages", pages)
	return objects, nil
}

func (s *Scanner) listPage(ctx context.Context, target synctypes.Target, input *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
	var out *s3.ListObjectsV2Output
	_, err := s.retry.Do(ctx, s.callTimeout, func(callCtx context.Context) error {
		var err error
		out, err = s.client.ListObjectsV2(callCtx, input)
		return err
	}, s.retryLogger(ctx, "list", target.Bucket, aws.ToString(input.Prefix)))
	return out, err
}

func (s *Scanner) retryLogger(ctx context.Context, op, bucket, key string) func(int, error, time.Duration) {
	return func(attempt int, err error, wait time.Duration) {
		s.logger.WarnContext(ctx, op+" failed, retrying",
			"bucket", bucket, "key", key, "attempt", attempt, "wait", wait, "error", err)
	}
}

// resolveHashes reads the recorded content MD5 of objects whose ETag is not
// one. Objects without a usable record keep an empty Hash.
func (s *Scanner) resolveHashes(ctx context.Context, target synctypes.Target, objects []synctypes.RemoteObject) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	opaque := 0
	for i := range objects {
		if objects[i].Hash != "" {
			continue
		}
		opaque++
		obj := &objects[i]
		g.Go(func() error {
			input := &s3.HeadObjectInput{
				Bucket: aws.String(target.Bucket),
				Key:    aws.String(obj.FullKey),
			}
			var head *s3.HeadObjectOutput
			_, err := s.retry.Do(gctx, s.callTimeout, func(callCtx context.Context) error {
				var err error
				head, err = s.client.HeadObject(callCtx, input)
				return err
			}, s.retryLogger(gctx, "head", target.Bucket, obj.FullKey))
			if err != nil {
				if ctx.Err() != nil {
					return errors.NewObjectError("head", errors.KindCancelled, target.Bucket, obj.FullKey, ctx.Err())
				}
				return errors.WrapStoreError("head", errors.KindListing, target.Bucket, obj.FullKey, err)
			}

			if sum := strings.ToLower(metadataValue(head.Metadata, synctypes.MetadataContentMD5)); synctypes.IsMD5Hex(sum) {
				obj.Hash = sum
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if opaque > 0 {
		s.logger.DebugContext(ctx, "resolved opaque etags", "bucket", target.Bucket, "objects", opaque)
	}
	return nil
}

// metadataValue looks a user metadata key up case-insensitively; some
// S3-compatible stores do not normalise header case.
func metadataValue(meta map[string]string, key string) string {
	if v, ok := meta[key]; ok {
		return v
	}
	for k, v := range meta {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
