package sitesync

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kubetraining/sitesync/errors"
	"github.com/kubetraining/sitesync/synctypes"
)

// NewStoreClient creates an S3 client for target.
//
// The client authenticates with the target's static credentials only. The
// SDK retryer is disabled; uploads are retried by the executor. A custom
// endpoint (Wasabi, LocalStack) switches to path-style addressing.
func NewStoreClient(ctx context.Context, target synctypes.Target) (*s3.Client, error) {
	if !target.Credentials.Complete() {
		return nil, errors.NewBucketError("client initialization", errors.KindConfig, target.Bucket, errors.ErrMissingCredentials)
	}

	region := target.Region
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			target.Credentials.AccessKey,
			target.Credentials.SecretKey,
			target.Credentials.SessionToken,
		)),
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
		config.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
		config.WithResponseChecksumValidation(aws.ResponseChecksumValidationWhenRequired),
	)
	if err != nil {
		return nil, errors.New("client initialization", errors.KindConfig, fmt.Errorf("load AWS config: %w", err))
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if target.Endpoint != "" {
			o.BaseEndpoint = aws.String(target.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
