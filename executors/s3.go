package executors

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/models"
)

type s3API interface {
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutBucketVersioning(ctx context.Context, in *s3.PutBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error)
	PutBucketCors(ctx context.Context, in *s3.PutBucketCorsInput, optFns ...func(*s3.Options)) (*s3.PutBucketCorsOutput, error)
	PutBucketEncryption(ctx context.Context, in *s3.PutBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.PutBucketEncryptionOutput, error)
}

// S3Executor creates the application's storage bucket.
type S3Executor struct {
	*ExecutorBase
	client s3API
	region string
}

func NewS3Executor(creds models.ProviderCredentials, logger *logrus.Logger) (*S3Executor, error) {
	cfg, err := LoadAWSConfig(context.Background(), creds)
	if err != nil {
		return nil, err
	}
	return newS3Executor(s3.NewFromConfig(cfg), creds, cfg.Region, logger), nil
}

func newS3Executor(client s3API, creds models.ProviderCredentials, region string, logger *logrus.Logger) *S3Executor {
	return &S3Executor{
		ExecutorBase: NewExecutorBase(S3, creds, []string{CreateStorageBucket}, logger),
		client:       client,
		region:       region,
	}
}

func (e *S3Executor) Execute(ctx context.Context, req models.ProviderRequest) models.ProviderResult {
	if err := e.ValidateOperation(req.Operation); err != nil {
		return models.Failed(err.Error(), "unsupported_operation")
	}
	return e.createBucket(ctx, req)
}

func (e *S3Executor) createBucket(ctx context.Context, req models.ProviderRequest) models.ProviderResult {
	bucket := stringParam(req.Params, "bucket_name", "")
	if bucket == "" {
		bucket = resourceName(stringParam(req.Params, "app_name", "app"), stringParam(req.Params, "environment", "production"), "storage")
	}
	logger := e.log(req).WithField("bucket", bucket)

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if e.region != "" && e.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(e.region),
		}
	}

	existed := false
	if _, err := e.client.CreateBucket(ctx, input); err != nil {
		if !isBucketAlreadyOwnedByYou(err) {
			return awsFailure(fmt.Sprintf("create bucket %s", bucket), err)
		}
		existed = true
		logger.Info("Bucket already owned, reapplying settings")
	}

	if _, err := e.client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: aws.String(bucket),
		VersioningConfiguration: &s3types.VersioningConfiguration{
			Status: s3types.BucketVersioningStatusEnabled,
		},
	}); err != nil {
		return awsFailure("enable bucket versioning", err)
	}

	if _, err := e.client.PutBucketCors(ctx, &s3.PutBucketCorsInput{
		Bucket: aws.String(bucket),
		CORSConfiguration: &s3types.CORSConfiguration{
			CORSRules: []s3types.CORSRule{{
				AllowedHeaders: []string{"*"},
				AllowedMethods: []string{"GET", "PUT", "POST", "DELETE"},
				AllowedOrigins: []string{"*"},
				MaxAgeSeconds:  aws.Int32(3000),
			}},
		},
	}); err != nil {
		return awsFailure("configure bucket CORS", err)
	}

	if _, err := e.client.PutBucketEncryption(ctx, &s3.PutBucketEncryptionInput{
		Bucket: aws.String(bucket),
		ServerSideEncryptionConfiguration: &s3types.ServerSideEncryptionConfiguration{
			Rules: []s3types.ServerSideEncryptionRule{{
				ApplyServerSideEncryptionByDefault: &s3types.ServerSideEncryptionByDefault{
					SSEAlgorithm: s3types.ServerSideEncryptionAes256,
				},
			}},
		},
	}); err != nil {
		return awsFailure("enable bucket encryption", err)
	}

	logger.Info("Storage bucket ready")
	return models.Succeeded(map[string]any{
		"bucket_name": bucket,
		"region":      e.region,
		"bucket_url":  fmt.Sprintf("s3://%s", bucket),
		"versioning":  true,
		"encryption":  "AES256",
		"existed":     existed,
	})
}

// isBucketAlreadyOwnedByYou reports whether CreateBucket failed only because
// we already own the bucket.
func isBucketAlreadyOwnedByYou(err error) bool {
	var owned *s3types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return true
	}
	return isAWSErrorCode(err, "BucketAlreadyOwnedByYou")
}
