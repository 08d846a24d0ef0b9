package pack

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-hclog"

	"reprounzip/internal/config"
)

// NewS3Client builds a client from the S3_* settings. Static credentials
// are used when both keys are set, the default AWS chain otherwise. A
// custom endpoint switches to path-style addressing for S3-compatible
// stores.
func NewS3Client(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*s3.Client, error) {
	options := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Get(config.KeyS3Region, "us-east-1")),
	}
	accessKey := cfg.Get(config.KeyS3AccessKey, "")
	secretKey := cfg.Get(config.KeyS3SecretKey, "")
	if accessKey != "" && secretKey != "" {
		options = append(options, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	if logger.IsTrace() {
		options = append(options, awsconfig.WithClientLogMode(aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	endpoint := cfg.Get(config.KeyS3Endpoint, "")
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func downloadS3(ctx context.Context, cfg *config.Config, bucket, key, dest string, logger hclog.Logger) error {
	if bucket == "" || key == "" {
		return fmt.Errorf("invalid s3 location s3://%s/%s", bucket, key)
	}
	client, err := NewS3Client(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("downloading pack", "bucket", bucket, "key", key)
	output, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to fetch s3://%s/%s: %w", bucket, key, err)
	}
	defer output.Body.Close()

	size := int64(-1)
	if output.ContentLength != nil {
		size = *output.ContentLength
	}
	return writeDownload(output.Body, size, dest, "Downloading "+key)
}
