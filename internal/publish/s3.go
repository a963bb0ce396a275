package publish

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/libforge/libforge/internal/codegen"
	"github.com/libforge/libforge/internal/config"
	"github.com/libforge/libforge/internal/logging"
)

// AmazonS3 uploads artifacts to a bucket, below an optional key prefix.
// Each object carries the sha256 of its content as metadata.
type AmazonS3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	log      *logging.Logger
}

// NewAmazonS3 expands environment variables in the bucket, prefix, region
// and URL before connecting. Credentials come from the default AWS chain.
func NewAmazonS3(ctx context.Context, cfg config.AmazonS3, log *logging.Logger) (*AmazonS3, error) {
	cfg.Bucket = os.ExpandEnv(cfg.Bucket)
	cfg.Prefix = os.ExpandEnv(cfg.Prefix)
	cfg.Region = os.ExpandEnv(cfg.Region)
	cfg.URL = os.ExpandEnv(cfg.URL)

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.URL != "" {
			o.BaseEndpoint = aws.String(cfg.URL)
			o.UsePathStyle = true
		}
	})
	return &AmazonS3{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		log:      log,
	}, nil
}

func (a *AmazonS3) Publish(ctx context.Context, artifacts []codegen.Artifact) error {
	fs, err := files(artifacts)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, f := range fs {
		g.Go(func() error {
			return a.upload(ctx, f)
		})
	}
	return g.Wait()
}

func (a *AmazonS3) key(p string) string {
	if a.prefix == "" {
		return p
	}
	return path.Join(a.prefix, p)
}

func (a *AmazonS3) upload(ctx context.Context, f file) error {
	sum := sha256.Sum256(f.data)
	key := a.key(f.path)
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(f.data),
		ContentType: aws.String(f.contentType),
		Metadata:    map[string]string{"sha256": hex.EncodeToString(sum[:])},
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", a.bucket, key, err)
	}
	a.log.Debugf("uploaded s3://%s/%s (%d bytes)", a.bucket, key, len(f.data))
	return nil
}
