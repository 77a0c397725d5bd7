package archive

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Config locates the cell archive in an S3 bucket or an S3-compatible
// store such as MinIO. Credentials come from the AWS default chain.
type S3Config struct {
	Bucket       string
	Prefix       string // key prefix, without leading or trailing slash
	Region       string // empty uses the default chain
	Endpoint     string // absolute URL of an S3-compatible service
	UsePathStyle bool
}

// Validate reports every problem with the configuration at once.
func (c *S3Config) Validate() error {
	var errs []error
	switch n := len(c.Bucket); {
	case n == 0:
		errs = append(errs, errors.New("S3 bucket is required"))
	case n < 3 || n > 63:
		errs = append(errs, fmt.Errorf("S3 bucket %q must be 3 to 63 characters", c.Bucket))
	case strings.ContainsFunc(c.Bucket, invalidBucketRune):
		errs = append(errs, fmt.Errorf("S3 bucket %q may only contain lowercase letters, digits, dots and hyphens", c.Bucket))
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("S3 endpoint %q must be an absolute URL", c.Endpoint))
		}
	}
	return errors.Join(errs...)
}

func invalidBucketRune(r rune) bool {
	return (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '.' && r != '-'
}

// ParseS3Path splits an archive path such as "bucket/notebooks" or
// "s3://bucket/notebooks/" into bucket and key prefix.
func ParseS3Path(p string) (bucket, prefix string) {
	p = strings.TrimPrefix(p, "s3://")
	bucket, prefix, _ = strings.Cut(strings.Trim(p, "/"), "/")
	if prefix != "" {
		prefix = strings.Trim(path.Clean(prefix), "/")
	}
	return bucket, prefix
}

// clientOptions translates the endpoint overrides into s3 client options.
func (c *S3Config) clientOptions() []func(*s3.Options) {
	var opts []func(*s3.Options)
	if c.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(c.Endpoint)
		})
	}
	if c.UsePathStyle {
		opts = append(opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return opts
}

func (c *S3Config) loadAWSConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, config.WithRegion(c.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// NewS3Recorder creates a recorder that writes journal records to S3.
func NewS3Recorder(ctx context.Context, dataset string, s3cfg S3Config) (*LodeRecorder, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}
	awsCfg, err := s3cfg.loadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, s3cfg.clientOptions()...)

	return NewRecorderWithFactory(dataset, func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: s3cfg.Bucket,
			Prefix: s3cfg.Prefix,
		})
	})
}
