package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/sharedeck/sharedeck/pkg/models"
	"github.com/sharedeck/sharedeck/pkg/retry"
)

// S3 connects to S3-compatible object stores. The endpoint's Share names
// the bucket; keys are treated as slash paths, with delimiter listing
// standing in for directories. The credential domain field selects the
// region, defaulting to us-east-1.
type S3 struct{}

// Connect builds a client for the endpoint and probes the bucket so bad
// credentials and missing buckets surface at connect time.
func (S3) Connect(ctx context.Context, ep models.Endpoint, creds models.Credentials) (Conn, error) {
	region := creds.Domain
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.Username, creds.Password, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	url := endpointURL(ep)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(url)
		o.UsePathStyle = true
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(ep.Share)}); err != nil {
		return nil, classifyS3(err, "/", ep.Address())
	}

	return &s3Conn{addr: ep.Address(), client: client, bucket: ep.Share}, nil
}

// endpointURL builds the base URL for an S3-compatible endpoint. Port 443
// implies TLS; anything else is plain HTTP (MinIO-style deployments).
func endpointURL(ep models.Endpoint) string {
	scheme := "http"
	if ep.Port == 443 {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, ep.Address())
}

type s3Conn struct {
	addr   string
	client *s3.Client
	bucket string
}

func (c *s3Conn) List(ctx context.Context, dir string) ([]RemoteEntry, error) {
	prefix := strings.TrimPrefix(dir, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var entries []RemoteEntry
	p := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, classifyS3(err, dir, c.addr)
		}
		for _, cp := range page.CommonPrefixes {
			full := aws.ToString(cp.Prefix)
			name := strings.TrimSuffix(strings.TrimPrefix(full, prefix), "/")
			if name == "" {
				continue
			}
			entries = append(entries, RemoteEntry{
				Name:  name,
				Path:  "/" + strings.TrimSuffix(full, "/"),
				IsDir: true,
			})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, prefix)
			// Skip the directory placeholder object for the prefix itself.
			if name == "" || strings.HasSuffix(name, "/") {
				continue
			}
			e := RemoteEntry{Name: name, Path: "/" + key}
			if obj.Size != nil {
				e.Size = *obj.Size
			}
			if obj.LastModified != nil {
				e.ModTime = *obj.LastModified
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (c *s3Conn) Open(ctx context.Context, p string) (io.ReadCloser, int64, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(strings.TrimPrefix(p, "/")),
	})
	if err != nil {
		return nil, 0, classifyS3(err, p, c.addr)
	}
	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}

// Close is a no-op; the S3 client holds no persistent connection.
func (c *s3Conn) Close() error { return nil }

// classifyS3 sorts SDK errors into the shared taxonomy. Server faults and
// transport failures are retryable; access errors become AuthError and
// missing keys NotFoundError.
func classifyS3(err error, path, addr string) error {
	if isCtxErr(err) {
		return err
	}

	var (
		noKey    *types.NoSuchKey
		noBucket *types.NoSuchBucket
		notFound *types.NotFound
	)
	if errors.As(err, &noKey) || errors.As(err, &noBucket) || errors.As(err, &notFound) {
		return &NotFoundError{Path: path}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return &AuthError{Endpoint: addr, Err: err}
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return &NotFoundError{Path: path}
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return retry.Retryable(err)
		}
		return err
	}

	if isNetErr(err) {
		return retry.Retryable(err)
	}
	return err
}
