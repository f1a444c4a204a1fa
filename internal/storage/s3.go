package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3Options configures an S3Store. Endpoint and static keys are only needed
// for S3 compatible services such as MinIO.
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// S3Store keeps blobs in a bucket under an optional key prefix.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucketName string
	prefix     string
}

// NewS3Store creates a store backed by the given bucket.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires a bucket")
	}
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		downloader: manager.NewDownloader(cli),
		bucketName: opts.Bucket,
		prefix:     opts.Prefix,
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	return s.prefix + strings.TrimPrefix(key, "/")
}

// Put uploads data with its metadata as object headers.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, meta Metadata) error {
	s3Metadata := make(map[string]string, len(meta.Extra)+1)
	for k, v := range meta.Extra {
		s3Metadata[strings.ToLower(k)] = v
	}
	if meta.Name != "" {
		s3Metadata["name"] = meta.Name
	}

	in := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucketName),
		Key:      aws.String(s.objectKey(key)),
		Body:     bytes.NewReader(data),
		Metadata: s3Metadata,
	}
	if meta.ContentType != "" {
		in.ContentType = aws.String(meta.ContentType)
	}
	if _, err := s.uploader.Upload(ctx, in); err != nil {
		log.Error().Err(err).Str("key", key).Msg("s3 upload failed")
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Debug().Str("key", key).Int("size", len(data)).Msg("uploaded object to S3")
	return nil
}

// Get downloads a blob. Metadata comes from a HEAD request so the body can be
// fetched with the concurrent downloader.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, Metadata, error) {
	objKey := aws.String(s.objectKey(key))
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucketName), Key: objKey})
	if err != nil {
		return nil, Metadata{}, s.wrapErr("head", key, err)
	}

	meta := Metadata{Extra: map[string]string{}}
	for k, v := range head.Metadata {
		k = strings.ToLower(k)
		if k == "name" {
			meta.Name = v
			continue
		}
		meta.Extra[k] = v
	}
	if head.ContentType != nil {
		meta.ContentType = *head.ContentType
	}

	var size int64
	if head.ContentLength != nil {
		size = *head.ContentLength
	}
	buf := manager.NewWriteAtBuffer(make([]byte, 0, size))
	if _, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{Bucket: aws.String(s.bucketName), Key: objKey}); err != nil {
		return nil, meta, s.wrapErr("download", key, err)
	}
	return buf.Bytes(), meta, nil
}

// Delete removes a blob; deleting a missing key is not an error.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return s.wrapErr("delete", key, err)
	}
	return nil
}

// Ping checks the bucket is reachable with the configured credentials.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucketName, err)
	}
	return nil
}

func (s *S3Store) wrapErr(op, key string, err error) error {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return fmt.Errorf("%s %s: %w", op, key, ErrNotFound)
	}
	return fmt.Errorf("s3 %s %s: %w", op, key, err)
}
