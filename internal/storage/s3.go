package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Options configures the S3 client. Region and static credentials are
// optional; the default AWS chain is used when they are empty.
type Options struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Client uploads, downloads and presigns objects in one bucket.
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	presigner  *s3.PresignClient
	bucketName string
}

// ObjectInfo is what we keep about an uploaded object.
type ObjectInfo struct {
	Key         string
	ETag        string
	Location    string
	Size        int64
	ContentType string
}

// NewS3Client creates a new S3 client
func NewS3Client(ctx context.Context, opts Options) (*S3Client, error) {
	var loaders []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loaders = append(loaders, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg)
	return &S3Client{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		presigner:  s3.NewPresignClient(cli),
		bucketName: opts.Bucket,
	}, nil
}

// Bucket returns the configured bucket name.
func (s *S3Client) Bucket() string { return s.bucketName }

// Upload stores data under key. The name metadata keeps the user-facing
// file name next to the generated key.
func (s *S3Client) Upload(ctx context.Context, key, name, contentType string, data []byte) (*ObjectInfo, error) {
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucketName),
		Key:                aws.String(key),
		Body:               bytes.NewReader(data),
		ContentType:        aws.String(contentType),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", name)),
		Metadata:           map[string]string{"name": name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	info := &ObjectInfo{
		Key:         key,
		Location:    out.Location,
		Size:        int64(len(data)),
		ContentType: contentType,
	}
	if out.ETag != nil {
		info.ETag = strings.Trim(*out.ETag, `"`)
	}
	log.Info().Str("key", key).Int("size", len(data)).Msg("uploaded object to S3")
	return info, nil
}

// Download fetches an object and returns its bytes and stored name. With
// limit > 0 an object larger than limit bytes fails with
// *http.MaxBytesError before or while it is read.
func (s *S3Client) Download(ctx context.Context, key string, limit int64) ([]byte, string, error) {
	return downloadObject(ctx, s.client, s.bucketName, key, limit)
}

func downloadObject(ctx context.Context, cli *s3.Client, bucket, key string, limit int64) ([]byte, string, error) {
	result, err := cli.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	if limit > 0 && aws.ToInt64(result.ContentLength) > limit {
		return nil, "", &http.MaxBytesError{Limit: limit}
	}
	var body io.Reader = result.Body
	if limit > 0 {
		body = io.LimitReader(result.Body, limit+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read S3 object: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, "", &http.MaxBytesError{Limit: limit}
	}
	name := result.Metadata["name"]
	if name == "" {
		name = key[strings.LastIndex(key, "/")+1:]
	}
	return data, name, nil
}

// PresignGet returns a time-limited download link for key.
func (s *S3Client) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, time.Now().Add(ttl), nil
}

// HeadBucket checks that the bucket exists and is reachable.
func (s *S3Client) HeadBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	return err
}

// FetchURL downloads s3://bucket/key using the default AWS chain. It is
// used for input references that name a bucket other than ours. limit
// works as in Download.
func FetchURL(ctx context.Context, s3url string, limit int64) ([]byte, string, error) {
	path := strings.TrimPrefix(s3url, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 || slash == len(path)-1 {
		return nil, "", fmt.Errorf("invalid s3 url: %s", s3url)
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load AWS config: %w", err)
	}
	return downloadObject(ctx, s3.NewFromConfig(cfg), path[:slash], path[slash+1:], limit)
}
