package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"montage/internal/config"
	"montage/internal/fileutil"
	"montage/internal/services"
)

// S3 stores assets in an S3-compatible bucket (AWS or MinIO).
type S3 struct {
	client    *s3.Client
	bucket    string
	region    string
	endpoint  string
	pathStyle bool
	publicURL string
}

// NewS3 builds a client from the storage section. Static credentials are
// used when configured; otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg config.Storage) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3{
		client:    client,
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		pathStyle: cfg.UsePathStyle,
		publicURL: cfg.PublicURL,
	}, nil
}

func (s *S3) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	// The signer needs a seekable body to hash the payload.
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return services.Wrap(services.ErrResource, "assets", "put", key, err)
		}
		body = bytes.NewReader(data)
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(cleaned),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return services.Wrap(services.ErrResource, "assets", "put", key, err)
	}
	return nil
}

func (s *S3) PutFile(ctx context.Context, key, localPath, contentType string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return services.Wrap(services.ErrResource, "assets", "put file", localPath, err)
	}
	defer file.Close()
	return s.Put(ctx, key, file, contentType)
}

func (s *S3) Fetch(ctx context.Context, key, localPath string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(cleaned),
	})
	if err != nil {
		if isS3NotFound(err) {
			return services.Wrap(services.ErrNotFound, "assets", "fetch", key, nil)
		}
		return services.Wrap(services.ErrResource, "assets", "fetch", key, err)
	}
	defer out.Body.Close()
	if _, err := fileutil.WriteAtomic(localPath, out.Body, 0o644); err != nil {
		return services.Wrap(services.ErrResource, "assets", "fetch", key, err)
	}
	return nil
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(cleaned),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, services.Wrap(services.ErrResource, "assets", "head", key, err)
	}
	return true, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(cleaned),
	}); err != nil && !isS3NotFound(err) {
		return services.Wrap(services.ErrResource, "assets", "delete", key, err)
	}
	return nil
}

// Move copies srcKey to dstKey and removes the source. S3 has no rename.
func (s *S3) Move(ctx context.Context, srcKey, dstKey string) error {
	src, err := CleanKey(srcKey)
	if err != nil {
		return err
	}
	dst, err := CleanKey(dstKey)
	if err != nil {
		return err
	}
	if _, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(escapeCopySource(s.bucket, src)),
	}); err != nil {
		if isS3NotFound(err) {
			return services.Wrap(services.ErrNotFound, "assets", "move", srcKey, nil)
		}
		return services.Wrap(services.ErrResource, "assets", "move", srcKey+" -> "+dstKey, err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(src),
	}); err != nil && !isS3NotFound(err) {
		return services.Wrap(services.ErrResource, "assets", "move", "remove source "+srcKey, err)
	}
	return nil
}

func (s *S3) URL(key string) string {
	if s.publicURL != "" {
		return s.publicURL + "/" + key
	}
	if s.endpoint != "" {
		if s.pathStyle {
			return s.endpoint + "/" + s.bucket + "/" + key
		}
		if u, err := url.Parse(s.endpoint); err == nil && u.Host != "" {
			return u.Scheme + "://" + s.bucket + "." + u.Host + "/" + key
		}
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

func escapeCopySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}
