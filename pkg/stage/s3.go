// Package stage uploads serialized templates and other build-time content
// to S3 so nested stacks can reference them by URL.
package stage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Retrieval URLs are presigned and time limited; a build run consumes them
// well within the hour.
const urlTTL = time.Hour

// StagingError reports a failed upload or fetch. Staging failures are fatal
// to the current build step: a partially staged nested-stack hierarchy has
// no safe resume semantics.
type StagingError struct {
	Op    string
	Key   string
	Cause error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("staging %s of %q failed: %v", e.Op, e.Key, e.Cause)
}

func (e *StagingError) Unwrap() error {
	return e.Cause
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Stager stages keyed content in a bucket under a fixed prefix and hands
// back presigned retrieval URLs.
type S3Stager struct {
	client  s3API
	presign *s3.PresignClient
	bucket  string
	prefix  string
	staged  []string
	log     *zap.SugaredLogger
}

// New builds a stager for the given bucket and key prefix, resolving
// credentials from the named profile when one is supplied.
func New(ctx context.Context, bucket, prefix, region, profile string) (*S3Stager, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg)
	return &S3Stager{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		prefix:  prefix,
		log:     zap.S().Named("stage"),
	}, nil
}

// Upload stores content under key and returns a time-limited presigned URL
// for retrieving it.
func (s *S3Stager) Upload(ctx context.Context, key string, content []byte) (string, error) {
	fullKey := s.key(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return "", &StagingError{Op: "upload", Key: key, Cause: err}
	}
	s.staged = append(s.staged, key)
	s.log.Debugf("uploaded %s (%d bytes)", fullKey, len(content))

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	}, s3.WithPresignExpires(urlTTL))
	if err != nil {
		return "", &StagingError{Op: "presign", Key: key, Cause: err}
	}
	return req.URL, nil
}

// Fetch retrieves content previously staged under key.
func (s *S3Stager) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return nil, &StagingError{Op: "fetch", Key: key, Cause: err}
	}
	defer out.Body.Close() // nolint:errcheck
	return io.ReadAll(out.Body)
}

// Delete removes staged content. Used to clean up blobs staged by a failed
// run; callers treat failure as a warning, not a new fatal error.
func (s *S3Stager) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return &StagingError{Op: "delete", Key: key, Cause: err}
	}
	s.log.Debugf("deleted %s", s.key(key))
	return nil
}

// Cleanup removes every blob this stager uploaded, best effort. Called
// when a run fails after staging; failures are logged, never fatal.
func (s *S3Stager) Cleanup(ctx context.Context) {
	for _, key := range s.staged {
		if err := s.Delete(ctx, key); err != nil {
			s.log.Warnf("could not remove staged object %s: %v", key, err)
		}
	}
	s.staged = nil
}

func (s *S3Stager) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}
