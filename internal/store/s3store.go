package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/heysubinoy/asyncstore/pkg/kv"
)

// deleteBatchSize is the DeleteObjects limit per request.
const deleteBatchSize = 1000

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	s3.ListObjectsV2APIClient
}

// S3Store maps each entry to an object named prefix+key. Every call is
// bounded by the configured timeout. Keys enumerate in S3 listing order
// (lexicographic by UTF-8 bytes).
type S3Store struct {
	client  S3API
	bucket  string
	prefix  string
	timeout time.Duration
}

// Compile-time check to ensure S3Store implements kv.Store.
var _ kv.Store = (*S3Store)(nil)

// NewS3Store creates a store over bucket. A zero timeout means 10s.
func NewS3Store(client S3API, bucket, prefix string, timeout time.Duration) *S3Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix, timeout: timeout}
}

func (s *S3Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *S3Store) objectKey(key string) *string {
	return aws.String(s.prefix + key)
}

func (s *S3Store) Get(key string) (string, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	object, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.objectKey(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to fetch object %s: %w", key, err)
	}
	defer object.Body.Close()

	data, err := io.ReadAll(object.Body)
	if err != nil {
		return "", false, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return string(data), true, nil
}

func (s *S3Store) Set(key, value string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         s.objectKey(key),
		Body:        strings.NewReader(value),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// Delete succeeds for absent keys, matching S3 semantics.
func (s *S3Store) Delete(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.objectKey(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// Clear deletes every object under the prefix in batches.
func (s *S3Store) Clear() error {
	keys, err := s.Keys()
	if err != nil {
		return err
	}

	ctx, cancel := s.ctx()
	defer cancel()

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: s.objectKey(k)})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects: %w", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("failed to delete %d objects, first %s: %s",
				len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}

func (s *S3Store) Keys() ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}

	keys := []string{}
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s.prefix))
		}
	}
	return keys, nil
}

func (s *S3Store) Len() (int, error) {
	keys, err := s.Keys()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
