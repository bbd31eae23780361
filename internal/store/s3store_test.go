package store

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in memory and pages listings two at a time.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]string
	pageSize int
	getErr   error
	listHits int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]string), pageSize: 2}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(v))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listHits++

	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		start, _ = strconv.Atoi(tok)
	}
	end := min(start+f.pageSize, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func TestS3Store_PrefixIsolation(t *testing.T) {
	fake := newFakeS3()
	fake.objects["other/x"] = "not ours"
	s := NewS3Store(fake, "bucket", "app/", time.Second)

	require.NoError(t, s.Set("a", "1"))
	assert.Equal(t, "1", fake.objects["app/a"])

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)

	require.NoError(t, s.Clear())
	assert.Equal(t, "not ours", fake.objects["other/x"])
	assert.NotContains(t, fake.objects, "app/a")
}

func TestS3Store_KeysPaginates(t *testing.T) {
	fake := newFakeS3()
	s := NewS3Store(fake, "bucket", "", time.Second)
	for _, k := range []string{"e", "d", "c", "b", "a"} {
		require.NoError(t, s.Set(k, k))
	}

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, keys)
	assert.Equal(t, 3, fake.listHits)

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestS3Store_GetErrorPropagates(t *testing.T) {
	fake := newFakeS3()
	fake.getErr = errors.New("access denied")
	s := NewS3Store(fake, "bucket", "", time.Second)

	_, _, err := s.Get("a")
	assert.ErrorIs(t, err, fake.getErr)
}
