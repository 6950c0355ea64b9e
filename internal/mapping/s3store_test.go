package mapping

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	types   map[string]string
	getErr  error
	putErr  error
	headErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]string{}, types: map[string]string{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	id := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[id] = string(data)
	f.types[id] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestS3Store_WriteThenRead(t *testing.T) {
	client := newFakeS3()
	store := NewS3Store(client, "relay-bucket")

	require.NoError(t, store.Write(context.Background(), testKey, []byte(`{"a":"b"}`), "application/json"))
	assert.Equal(t, "application/json", client.types["relay-bucket/"+testKey])

	data, err := store.Read(context.Background(), testKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"b"}`, string(data))
}

func TestS3Store_NotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"typed NoSuchKey", &s3types.NoSuchKey{}},
		{"api error NoSuchKey", &smithy.GenericAPIError{Code: "NoSuchKey"}},
		{"api error NotFound", &smithy.GenericAPIError{Code: "NotFound"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeS3()
			client.getErr = tt.err
			_, err := NewS3Store(client, "relay-bucket").Read(context.Background(), testKey)
			assert.ErrorIs(t, err, ErrBlobNotFound)
		})
	}
}

func TestS3Store_MissingObjectFeedsEmptyCache(t *testing.T) {
	c := NewCache(CacheConfig{Store: NewS3Store(newFakeS3(), "relay-bucket"), Key: testKey})
	m, err := c.Load(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestS3Store_AccessErrors(t *testing.T) {
	denied := &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}

	client := newFakeS3()
	client.getErr = denied
	client.putErr = denied
	store := NewS3Store(client, "relay-bucket")

	_, err := store.Read(context.Background(), testKey)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBlobNotFound)
	assert.ErrorAs(t, err, new(smithy.APIError))

	err = store.Write(context.Background(), testKey, []byte("{}"), "application/json")
	assert.ErrorAs(t, err, new(smithy.APIError))
}

func TestS3Store_Ping(t *testing.T) {
	client := newFakeS3()
	store := NewS3Store(client, "relay-bucket")
	assert.NoError(t, store.Ping(context.Background()))

	client.headErr = errors.New("forbidden")
	assert.Error(t, store.Ping(context.Background()))
}

func TestMemoryStore_CopiesData(t *testing.T) {
	store := NewMemoryStore()
	data := []byte(`{"a":"b"}`)
	require.NoError(t, store.Write(context.Background(), "k", data, "application/json"))
	data[2] = 'X'

	got, err := store.Read(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":"b"}`, string(got))

	_, err = store.Read(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.NoError(t, store.Ping(context.Background()))
}
