package payload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/multichannel/internal/messaging"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_Store(t *testing.T) {
	fake := &fakeS3{}
	store := NewS3StoreWithClient(fake, "media", "/payloads/")
	store.newKey = func() string { return "k1" }

	ref, err := store.Store(context.Background(), messaging.MediaBlob, "Picture uploaded")
	require.NoError(t, err)
	assert.Equal(t, "s3://media/payloads/k1", ref)
	assert.Equal(t, "media", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "application/octet-stream", aws.ToString(fake.input.ContentType))
	assert.Equal(t, "Picture uploaded", fake.body)

	fake.err = errors.New("access denied")
	_, err = store.Store(context.Background(), messaging.MediaVideo, "clip")
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3Store_RequiresBucketAndRegion(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{Bucket: "b"})
	assert.ErrorIs(t, err, ErrInvalidS3Config)
}

type transportFunc func(*http.Request) (*http.Response, error)

func (f transportFunc) Perform(r *http.Request) (*http.Response, error) { return f(r) }

func TestOpenSearchStore_Store(t *testing.T) {
	var gotPath string
	var gotDoc textDocument
	tr := transportFunc(func(r *http.Request) (*http.Response, error) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotDoc)
		return &http.Response{
			StatusCode: http.StatusCreated,
			Body:       io.NopCloser(strings.NewReader(`{"result":"created"}`)),
			Header:     http.Header{},
		}, nil
	})
	store := NewOpenSearchStoreWithTransport(tr, "messages")
	store.newID = func() string { return "doc-1" }

	id, err := store.Store(context.Background(), messaging.MediaText, "Hi, this is Ram!")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", id)
	assert.Equal(t, "/messages/_doc/doc-1", gotPath)
	assert.Equal(t, "Hi, this is Ram!", gotDoc.Content)
}

func TestOpenSearchStore_ErrorResponse(t *testing.T) {
	tr := transportFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadRequest,
			Body:       io.NopCloser(strings.NewReader(`{"error":"mapper_parsing_exception"}`)),
			Header:     http.Header{},
		}, nil
	})
	_, err := NewOpenSearchStoreWithTransport(tr, "messages").Store(context.Background(), messaging.MediaText, "x")
	assert.ErrorContains(t, err, "mapper_parsing_exception")

	_, err = NewOpenSearchStore(OpenSearchConfig{Index: "messages"})
	assert.ErrorIs(t, err, ErrInvalidOpenSearchConfig)
}

type namedStore string

func (n namedStore) Store(context.Context, messaging.MediaType, string) (string, error) {
	return string(n), nil
}

func TestMux_RoutesByMediaType(t *testing.T) {
	mux := &Mux{Text: namedStore("text"), Object: namedStore("object"), Fallback: namedStore("fallback")}
	cases := map[messaging.MediaType]string{
		messaging.MediaText:  "text",
		"text/html":          "text",
		messaging.MediaBlob:  "object",
		messaging.MediaVideo: "object",
		"video/mp4":          "object",
		"application/pdf":    "fallback",
	}
	for typ, want := range cases {
		got, err := mux.Store(context.Background(), typ, "x")
		require.NoError(t, err)
		assert.Equal(t, want, got, string(typ))
	}

	empty := &Mux{}
	ref, err := empty.Store(context.Background(), messaging.MediaBlob, "x")
	require.NoError(t, err)
	assert.Empty(t, ref)
}
