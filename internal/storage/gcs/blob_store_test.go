package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// newTestStore creates a BlobStore whose client talks to a test server.
func newTestStore(t *testing.T, handler http.Handler, cfg Config) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	store, err := New(client, cfg)
	require.NoError(t, err)
	return store
}

func TestPutObjectUploadsAndReturnsPublicURL(t *testing.T) {
	objectName := "enrich/wines/w1/label-0123456789abcdef.jpg"
	objectData := []byte("jpeg-bytes")

	// This handler simulates the GCS JSON API for multipart uploads.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/media-bucket/o")
		assert.Equal(t, objectName, r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), string(objectData))
		assert.Contains(t, string(body), "image/jpeg")

		fmt.Fprintln(w, `{ "name": "`+objectName+`", "bucket": "media-bucket" }`)
	})

	store := newTestStore(t, handler, Config{Bucket: "media-bucket"})
	url, err := store.PutObject(context.Background(), "/"+objectName, "image/jpeg", objectData)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/media-bucket/"+objectName, url)
}

func TestPutObjectServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	store := newTestStore(t, handler, Config{Bucket: "media-bucket"})
	_, err := store.PutObject(context.Background(), "a.jpg", "image/jpeg", []byte("x"))
	require.Error(t, err)
}

func TestPutObjectRequiresPath(t *testing.T) {
	store := newTestStore(t, http.NotFoundHandler(), Config{Bucket: "media-bucket"})
	_, err := store.PutObject(context.Background(), "  ", "image/jpeg", []byte("x"))
	require.Error(t, err)
}

func TestPublicURLWithCustomBase(t *testing.T) {
	store := newTestStore(t, http.NotFoundHandler(), Config{Bucket: "media-bucket", PublicBaseURL: "https://cdn.example.com/"})
	assert.Equal(t, "https://cdn.example.com/wines/a.jpg", store.PublicURL("wines/a.jpg"))
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestOpenFailsForMissingBucket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, `{"error": {"code": 404, "message": "bucket not found"}}`)
	}))
	defer server.Close()

	_, err := Open(context.Background(), Config{Bucket: "missing"}, nil,
		option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.Error(t, err)
}
