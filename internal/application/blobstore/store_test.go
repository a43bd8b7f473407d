package blobstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cellar-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	bucket, path, ok := ParseRef("storage:wine-images/house/abc.jpg")
	require.True(t, ok)
	assert.Equal(t, "wine-images", bucket)
	assert.Equal(t, "house/abc.jpg", path)

	for _, bad := range []string{"https://cdn/x.jpg", "storage:", "storage:bucket", "storage:bucket/", "storage:/path"} {
		_, _, ok := ParseRef(bad)
		assert.False(t, ok, bad)
	}
	assert.Equal(t, "storage:wine-images/a/b.png", Ref("wine-images", "/a/b.png"))
}

func TestSupabaseStore_Put(t *testing.T) {
	var gotPath, gotAuth, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"Key":"wine-images/h/1.jpg"}`))
	}))
	defer srv.Close()

	s := &SupabaseStore{BaseURL: srv.URL, SecretKey: "service-key", Bucket: "wine-images"}
	ref, err := s.Put(context.Background(), "h/1.jpg", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "storage:wine-images/h/1.jpg", ref)
	assert.Equal(t, "/storage/v1/object/wine-images/h/1.jpg", gotPath)
	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Equal(t, "image/jpeg", gotType)
	assert.Equal(t, "jpeg", string(gotBody))
}

func TestSupabaseStore_PutRequiresKey(t *testing.T) {
	s := &SupabaseStore{BaseURL: "http://localhost", Bucket: "wine-images"}
	_, err := s.Put(context.Background(), "x.jpg", nil, "image/jpeg")
	assert.Error(t, err)
}

func TestSupabaseStore_ResolveBatchSingleRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/storage/v1/object/sign/wine-images", r.URL.Path)
		var body struct {
			ExpiresIn int      `json:"expiresIn"`
			Paths     []string `json:"paths"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 600, body.ExpiresIn)
		assert.Equal(t, []string{"a.jpg", "missing.jpg"}, body.Paths)
		_, _ = w.Write([]byte(`[
			{"path":"a.jpg","signedURL":"/object/sign/wine-images/a.jpg?token=t1","error":null},
			{"path":"missing.jpg","signedURL":"","error":"Either the object does not exist or you do not have access to it"}
		]`))
	}))
	defer srv.Close()

	s := &SupabaseStore{BaseURL: srv.URL, SecretKey: "k", Bucket: "wine-images"}
	refs := []string{
		"storage:wine-images/a.jpg",
		"https://example.com/label.png",
		"",
		"storage:wine-images/missing.jpg",
	}
	urls, err := s.ResolveBatch(context.Background(), refs, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.Len(t, urls, 4)
	assert.Equal(t, srv.URL+"/storage/v1/object/sign/wine-images/a.jpg?token=t1", urls[0])
	assert.Equal(t, "https://example.com/label.png", urls[1])
	assert.Empty(t, urls[2])
	assert.Empty(t, urls[3])
}

func TestSupabaseStore_ResolveBatchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := &SupabaseStore{BaseURL: srv.URL, SecretKey: "k", Bucket: "wine-images"}
	urls, err := s.ResolveBatch(context.Background(), []string{"storage:wine-images/a.jpg", "https://x/y.jpg"}, time.Minute)
	assert.Error(t, err)
	assert.Equal(t, []string{"", "https://x/y.jpg"}, urls)
}

func TestResolve_Single(t *testing.T) {
	s := &SupabaseStore{Bucket: "wine-images"}
	url, err := Resolve(context.Background(), s, "https://example.com/a.jpg", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.jpg", url)
}

func TestS3Store_ResolveBatchPresigns(t *testing.T) {
	s, err := NewS3Store(context.Background(), config.BlobConfig{
		Bucket:         "wine-images",
		S3Endpoint:     "http://localhost:9000",
		S3Region:       "us-east-1",
		S3AccessKey:    "access",
		S3SecretKey:    "secret",
		S3UsePathStyle: true,
	})
	require.NoError(t, err)

	urls, err := s.ResolveBatch(context.Background(), []string{"storage:wine-images/h/1.jpg", "https://x/y.jpg"}, time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(urls[0], "http://localhost:9000/wine-images/h/1.jpg?"), urls[0])
	assert.Contains(t, urls[0], "X-Amz-Signature=")
	assert.Equal(t, "https://x/y.jpg", urls[1])
}

func TestNew_SelectsBackend(t *testing.T) {
	st, err := New(context.Background(), config.BlobConfig{Backend: "supabase", Bucket: "wine-images"})
	require.NoError(t, err)
	assert.IsType(t, &SupabaseStore{}, st)

	_, err = New(context.Background(), config.BlobConfig{Backend: "ftp"})
	assert.Error(t, err)
}
