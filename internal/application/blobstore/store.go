package blobstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cellar-backend/internal/config"
)

// RefPrefix marks references that point into our object storage. Anything else
// (e.g. a plain https URL) is already retrievable and passes through unchanged.
const RefPrefix = "storage:"

// Store is the blob store collaborator. The core only keeps the returned refs.
type Store interface {
	// Put uploads data and returns an opaque reference to it.
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
	// ResolveBatch returns one URL per ref, in order. Unresolvable refs yield "".
	ResolveBatch(ctx context.Context, refs []string, ttl time.Duration) ([]string, error)
}

// Resolve resolves a single ref. It returns "" when the ref cannot be resolved.
func Resolve(ctx context.Context, s Store, ref string, ttl time.Duration) (string, error) {
	urls, err := s.ResolveBatch(ctx, []string{ref}, ttl)
	if err != nil || len(urls) == 0 {
		return "", err
	}
	return urls[0], nil
}

// Ref builds "storage:<bucket>/<path>".
func Ref(bucket, path string) string {
	return RefPrefix + bucket + "/" + strings.TrimLeft(path, "/")
}

// ParseRef splits a storage ref into bucket and object path.
func ParseRef(ref string) (bucket, path string, ok bool) {
	if !strings.HasPrefix(ref, RefPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(ref, RefPrefix)
	i := strings.Index(rest, "/")
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// groupRefs indexes storage refs by bucket and copies passthrough refs straight
// into out. Refs that cannot be parsed stay "".
func groupRefs(refs []string, out []string) map[string][]int {
	byBucket := map[string][]int{}
	for i, ref := range refs {
		if ref == "" {
			continue
		}
		bucket, _, ok := ParseRef(ref)
		if !ok {
			if !strings.HasPrefix(ref, RefPrefix) {
				out[i] = ref
			}
			continue
		}
		byBucket[bucket] = append(byBucket[bucket], i)
	}
	return byBucket
}

// IsSupabase reports whether backend selects Supabase storage, the default.
func IsSupabase(backend string) bool {
	return backend == "" || backend == "supabase"
}

// New builds the configured store.
func New(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch {
	case IsSupabase(cfg.Backend):
		return &SupabaseStore{BaseURL: cfg.SupabaseURL, SecretKey: cfg.SupabaseSecretKey, Bucket: cfg.Bucket}, nil
	case cfg.Backend == "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("blobstore: unknown backend %q", cfg.Backend)
	}
}
