package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SupabaseStore is a Store backed by the Supabase storage HTTP API.
type SupabaseStore struct {
	BaseURL   string
	SecretKey string
	Bucket    string
	Client    *http.Client
}

type supabaseSignedObject struct {
	Path      string  `json:"path"`
	SignedURL string  `json:"signedURL"`
	Error     *string `json:"error"`
}

func (s *SupabaseStore) httpClient() *http.Client {
	if s.Client == nil {
		s.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return s.Client
}

func (s *SupabaseStore) base() (string, error) {
	if s.BaseURL == "" {
		return "", fmt.Errorf("supabase: SUPABASE_URL is not set")
	}
	if s.SecretKey == "" {
		return "", fmt.Errorf("supabase: SUPABASE_SECRET_KEY is not set")
	}
	return strings.TrimRight(s.BaseURL, "/"), nil
}

func (s *SupabaseStore) do(ctx context.Context, method, url, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	// Match @supabase/supabase-js: both apikey and Authorization Bearer (same key)
	req.Header.Set("apikey", s.SecretKey)
	req.Header.Set("Authorization", "Bearer "+s.SecretKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyStr := string(respBody)
		// 403 Invalid Compact JWS = anon key sent as Bearer; storage needs service_role
		if (resp.StatusCode == 400 || resp.StatusCode == 403) && strings.Contains(bodyStr, "Invalid Compact JWS") {
			return nil, fmt.Errorf("supabase storage requires the service_role key, not the anon key (raw body: %s)", bodyStr)
		}
		return nil, fmt.Errorf("supabase error: status %d body: %s", resp.StatusCode, bodyStr)
	}
	return respBody, nil
}

// Put uploads an object into the configured bucket, overwriting any object at path.
func (s *SupabaseStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	base, err := s.base()
	if err != nil {
		return "", err
	}
	path = strings.TrimLeft(path, "/")
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", base, s.Bucket, path)
	if _, err := s.do(ctx, http.MethodPost, url, contentType, data); err != nil {
		return "", err
	}
	return Ref(s.Bucket, path), nil
}

// ResolveBatch signs all storage refs with one request per bucket.
func (s *SupabaseStore) ResolveBatch(ctx context.Context, refs []string, ttl time.Duration) ([]string, error) {
	out := make([]string, len(refs))
	byBucket := groupRefs(refs, out)
	if len(byBucket) == 0 {
		return out, nil
	}
	base, err := s.base()
	if err != nil {
		return out, err
	}
	expiresIn := int(ttl / time.Second)
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	var firstErr error
	for bucket, idx := range byBucket {
		paths := make([]string, len(idx))
		for j, i := range idx {
			_, paths[j], _ = ParseRef(refs[i])
		}
		body, _ := json.Marshal(map[string]interface{}{
			"expiresIn": expiresIn,
			"paths":     paths,
		})
		respBody, err := s.do(ctx, http.MethodPost, fmt.Sprintf("%s/storage/v1/object/sign/%s", base, bucket), "application/json", body)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		var signed []supabaseSignedObject
		if err := json.Unmarshal(respBody, &signed); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("supabase response decode: %w", err)
			}
			continue
		}
		byPath := make(map[string]string, len(signed))
		for _, o := range signed {
			if o.Error != nil || o.SignedURL == "" {
				continue
			}
			byPath[o.Path] = absoluteSignedURL(base, o.SignedURL)
		}
		for j, i := range idx {
			out[i] = byPath[paths[j]]
		}
	}
	return out, firstErr
}

// Signed URLs come back relative to /storage/v1.
func absoluteSignedURL(base, signed string) string {
	if strings.HasPrefix(signed, "http://") || strings.HasPrefix(signed, "https://") {
		return signed
	}
	if !strings.HasPrefix(signed, "/") {
		signed = "/" + signed
	}
	if strings.HasPrefix(signed, "/storage/v1/") {
		return base + signed
	}
	return base + "/storage/v1" + signed
}
