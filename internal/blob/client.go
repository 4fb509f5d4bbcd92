// Package blob provides the object storage client used by the upload intake
// pipeline. The production implementation speaks the S3 REST API directly
// with SigV4 request signing, so any S3-compatible endpoint works.
package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultRequestTimeout = 5 * time.Minute

// Object identifies a stored blob and its public location.
type Object struct {
	Key string
	URL string
}

// Client streams uploads to object storage. Implementations must not buffer
// the whole body in memory.
type Client interface {
	Enabled() bool
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (Object, error)
}

// Config describes the S3-compatible endpoint and credentials.
type Config struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	Prefix         string
	PublicEndpoint string
	RequestTimeout time.Duration
}

type noopClient struct{}

func (noopClient) Enabled() bool { return false }

func (noopClient) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (Object, error) {
	return Object{}, fmt.Errorf("object storage is not configured")
}

// NewClient builds an S3 client from the configuration, or a disabled noop
// client when endpoint or bucket are missing.
func NewClient(cfg Config) Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if bucket == "" || endpoint == "" {
		return noopClient{}
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	if strings.Contains(endpoint, "://") {
		if parsed, err := url.Parse(endpoint); err == nil {
			if parsed.Scheme != "" {
				scheme = parsed.Scheme
			}
			endpoint = parsed.Host
		}
	}
	base := &url.URL{Scheme: scheme, Host: endpoint}
	if base.Host == "" {
		return noopClient{}
	}
	sanitized := cfg
	sanitized.Bucket = bucket
	return &s3Client{
		cfg:        sanitized,
		endpoint:   base,
		httpClient: &http.Client{Timeout: sanitized.RequestTimeout},
	}
}

type s3Client struct {
	cfg        Config
	endpoint   *url.URL
	httpClient *http.Client
}

func (c *s3Client) Enabled() bool { return true }

// Put streams the body to the bucket under the prefixed key. Objects are
// tagged with the declared content type and made publicly readable so the
// returned URL can be handed straight to clients.
func (c *s3Client) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (Object, error) {
	finalKey := c.applyPrefix(key)
	target := c.objectURL(finalKey)
	request, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), body)
	if err != nil {
		return Object{}, fmt.Errorf("create upload request: %w", err)
	}
	if size >= 0 {
		request.ContentLength = size
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	request.Header.Set("x-amz-acl", "public-read")
	if err := c.signRequest(request, unsignedPayloadHash); err != nil {
		return Object{}, err
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return Object{}, fmt.Errorf("upload object %s: %w", finalKey, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return Object{}, fmt.Errorf("upload object %s: unexpected status %d", finalKey, response.StatusCode)
	}
	return Object{Key: finalKey, URL: c.publicURL(finalKey)}, nil
}

func (c *s3Client) applyPrefix(key string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	prefix := strings.Trim(strings.TrimSpace(c.cfg.Prefix), "/")
	if prefix == "" {
		return trimmed
	}
	if trimmed == "" {
		return prefix
	}
	if trimmed == prefix || strings.HasPrefix(trimmed, prefix+"/") {
		return trimmed
	}
	return prefix + "/" + trimmed
}

func (c *s3Client) objectURL(finalKey string) *url.URL {
	basePath := strings.TrimRight(c.endpoint.Path, "/")
	path := "/" + strings.TrimLeft(c.cfg.Bucket, "/")
	if trimmedKey := strings.TrimLeft(finalKey, "/"); trimmedKey != "" {
		path += "/" + trimmedKey
	}
	if basePath != "" {
		path = basePath + path
	}
	u := *c.endpoint
	u.Path = path
	return &u
}

func (c *s3Client) publicURL(key string) string {
	base := strings.TrimSpace(c.cfg.PublicEndpoint)
	if base == "" {
		u := c.objectURL(key)
		return u.String()
	}
	trimmedBase := strings.TrimRight(base, "/")
	trimmedKey := strings.TrimLeft(key, "/")
	if trimmedKey == "" {
		return trimmedBase
	}
	return trimmedBase + "/" + url.PathEscape(trimmedKey)
}
