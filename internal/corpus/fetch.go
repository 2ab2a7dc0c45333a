package corpus

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/transport"
)

// HTTPFetcher fetches http and https locations.
type HTTPFetcher struct {
	client *transport.HTTPClient
}

// NewHTTPFetcher creates a fetcher backed by the shared HTTP client.
func NewHTTPFetcher(client *transport.HTTPClient) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	return f.client.Get(ctx, location)
}

// FileFetcher reads local paths and file:// URLs.
type FileFetcher struct{}

// NewFileFetcher creates a FileFetcher.
func NewFileFetcher() *FileFetcher {
	return &FileFetcher{}
}

// Fetch implements Fetcher.
func (f *FileFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := location
	if strings.HasPrefix(location, "file://") {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse file url: %w", err)
		}
		p = u.Path
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, p)
		}
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

// S3Fetcher reads s3://bucket/key locations. Keys ending in .gz or .gzip
// are decompressed.
type S3Fetcher struct {
	client s3iface.S3API
}

// NewS3FetcherWithClient creates an S3Fetcher around an existing client.
func NewS3FetcherWithClient(client s3iface.S3API) *S3Fetcher {
	return &S3Fetcher{client: client}
}

// Fetch implements Fetcher.
func (f *S3Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := ParseS3Location(location)
	if err != nil {
		return nil, err
	}

	result, err := f.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == s3.ErrCodeNoSuchBucket) {
			return nil, fmt.Errorf("%w: s3://%s/%s", domain.ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to download S3 object %s/%s: %w", bucket, key, err)
	}
	defer result.Body.Close()

	var reader io.Reader = result.Body
	if strings.HasSuffix(key, ".gz") || strings.HasSuffix(key, ".gzip") {
		gz, err := gzip.NewReader(result.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader for %s/%s: %w", bucket, key, err)
		}
		defer gz.Close()
		reader = gz
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read content from %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// ParseS3Location splits s3://bucket/key into its parts.
func ParseS3Location(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 location: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", domain.NewValidationError("location", "expected s3://bucket/key")
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", domain.NewValidationError("location", "missing object key")
	}
	return u.Host, key, nil
}

// SchemeFetcher dispatches on the location's URL scheme. Locations without
// a scheme, and file:// URLs, go to the fallback.
type SchemeFetcher struct {
	fallback Fetcher
	schemes  map[string]Fetcher
}

// NewSchemeFetcher creates a SchemeFetcher.
func NewSchemeFetcher(fallback Fetcher, schemes map[string]Fetcher) *SchemeFetcher {
	m := make(map[string]Fetcher, len(schemes))
	for k, v := range schemes {
		m[strings.ToLower(k)] = v
	}
	return &SchemeFetcher{fallback: fallback, schemes: m}
}

// Fetch implements Fetcher.
func (f *SchemeFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	scheme := ""
	if u, err := url.Parse(location); err == nil {
		scheme = strings.ToLower(u.Scheme)
	}
	// Single letter schemes are Windows drive letters.
	if scheme == "" || scheme == "file" || len(scheme) == 1 {
		if f.fallback == nil {
			return nil, domain.NewValidationError("location", "no fetcher for local paths")
		}
		return f.fallback.Fetch(ctx, location)
	}
	fetcher, ok := f.schemes[scheme]
	if !ok {
		return nil, domain.NewValidationError("location", fmt.Sprintf("unsupported scheme %q", scheme))
	}
	return fetcher.Fetch(ctx, location)
}
