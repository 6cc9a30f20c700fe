package remote

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"arcsync/internal/errdefs"
)

// BucketOptions configures the bucket source.
type BucketOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Prefix    string
}

// BucketSource treats an S3-compatible bucket as a collection: the bucket
// named after the collection holds the items, one object per item. Object
// listings are lexicographic by key, which keeps catalogs deterministic.
type BucketSource struct {
	client *minio.Client
	prefix string
}

// NewBucketSource creates a bucket source.
func NewBucketSource(opts BucketOptions) (*BucketSource, error) {
	endpoint, err := cleanEndpoint(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, err
	}

	return &BucketSource{client: client, prefix: opts.Prefix}, nil
}

// cleanEndpoint removes protocol and path from endpoint URL to get host:port format
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	// If endpoint doesn't have protocol, add http:// for parsing
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		// Check if it's already in host:port format
		if strings.Contains(endpoint, "/") {
			return "", fmt.Errorf("endpoint contains path but no protocol")
		}
		return endpoint, nil
	}

	// Parse URL to extract host and port
	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %w", err)
	}

	// Check if path is not empty (indicating a full URL with path)
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", fmt.Errorf("endpoint URL cannot have paths, only host:port is allowed (got path: %s)", parsedURL.Path)
	}

	// Return host:port format
	return parsedURL.Host, nil
}

// Query lists up to rows objects from the collection's bucket.
func (s *BucketSource) Query(ctx context.Context, collection string, rows int) ([]Item, error) {
	exists, err := s.client.BucketExists(ctx, collection)
	if err != nil {
		return nil, classifyBucketErr("catalog.query", collection, err)
	}
	if !exists {
		return nil, errdefs.New(errdefs.KindNotFound, "catalog.query",
			fmt.Errorf("bucket does not exist")).WithCollection(collection)
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := make([]Item, 0, rows)
	for obj := range s.client.ListObjects(listCtx, collection, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, classifyBucketErr("catalog.query", collection, obj.Err)
		}
		items = append(items, Item{
			Identifier: obj.Key,
			Marker:     obj.LastModified.UTC().Format(time.RFC3339),
		})
		if len(items) >= rows {
			break
		}
	}

	return items, nil
}

// ArtifactName is the object key itself; keys already carry their extension
// and may include subdirectories.
func (s *BucketSource) ArtifactName(item Item) string {
	return item.Identifier
}

// Open streams the object's content.
func (s *BucketSource) Open(ctx context.Context, collection string, item Item) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, collection, item.Identifier, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}

	// GetObject is lazy; Stat forces the request so missing objects fail
	// here instead of on first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}

	return obj, nil
}

// classifyBucketErr maps a minio error to the error taxonomy.
func classifyBucketErr(op, collection string, err error) error {
	resp := minio.ToErrorResponse(err)
	var kind errdefs.Kind
	switch {
	case resp.StatusCode == 404:
		kind = errdefs.KindNotFound
	case resp.StatusCode == 429:
		kind = errdefs.KindRateLimited
	case resp.StatusCode >= 500:
		kind = errdefs.KindTransient
	case resp.StatusCode != 0:
		kind = errdefs.KindMalformed
	default:
		// No HTTP response at all: dial/timeout class failures.
		kind = errdefs.KindTransient
	}
	return errdefs.New(kind, op, err).WithCollection(collection)
}
