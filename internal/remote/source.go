// Package remote provides the source backends arcsync syncs from: a
// metadata-indexed archive queried over HTTP, and an S3-compatible bucket
// listing. The sync engine consumes the Source interface and never touches
// the transports directly.
package remote

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"
)

// Item is one remote entity: a stable identifier plus an opaque, ordered
// update marker (usually a timestamp). Markers are compared by the planner
// only; an unparseable marker is valid data, not an error.
type Item struct {
	Identifier string
	Marker     string
}

// Source lists a collection's items and opens their content for download.
type Source interface {
	// Query returns at most rows items for the collection, in the
	// server-provided order (deterministically sorted by identifier where
	// the backend supports it). Zero items is a valid result.
	Query(ctx context.Context, collection string, rows int) ([]Item, error)

	// ArtifactName returns the local file name for an item, relative to
	// the collection's working directory.
	ArtifactName(item Item) string

	// Open returns a reader for the item's content. The caller owns the
	// destination file and closes the reader.
	Open(ctx context.Context, collection string, item Item) (io.ReadCloser, error)
}

// newTransport builds the HTTP transport shared by the backends, with an
// explicit connect timeout. Total request duration is bounded by the
// caller's context, not the client, so long downloads are not cut off by a
// catalog-sized timeout.
func newTransport(connectTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
