package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"arcsync/internal/errdefs"
)

// ArchiveOptions configures the archive source.
type ArchiveOptions struct {
	BaseURL        string
	FileExt        string
	ConnectTimeout time.Duration
}

// ArchiveSource queries a metadata-indexed archive over HTTP. The catalog
// endpoint is an advancedsearch-style JSON API; item content is served from
// a per-identifier download path.
type ArchiveSource struct {
	baseURL string
	fileExt string
	client  *http.Client
}

// NewArchiveSource creates an archive source.
func NewArchiveSource(opts ArchiveOptions) (*ArchiveSource, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if opts.FileExt == "" {
		return nil, fmt.Errorf("file extension cannot be empty")
	}

	return &ArchiveSource{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		fileExt: strings.TrimLeft(opts.FileExt, "."),
		client:  &http.Client{Transport: newTransport(opts.ConnectTimeout)},
	}, nil
}

// queryResponse is the JSON shape of the catalog endpoint.
type queryResponse struct {
	Response struct {
		NumFound int        `json:"numFound"`
		Docs     []queryDoc `json:"docs"`
	} `json:"response"`
}

type queryDoc struct {
	Identifier string      `json:"identifier"`
	Updated    markerField `json:"oai_updatedate"`
}

// markerField tolerates the update-marker field arriving as a single string
// or as an array of revision timestamps; the last array element is the most
// recent one.
type markerField []string

func (m *markerField) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*m = markerField{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*m = markerField(many)
	return nil
}

func (m markerField) latest() string {
	if len(m) == 0 {
		return ""
	}
	return m[len(m)-1]
}

// Query lists the collection's items sorted by identifier.
func (s *ArchiveSource) Query(ctx context.Context, collection string, rows int) ([]Item, error) {
	q := url.Values{}
	q.Set("q", "collection:"+collection)
	q.Add("fl[]", "identifier")
	q.Add("fl[]", "oai_updatedate")
	q.Add("sort[]", "identifier asc")
	q.Set("rows", strconv.Itoa(rows))
	q.Set("page", "1")
	q.Set("output", "json")

	endpoint := s.baseURL + "/advancedsearch.php?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errdefs.New(errdefs.KindMalformed, "catalog.query", err).WithCollection(collection)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errdefs.New(errdefs.KindTransient, "catalog.query", err).WithCollection(collection)
	}
	defer resp.Body.Close()

	if err := classifyStatus("catalog.query", collection, resp.StatusCode); err != nil {
		return nil, err
	}

	var parsed queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errdefs.New(errdefs.KindMalformed, "catalog.query",
			fmt.Errorf("decode response: %w", err)).WithCollection(collection)
	}

	items := make([]Item, 0, len(parsed.Response.Docs))
	for _, doc := range parsed.Response.Docs {
		if doc.Identifier == "" {
			continue
		}
		items = append(items, Item{
			Identifier: doc.Identifier,
			Marker:     doc.Updated.latest(),
		})
	}

	return items, nil
}

// ArtifactName is "<identifier>.<ext>".
func (s *ArchiveSource) ArtifactName(item Item) string {
	return item.Identifier + "." + s.fileExt
}

// Open streams the item's artifact from the download endpoint.
func (s *ArchiveSource) Open(ctx context.Context, collection string, item Item) (io.ReadCloser, error) {
	endpoint := fmt.Sprintf("%s/download/%s/%s",
		s.baseURL, url.PathEscape(item.Identifier), url.PathEscape(s.ArtifactName(item)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// classifyStatus maps a catalog response status to the error taxonomy.
func classifyStatus(op, collection string, status int) error {
	var kind errdefs.Kind
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusNotFound:
		kind = errdefs.KindNotFound
	case status == http.StatusTooManyRequests:
		kind = errdefs.KindRateLimited
	case status >= 500:
		kind = errdefs.KindTransient
	default:
		kind = errdefs.KindMalformed
	}
	return errdefs.New(kind, op, fmt.Errorf("unexpected status %d", status)).WithCollection(collection)
}
