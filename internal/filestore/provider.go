package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

var ErrNotFound = errors.New("file not found")

// Provider is a secondary source of file bytes, typically the service the
// file was originally uploaded to.
type Provider interface {
	Fetch(ctx context.Context, fileID string) ([]byte, error)
}

// Storer is implemented by providers that also accept uploads.
type Storer interface {
	Store(ctx context.Context, fileID, contentType string, data []byte) error
}

// HTTPProvider downloads GET {base}/files/{id}/content with a bearer key.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/files/"+url.PathEscape(fileID)+"/content", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch file %s: status %d", fileID, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// GCSProvider keeps file bytes as objects "<prefix>/<fileID>" in a bucket.
type GCSProvider struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSProvider uses Application Default Credentials.
func NewGCSProvider(ctx context.Context, bucket, prefix string) (*GCSProvider, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSProvider{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (p *GCSProvider) objectName(fileID string) string {
	if p.prefix == "" {
		return fileID
	}
	return path.Join(p.prefix, fileID)
}

func (p *GCSProvider) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	r, err := p.client.Bucket(p.bucket).Object(p.objectName(fileID)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return data, nil
}

func (p *GCSProvider) Store(ctx context.Context, fileID, contentType string, data []byte) error {
	w := p.client.Bucket(p.bucket).Object(p.objectName(fileID)).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write GCS object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

func (p *GCSProvider) Close() error {
	return p.client.Close()
}
