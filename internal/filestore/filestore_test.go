package filestore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ikap-analysis/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	files []models.File
	data  map[string][]byte
	err   error
}

func (f *fakeSource) ListBySession(ctx context.Context, sessionID string, category models.Category) ([]models.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.File
	for _, file := range f.files {
		if file.SessionID == sessionID && (category == "" || file.Category == category) {
			out = append(out, file)
		}
	}
	return out, nil
}

func (f *fakeSource) GetData(ctx context.Context, fileID string) ([]byte, error) {
	return f.data[fileID], nil
}

type fakeProvider struct {
	mu    sync.Mutex
	data  map[string][]byte
	calls []string
}

func (p *fakeProvider) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fileID)
	if d, ok := p.data[fileID]; ok {
		return d, nil
	}
	return nil, ErrNotFound
}

func file(id string, cat models.Category) models.File {
	return models.File{ID: id, SessionID: "s1", Category: cat, OriginalName: id + ".pdf"}
}

func TestResolverOrderAndFallbacks(t *testing.T) {
	src := &fakeSource{
		files: []models.File{
			file("cached", models.CategoryTaxes),
			file("db", models.CategoryTaxes),
			file("remote", models.CategoryTaxes),
			file("local-gone", models.CategoryTaxes),
			file("other", models.CategoryFinancial),
		},
		data: map[string][]byte{"db": []byte("db-bytes")},
	}
	cache := NewSessionCache()
	cache.Put("s1", "cached", []byte("mem-bytes"))
	prov := &fakeProvider{data: map[string][]byte{"remote": []byte("remote-bytes"), "local-gone": []byte("never")}}

	r := NewResolver(src, cache, prov, 2, zap.NewNop())
	res, err := r.Resolve(context.Background(), "s1", models.CategoryTaxes)
	require.NoError(t, err)

	require.Len(t, res.Files, 3)
	assert.Equal(t, "cached", res.Files[0].ID)
	assert.Equal(t, []byte("mem-bytes"), res.Files[0].Data)
	assert.Equal(t, []byte("db-bytes"), res.Files[1].Data)
	assert.Equal(t, []byte("remote-bytes"), res.Files[2].Data)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, "local-gone", res.Failed[0].File.ID)
	assert.ErrorIs(t, res.Failed[0].Err, ErrNoContent)
	assert.Equal(t, []string{"remote"}, prov.calls)

	data, ok := cache.Get("s1", "remote")
	assert.True(t, ok)
	assert.Equal(t, []byte("remote-bytes"), data)
}

func TestResolverListError(t *testing.T) {
	r := NewResolver(&fakeSource{err: errors.New("db down")}, nil, nil, 1, zap.NewNop())
	_, err := r.Resolve(context.Background(), "s1", models.CategoryStatements)
	assert.Error(t, err)
}

func TestSessionCacheDrop(t *testing.T) {
	c := NewSessionCache()
	c.Put("a", "f1", []byte("x"))
	c.Put("b", "f1", []byte("y"))
	assert.Equal(t, 2, c.Len())

	c.Drop("a")
	_, ok := c.Get("a", "f1")
	assert.False(t, ok)
	_, ok = c.Get("b", "f1")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestHTTPProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if r.URL.Path != "/files/file-1/content" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, "%PDF-1.7")
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/", "key", time.Second)

	data, err := p.Fetch(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), data)

	_, err = p.Fetch(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
