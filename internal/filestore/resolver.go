package filestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ikap-analysis/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// localPrefix marks ids of files that never left this service.
const localPrefix = "local-"

var ErrNoContent = errors.New("file content unavailable")

// FileSource is the persisted file index.
type FileSource interface {
	ListBySession(ctx context.Context, sessionID string, category models.Category) ([]models.File, error)
	GetData(ctx context.Context, fileID string) ([]byte, error)
}

type File struct {
	models.File
	Data []byte
}

type FileFailure struct {
	File models.File
	Err  error
}

// Resolved keeps the order of the file index.
type Resolved struct {
	Files  []File
	Failed []FileFailure
}

type Resolver struct {
	source   FileSource
	cache    *SessionCache
	provider Provider
	fetchers int
	logger   *zap.Logger
}

// NewResolver builds a resolver. provider may be nil.
func NewResolver(source FileSource, cache *SessionCache, provider Provider, fetchers int, logger *zap.Logger) *Resolver {
	if fetchers <= 0 {
		fetchers = 1
	}
	if cache == nil {
		cache = NewSessionCache()
	}
	return &Resolver{source: source, cache: cache, provider: provider, fetchers: fetchers, logger: logger}
}

func (r *Resolver) Cache() *SessionCache { return r.cache }

func (r *Resolver) List(ctx context.Context, sessionID string, category models.Category) ([]models.File, error) {
	files, err := r.source.ListBySession(ctx, sessionID, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list session files: %w", err)
	}
	return files, nil
}

// Resolve lists the session's files of category and loads their bytes.
func (r *Resolver) Resolve(ctx context.Context, sessionID string, category models.Category) (*Resolved, error) {
	files, err := r.List(ctx, sessionID, category)
	if err != nil {
		return nil, err
	}
	return r.Load(ctx, sessionID, files), nil
}

// Load fetches bytes for files, trying the session cache, the database and
// the provider in turn. A file that cannot be loaded is reported in Failed.
func (r *Resolver) Load(ctx context.Context, sessionID string, files []models.File) *Resolved {
	type slot struct {
		data []byte
		err  error
	}
	slots := make([]slot, len(files))

	var g errgroup.Group
	g.SetLimit(r.fetchers)
	for i, f := range files {
		g.Go(func() error {
			slots[i].data, slots[i].err = r.load(ctx, sessionID, f)
			return nil
		})
	}
	_ = g.Wait()

	res := &Resolved{}
	for i, f := range files {
		if slots[i].err != nil {
			r.logger.Warn("Failed to resolve file bytes",
				zap.String("session_id", sessionID),
				zap.String("file_id", f.ID),
				zap.String("file", f.OriginalName),
				zap.Error(slots[i].err),
			)
			res.Failed = append(res.Failed, FileFailure{File: f, Err: slots[i].err})
			continue
		}
		res.Files = append(res.Files, File{File: f, Data: slots[i].data})
	}
	return res
}

func (r *Resolver) load(ctx context.Context, sessionID string, f models.File) ([]byte, error) {
	if data, ok := r.cache.Get(sessionID, f.ID); ok {
		return data, nil
	}

	data, dbErr := r.source.GetData(ctx, f.ID)
	if dbErr == nil && len(data) > 0 {
		r.cache.Put(sessionID, f.ID, data)
		return data, nil
	}

	if r.provider == nil || strings.HasPrefix(f.ID, localPrefix) {
		if dbErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoContent, dbErr)
		}
		return nil, ErrNoContent
	}

	data, err := r.provider.Fetch(ctx, f.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoContent, err)
	}
	if len(data) == 0 {
		return nil, ErrNoContent
	}
	r.cache.Put(sessionID, f.ID, data)
	return data, nil
}
