package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"ikap-analysis/internal/filestore"
	"ikap-analysis/internal/models"
	"ikap-analysis/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type FileWriter interface {
	Create(ctx context.Context, f *models.File, data []byte) error
}

var _ FileWriter = (*repository.FileRepository)(nil)

// FileService accepts session uploads.
type FileService struct {
	files   FileWriter
	cache   *filestore.SessionCache
	storer  filestore.Storer
	maxSize int64
	logger  *zap.Logger
}

// NewFileService creates the upload service. storer may be nil; when set,
// bytes are mirrored to it and the row keeps no file_data.
func NewFileService(files FileWriter, cache *filestore.SessionCache, storer filestore.Storer, maxSize int64, logger *zap.Logger) *FileService {
	return &FileService{files: files, cache: cache, storer: storer, maxSize: maxSize, logger: logger}
}

// Upload stores one session file.
func (s *FileService) Upload(ctx context.Context, sessionID string, category models.Category, fileName, mimeType string, r io.Reader) (*models.File, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	reader := r
	if s.maxSize > 0 {
		reader = io.LimitReader(r, s.maxSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("file %s exceeds %d bytes", fileName, s.maxSize)
	}

	name := NormalizeFileName(filepath.Base(fileName))
	if mimeType == "" {
		mimeType = guessMime(name)
	}

	f := &models.File{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		Category:     category,
		OriginalName: name,
		SizeBytes:    int64(len(data)),
		MimeType:     mimeType,
		UploadedAt:   time.Now().UTC(),
	}

	stored := data
	if s.storer != nil {
		if err := s.storer.Store(ctx, f.ID, mimeType, data); err != nil {
			return nil, fmt.Errorf("failed to upload file to storage: %w", err)
		}
		stored = nil
	}

	if err := s.files.Create(ctx, f, stored); err != nil {
		return nil, err
	}
	s.cache.Put(sessionID, f.ID, data)

	s.logger.Info("File uploaded",
		zap.String("session_id", sessionID),
		zap.String("category", string(category)),
		zap.String("file_id", f.ID),
		zap.String("file", name),
		zap.Int64("size", f.SizeBytes),
	)
	return f, nil
}

func guessMime(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".csv":
		return "text/csv"
	}
	return "application/octet-stream"
}
