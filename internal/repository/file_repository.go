package repository

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"ikap-analysis/internal/models"
	"ikap-analysis/pkg/retry"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var fileColumns = []string{"file_id", "session_id", "category", "original_name", "file_size", "mime_type", "uploaded_at"}

type FileRepository struct {
	store
	logger *zap.Logger
}

func NewFileRepository(db *pgxpool.Pool, rc retry.Config, logger *zap.Logger) *FileRepository {
	return &FileRepository{store: store{db: db, retry: rc}, logger: logger}
}

// Create stores file metadata and, when data is non-nil, its bytes.
func (r *FileRepository) Create(ctx context.Context, f *models.File, data []byte) error {
	sql, args, err := squirrel.Insert("files").
		Columns(append(fileColumns, "file_data")...).
		Values(f.ID, f.SessionID, string(f.Category), f.OriginalName, f.SizeBytes, f.MimeType, f.UploadedAt, data).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// ListBySession returns the session's files in upload order. An empty
// category lists every category.
func (r *FileRepository) ListBySession(ctx context.Context, sessionID string, category models.Category) ([]models.File, error) {
	q := squirrel.Select(fileColumns...).
		From("files").
		Where(squirrel.Eq{"session_id": sessionID}).
		OrderBy("uploaded_at ASC").
		PlaceholderFormat(squirrel.Dollar)
	if category != "" {
		q = q.Where(squirrel.Eq{"category": string(category)})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	var files []models.File
	err = r.query(ctx, sql, args, func() { files = nil }, func(rows pgx.Rows) error {
		var f models.File
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Category, &f.OriginalName, &f.SizeBytes, &f.MimeType, &f.UploadedAt); err != nil {
			return err
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

func (r *FileRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	sql, args, err := squirrel.Select("COUNT(*)").
		From("files").
		Where(squirrel.Eq{"session_id": sessionID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.queryRow(ctx, sql, args, &n); err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return n, nil
}

// GetData returns the stored bytes of a file, nil if none were stored.
func (r *FileRepository) GetData(ctx context.Context, fileID string) ([]byte, error) {
	sql, args, err := squirrel.Select("file_data").
		From("files").
		Where(squirrel.Eq{"file_id": fileID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var data []byte
	if err := r.queryRow(ctx, sql, args, &data); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file data: %w", err)
	}
	return DecodeStoredBytes(data), nil
}

func (r *FileRepository) StoreData(ctx context.Context, fileID string, data []byte) error {
	sql, args, err := squirrel.Update("files").
		Set("file_data", data).
		Set("file_size", len(data)).
		Where(squirrel.Eq{"file_id": fileID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to store file data: %w", err)
	}
	return nil
}

func (r *FileRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	sql, args, err := squirrel.Delete("files").
		Where(squirrel.Eq{"session_id": sessionID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}
	return nil
}

// DecodeStoredBytes undoes the textual bytea hex form ("\x4142…") that
// older rows were written with. Anything else is returned unchanged.
func DecodeStoredBytes(data []byte) []byte {
	if len(data) < 2 || data[0] != '\\' || data[1] != 'x' {
		return data
	}
	decoded := make([]byte, hex.DecodedLen(len(data)-2))
	if _, err := hex.Decode(decoded, data[2:]); err != nil {
		return data
	}
	return decoded
}
