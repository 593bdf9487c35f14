package repository

import (
	"context"
	"fmt"

	"ikap-analysis/internal/models"
	"ikap-analysis/pkg/retry"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type MessageRepository struct {
	store
	logger *zap.Logger
}

func NewMessageRepository(db *pgxpool.Pool, rc retry.Config, logger *zap.Logger) *MessageRepository {
	return &MessageRepository{store: store{db: db, retry: rc}, logger: logger}
}

func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	sql, args, err := squirrel.Insert("messages").
		Columns("session_id", "role", "content", "created_at").
		Values(m.SessionID, string(m.Role), m.Content, m.CreatedAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListBySession returns the conversation in chronological order.
func (r *MessageRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Message, error) {
	sql, args, err := squirrel.Select("session_id", "role", "content", "created_at").
		From("messages").
		Where(squirrel.Eq{"session_id": sessionID}).
		OrderBy("created_at ASC", "id ASC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	err = r.query(ctx, sql, args, func() { messages = nil }, func(rows pgx.Rows) error {
		var m models.Message
		if err := rows.Scan(&m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return err
		}
		messages = append(messages, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	sql, args, err := squirrel.Delete("messages").
		Where(squirrel.Eq{"session_id": sessionID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}
