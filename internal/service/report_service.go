package service

import (
	"context"
	"fmt"

	"ikap-analysis/internal/filestore"
	"ikap-analysis/internal/models"
	"ikap-analysis/internal/render"
	"ikap-analysis/internal/repository"

	"go.uber.org/zap"
)

type ReportReader interface {
	Get(ctx context.Context, sessionID string) (*models.Report, error)
	List(ctx context.Context, limit, offset int) ([]*models.Report, error)
	Delete(ctx context.Context, sessionID string) error
}

type SessionDeleter interface {
	DeleteBySession(ctx context.Context, sessionID string) error
}

var (
	_ ReportReader   = (*repository.ReportRepository)(nil)
	_ SessionDeleter = (*repository.FileRepository)(nil)
	_ SessionDeleter = (*repository.MessageRepository)(nil)
)

type ReportService struct {
	reports  ReportReader
	files    SessionDeleter
	messages SessionDeleter
	cache    *filestore.SessionCache
	logger   *zap.Logger
}

func NewReportService(reports ReportReader, files, messages SessionDeleter, cache *filestore.SessionCache, logger *zap.Logger) *ReportService {
	return &ReportService{reports: reports, files: files, messages: messages, cache: cache, logger: logger}
}

// Get returns the session report. A statements text that holds a serialized
// summary is re-rendered on the way out.
func (s *ReportService) Get(ctx context.Context, sessionID string) (*models.Report, error) {
	report, err := s.reports.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	heal(report)
	return report, nil
}

func (s *ReportService) List(ctx context.Context, limit, offset int) ([]*models.Report, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	reports, err := s.reports.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	for _, r := range reports {
		heal(r)
	}
	return reports, nil
}

// Delete removes every trace of a session: report, files, messages and cached bytes.
func (s *ReportService) Delete(ctx context.Context, sessionID string) error {
	if err := s.reports.Delete(ctx, sessionID); err != nil {
		return err
	}
	if s.files != nil {
		if err := s.files.DeleteBySession(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete session files: %w", err)
		}
	}
	if s.messages != nil {
		if err := s.messages.DeleteBySession(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete session messages: %w", err)
		}
	}
	if s.cache != nil {
		s.cache.Drop(sessionID)
	}
	s.logger.Info("Session deleted", zap.String("session_id", sessionID))
	return nil
}

func heal(r *models.Report) {
	st := &r.Statements
	if st.Text == nil && st.Structured == nil {
		return
	}
	var text string
	if st.Text != nil {
		text = *st.Text
	}
	healed := render.EnsureHumanReadable(text, st.Structured)
	st.Text = &healed
}
