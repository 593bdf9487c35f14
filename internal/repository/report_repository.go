package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ikap-analysis/internal/models"
	"ikap-analysis/pkg/retry"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// categoryColumns names the report columns owned by one category.
type categoryColumns struct {
	status, text, structured, missing, completedAt string
}

var columnsByCategory = map[models.Category]categoryColumns{
	models.CategoryStatements: {"status", "report_text", "report_structured", "missing_periods", "completed_at"},
	models.CategoryTaxes:      {"tax_status", "tax_report_text", "tax_report_structured", "tax_missing_periods", "tax_completed_at"},
	models.CategoryFinancial:  {"fs_status", "fs_report_text", "fs_report_structured", "fs_missing_periods", "fs_completed_at"},
}

var reportColumns = []string{
	"session_id",
	"company_bin", "amount", "term", "purpose", "name", "email", "phone", "comment",
	"status", "report_text", "report_structured", "missing_periods", "completed_at",
	"tax_status", "tax_report_text", "tax_report_structured", "tax_missing_periods", "tax_completed_at",
	"fs_status", "fs_report_text", "fs_report_structured", "fs_missing_periods", "fs_completed_at",
	"files_count", "files_data", "created_at", "updated_at",
}

type ReportRepository struct {
	store
	logger *zap.Logger
}

func NewReportRepository(db *pgxpool.Pool, rc retry.Config, logger *zap.Logger) *ReportRepository {
	return &ReportRepository{store: store{db: db, retry: rc}, logger: logger}
}

func (r *ReportRepository) Get(ctx context.Context, sessionID string) (*models.Report, error) {
	sql, args, err := squirrel.Select(reportColumns...).
		From("reports").
		Where(squirrel.Eq{"session_id": sessionID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var row reportRow
	if err := r.queryRow(ctx, sql, args, row.dest()...); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return row.model(), nil
}

func (r *ReportRepository) List(ctx context.Context, limit, offset int) ([]*models.Report, error) {
	sql, args, err := squirrel.Select(reportColumns...).
		From("reports").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var reports []*models.Report
	err = r.query(ctx, sql, args, func() { reports = nil }, func(rows pgx.Rows) error {
		var row reportRow
		if err := rows.Scan(row.dest()...); err != nil {
			return err
		}
		reports = append(reports, row.model())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// Upsert writes exactly the fields set in u, creating the row if needed.
// Columns of other categories are never touched.
func (r *ReportRepository) Upsert(ctx context.Context, sessionID string, u models.ReportUpdate) error {
	sql, args, err := buildUpsert(sessionID, u, time.Now().UTC())
	if err != nil {
		return err
	}
	if _, err := r.exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to upsert report: %w", err)
	}
	return nil
}

func (r *ReportRepository) Delete(ctx context.Context, sessionID string) error {
	sql, args, err := squirrel.Delete("reports").
		Where(squirrel.Eq{"session_id": sessionID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return nil
}

func buildUpsert(sessionID string, u models.ReportUpdate, now time.Time) (string, []any, error) {
	cols := []string{"session_id"}
	vals := []any{sessionID}
	set := func(col string, v any) {
		cols = append(cols, col)
		vals = append(vals, v)
	}

	if u.Category != "" {
		cc, ok := columnsByCategory[u.Category]
		if !ok {
			return "", nil, fmt.Errorf("unknown category %q", u.Category)
		}
		st := u.State
		if st.Status != nil {
			set(cc.status, string(*st.Status))
			if *st.Status == models.StatusCompleted || *st.Status == models.StatusError {
				set(cc.completedAt, now)
			}
		}
		if st.Text != nil {
			set(cc.text, *st.Text)
		}
		if st.Structured != nil {
			set(cc.structured, *st.Structured)
		}
		if st.MissingPeriods != nil {
			set(cc.missing, models.JoinPeriods(*st.MissingPeriods))
		}
	}

	if a := u.Applicant; a != nil {
		set("company_bin", a.CompanyBIN)
		set("amount", a.Amount)
		set("term", a.Term)
		set("purpose", a.Purpose)
		set("name", a.Name)
		set("email", a.Email)
		set("phone", a.Phone)
		set("comment", a.Comment)
	}
	if u.FilesCount != nil {
		set("files_count", *u.FilesCount)
	}
	if u.FilesData != nil {
		set("files_data", *u.FilesData)
	}
	set("updated_at", now)

	suffix := "ON CONFLICT (session_id) DO UPDATE SET "
	for i, c := range cols[1:] {
		if i > 0 {
			suffix += ", "
		}
		suffix += c + " = EXCLUDED." + c
	}

	return squirrel.Insert("reports").
		Columns(cols...).
		Values(vals...).
		Suffix(suffix).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
}

type reportRow struct {
	sessionID                                          string
	bin, amount, term, purpose, name, email, phone, cm *string
	states                                             [3]stateRow
	filesCount                                         int
	filesData                                          *string
	createdAt, updatedAt                               time.Time
}

type stateRow struct {
	status, text, structured, missing *string
	completedAt                       *time.Time
}

func (r *reportRow) dest() []any {
	d := []any{&r.sessionID, &r.bin, &r.amount, &r.term, &r.purpose, &r.name, &r.email, &r.phone, &r.cm}
	for i := range r.states {
		s := &r.states[i]
		d = append(d, &s.status, &s.text, &s.structured, &s.missing, &s.completedAt)
	}
	return append(d, &r.filesCount, &r.filesData, &r.createdAt, &r.updatedAt)
}

func (r *reportRow) model() *models.Report {
	rep := &models.Report{
		SessionID: r.sessionID,
		Applicant: models.Applicant{
			CompanyBIN: deref(r.bin),
			Amount:     deref(r.amount),
			Term:       deref(r.term),
			Purpose:    deref(r.purpose),
			Name:       deref(r.name),
			Email:      deref(r.email),
			Phone:      deref(r.phone),
			Comment:    deref(r.cm),
		},
		FilesCount: r.filesCount,
		FilesData:  r.filesData,
		CreatedAt:  r.createdAt,
		UpdatedAt:  r.updatedAt,
	}
	for i, c := range models.Categories {
		s := r.states[i]
		*rep.State(c) = models.CategoryState{
			Status:         models.Status(deref(s.status)),
			Text:           s.text,
			Structured:     s.structured,
			MissingPeriods: models.SplitPeriods(s.missing),
			CompletedAt:    s.completedAt,
		}
	}
	return rep
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
