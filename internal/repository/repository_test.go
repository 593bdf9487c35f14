package repository

import (
	"context"
	"errors"
	"strings"
	"syscall"
	"testing"
	"time"

	"ikap-analysis/internal/models"
	"ikap-analysis/pkg/retry"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct{ err error }

func (r fakeRow) Scan(dest ...any) error { return r.err }

type fakeDB struct {
	execErrs []error
	rowErrs  []error
	execs    int
	rows     int
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs++
	if len(f.execErrs) > 0 {
		err := f.execErrs[0]
		f.execErrs = f.execErrs[1:]
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.rows++
	if len(f.rowErrs) > 0 {
		err := f.rowErrs[0]
		f.rowErrs = f.rowErrs[1:]
		return fakeRow{err: err}
	}
	return fakeRow{}
}

var fastRetry = retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func TestStoreRetriesTransientErrors(t *testing.T) {
	db := &fakeDB{execErrs: []error{syscall.ECONNRESET, &pgconn.PgError{Code: "57P01"}}}
	s := store{db: db, retry: fastRetry}

	_, err := s.exec(context.Background(), "UPDATE reports SET status = $1", "error")
	require.NoError(t, err)
	assert.Equal(t, 3, db.execs)
}

func TestStoreDoesNotRetryConstraintErrors(t *testing.T) {
	db := &fakeDB{execErrs: []error{&pgconn.PgError{Code: "23505"}}}
	s := store{db: db, retry: fastRetry}

	_, err := s.exec(context.Background(), "INSERT INTO files DEFAULT VALUES")
	require.Error(t, err)
	assert.Equal(t, 1, db.execs)
}

func TestStoreQueryRowNotFound(t *testing.T) {
	db := &fakeDB{rowErrs: []error{pgx.ErrNoRows}}
	s := store{db: db, retry: fastRetry}

	err := s.queryRow(context.Background(), "SELECT 1", nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, db.rows)
}

func TestBuildUpsert(t *testing.T) {
	now := time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC)
	status := models.StatusGenerating
	missing := []string{"2025", "2024"}

	sql, args, err := buildUpsert("s1", models.ReportUpdate{
		Category: models.CategoryTaxes,
		State:    models.CategoryUpdate{Status: &status, MissingPeriods: &missing},
	}, now)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "INSERT INTO reports (session_id,tax_status,tax_missing_periods,updated_at) VALUES ($1,$2,$3,$4)"), sql)
	assert.Contains(t, sql, "ON CONFLICT (session_id) DO UPDATE SET tax_status = EXCLUDED.tax_status, tax_missing_periods = EXCLUDED.tax_missing_periods, updated_at = EXCLUDED.updated_at")
	assert.NotContains(t, sql, "report_text")
	assert.NotContains(t, sql, "fs_")
	require.Len(t, args, 4)
	assert.Equal(t, "s1", args[0])
	assert.Equal(t, "generating", args[1])
	assert.Equal(t, "2025,2024", *(args[2].(*string)))
}

func TestBuildUpsertTerminalStatus(t *testing.T) {
	now := time.Now().UTC()
	status := models.StatusCompleted
	text := "готово"
	none := []string{}

	sql, args, err := buildUpsert("s1", models.ReportUpdate{
		Category: models.CategoryFinancial,
		State:    models.CategoryUpdate{Status: &status, Text: &text, MissingPeriods: &none},
	}, now)
	require.NoError(t, err)

	assert.Contains(t, sql, "fs_completed_at")
	assert.Contains(t, sql, "fs_report_text")
	assert.Nil(t, args[4].(*string))

	_, _, err = buildUpsert("s1", models.ReportUpdate{Category: "bogus"}, now)
	assert.Error(t, err)
}

func TestBuildUpsertApplicant(t *testing.T) {
	sql, args, err := buildUpsert("s1", models.ReportUpdate{
		Applicant: &models.Applicant{CompanyBIN: "123456789012", Amount: "50 млн KZT"},
	}, time.Now())
	require.NoError(t, err)
	assert.Contains(t, sql, "company_bin")
	assert.NotContains(t, sql, " status")
	assert.Len(t, args, 10)
}

func TestDecodeStoredBytes(t *testing.T) {
	assert.Equal(t, []byte("AB"), DecodeStoredBytes([]byte(`\x4142`)))
	assert.Equal(t, []byte(`\xZZ`), DecodeStoredBytes([]byte(`\xZZ`)))
	assert.Equal(t, []byte("%PDF"), DecodeStoredBytes([]byte("%PDF")))
	assert.Nil(t, DecodeStoredBytes(nil))
}
