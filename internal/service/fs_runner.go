package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ikap-analysis/internal/backend"
	"ikap-analysis/internal/models"
	"ikap-analysis/internal/render"

	"go.uber.org/zap"
)

const pdfRequired = "Для автоматического анализа требуется формат PDF."

// FSAnalyzer runs the financial statements analysis job.
type FSAnalyzer interface {
	Analyze(ctx context.Context, files []backend.File) (*backend.FSAnalysis, error)
}

var _ FSAnalyzer = (*backend.FSClient)(nil)

type FSRunner struct {
	files    FileResolver
	analyzer FSAnalyzer
	logger   *zap.Logger
}

func NewFSRunner(files FileResolver, analyzer FSAnalyzer, logger *zap.Logger) *FSRunner {
	return &FSRunner{files: files, analyzer: analyzer, logger: logger}
}

func (r *FSRunner) Category() models.Category { return models.CategoryFinancial }

// fsStructured is the stored table form of the report.
type fsStructured struct {
	Table   []backend.IndicatorRow `json:"table"`
	Years   []string               `json:"years"`
	Summary string                 `json:"summary"`
}

func (r *FSRunner) Run(ctx context.Context, job Job) (Result, error) {
	log := job.logger(r.logger)

	listed, err := r.files.List(ctx, job.SessionID, models.CategoryFinancial)
	if err != nil {
		return Result{}, err
	}
	if len(listed) == 0 {
		return Result{}, inputErrorf(ErrNoFiles, "Файлы финансовой отчетности не найдены")
	}

	var pdfs, others []models.File
	for _, f := range listed {
		if isPDF(f) {
			pdfs = append(pdfs, f)
		} else {
			others = append(others, f)
		}
	}
	otherNames := strings.Join(fileNames(others), ", ")

	if len(pdfs) == 0 {
		return Result{}, inputErrorf(nil, "Файлы некорректного формата: %s. %s", otherNames, pdfRequired)
	}
	if r.analyzer == nil {
		return Result{}, inputErrorf(nil, "Для анализа финансовой отчетности настройте FINANCIAL_PDF_SERVICE_URL.")
	}

	resolved := r.files.Load(ctx, job.SessionID, pdfs)
	if len(resolved.Files) == 0 {
		pdfNames := strings.Join(fileNames(pdfs), ", ")
		if len(others) > 0 {
			return Result{}, inputErrorf(ErrNoFiles, "Не удалось обработать PDF файлы: %s. Также найдены файлы некорректного формата: %s. %s", pdfNames, otherNames, pdfRequired)
		}
		return Result{}, inputErrorf(ErrNoFiles, "Не удалось обработать файлы финансовой отчетности: %s. Проверьте формат файлов (требуется PDF).", pdfNames)
	}

	files := make([]backend.File, len(resolved.Files))
	names := make([]string, len(resolved.Files))
	for i, f := range resolved.Files {
		names[i] = NormalizeFileName(f.OriginalName)
		files[i] = backend.File{Name: names[i], MimeType: "application/pdf", Data: f.Data}
	}

	log.Info("Sending financial statements for analysis", zap.Int("files", len(files)))
	analysis, err := r.analyzer.Analyze(ctx, files)
	if err != nil {
		if backend.IsTimeout(err) {
			return Result{}, err
		}
		return Result{}, inputErrorf(err, "Ошибка анализа финансовой отчетности: %v", err)
	}

	combinedName := names[0]
	if len(names) > 1 {
		combinedName = fmt.Sprintf("Отчёт (%d файлов): %s", len(names), strings.Join(names, ", "))
	}

	report := render.FinancialStatementsMarkdown(analysis.Summary, analysis.Table, analysis.Years)
	text := fmt.Sprintf("%s\nОТЧЕТ 1 из 1\nФайл: %s\n%s\n\n%s", blockRule, combinedName, blockRule, report)
	text = render.NormalizeMarkdownTables(text)

	if len(resolved.Failed) > 0 {
		failed := make([]string, len(resolved.Failed))
		for i, f := range resolved.Failed {
			failed[i] = NormalizeFileName(f.File.OriginalName)
		}
		text += fmt.Sprintf("\n\n⚠️ Не удалось получить файлы (не проанализированы): %s.", strings.Join(failed, ", "))
	}
	if len(others) > 0 {
		text += fmt.Sprintf("\n\n⚠️ Файлы некорректного формата (не проанализированы): %s. %s", otherNames, pdfRequired)
	}

	table := analysis.Table
	if table == nil {
		table = []backend.IndicatorRow{}
	}
	years := []string(analysis.Years)
	if years == nil {
		years = []string{}
	}
	data, err := json.Marshal(fsStructured{Table: table, Years: years, Summary: analysis.Summary})
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode financial statements table: %w", err)
	}
	structured := string(data)

	return Result{Text: text, Structured: &structured}, nil
}
