package service

import (
	"context"
	"fmt"
	"strings"

	"ikap-analysis/internal/backend"
	"ikap-analysis/internal/filestore"
	"ikap-analysis/internal/models"
	"ikap-analysis/internal/render"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var blockRule = strings.Repeat("=", 80)

// TaxAnalyzer processes a batch of tax declarations.
type TaxAnalyzer interface {
	Process(ctx context.Context, files []backend.File, comment string) (*backend.TaxResponse, error)
}

var _ TaxAnalyzer = (*backend.TaxClient)(nil)

type TaxRunner struct {
	files     FileResolver
	analyzer  TaxAnalyzer
	batchSize int
	parallel  int
	logger    *zap.Logger
}

// NewTaxRunner builds the tax declaration runner. analyzer may be nil when the
// tax service is not configured; runs then fail with a descriptive message.
func NewTaxRunner(files FileResolver, analyzer TaxAnalyzer, batchSize int, logger *zap.Logger) *TaxRunner {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &TaxRunner{files: files, analyzer: analyzer, batchSize: batchSize, parallel: 2, logger: logger}
}

func (r *TaxRunner) Category() models.Category { return models.CategoryTaxes }

type taxReport struct {
	fileName string
	analysis string
}

type taxBatch struct {
	files    []backend.File
	response *backend.TaxResponse
	err      error
}

func (r *TaxRunner) Run(ctx context.Context, job Job) (Result, error) {
	log := job.logger(r.logger)

	listed, err := r.files.List(ctx, job.SessionID, models.CategoryTaxes)
	if err != nil {
		return Result{}, err
	}
	if len(listed) == 0 {
		return Result{}, inputErrorf(ErrNoFiles, "Файлы налоговой отчетности не найдены")
	}
	if r.analyzer == nil {
		return Result{}, inputErrorf(nil, "Для анализа налоговых деклараций настройте TAX_PDF_SERVICE_URL.")
	}

	resolved := r.files.Load(ctx, job.SessionID, listed)
	var parseErrors, analysisErrors []string
	for _, f := range resolved.Failed {
		parseErrors = append(parseErrors, fmt.Sprintf("Ошибка получения файла \"%s\": %v", NormalizeFileName(f.File.OriginalName), f.Err))
	}
	if len(resolved.Files) == 0 {
		return Result{}, inputErrorf(ErrNoFiles, "Нет файлов для анализа:\n%s", strings.Join(parseErrors, "\n"))
	}

	batches := r.batches(resolved)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for i := range batches {
		b := &batches[i]
		g.Go(func() error {
			b.response, b.err = r.analyzer.Process(gctx, b.files, job.Applicant.Comment)
			if backend.IsTimeout(b.err) {
				return b.err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var reports []taxReport
	for i, b := range batches {
		if b.err != nil {
			log.Error("Tax batch failed", zap.Int("batch", i+1), zap.Error(b.err))
			parseErrors = append(parseErrors, fmt.Sprintf("Батч %d: %v", i+1, b.err))
			continue
		}
		if b.response.AnalysisText != "" {
			reports = append(reports, taxReport{fileName: batchName(b.files), analysis: b.response.AnalysisText})
			continue
		}
		for _, f := range b.response.Files {
			name := f.FileName
			if name == "" {
				name = "document.pdf"
			}
			switch {
			case f.Error != "":
				parseErrors = append(parseErrors, fmt.Sprintf("Ошибка парсинга файла \"%s\": %s", name, f.Error))
			case strings.TrimSpace(f.Analysis) == "":
				analysisErrors = append(analysisErrors, fmt.Sprintf("⚠️ Анализ для файла \"%s\" не был получен", name))
			default:
				reports = append(reports, taxReport{fileName: name, analysis: f.Analysis})
			}
		}
	}

	if len(reports) == 0 {
		all := append(append([]string{}, parseErrors...), analysisErrors...)
		return Result{}, inputErrorf(nil, "Ошибка анализа: ни один из батчей не был успешно обработан. Ошибки: %s", strings.Join(all, " | "))
	}
	if len(parseErrors) > 0 {
		log.Warn("Some tax files were not analysed", zap.Strings("errors", parseErrors))
	}

	return Result{Text: composeTaxReport(reports, parseErrors, analysisErrors)}, nil
}

func (r *TaxRunner) batches(resolved *filestore.Resolved) []taxBatch {
	var out []taxBatch
	for start := 0; start < len(resolved.Files); start += r.batchSize {
		end := min(start+r.batchSize, len(resolved.Files))
		files := make([]backend.File, 0, end-start)
		for _, f := range resolved.Files[start:end] {
			files = append(files, backend.File{
				Name:     NormalizeFileName(f.OriginalName),
				MimeType: mimeOrDefault(f.MimeType, "application/pdf"),
				Data:     f.Data,
			})
		}
		out = append(out, taxBatch{files: files})
	}
	return out
}

func batchName(files []backend.File) string {
	if len(files) == 1 {
		return files[0].Name
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return strings.Join(names, ", ")
}

// composeTaxReport joins per-file analyses into one text. A single combined
// analysis is stored as is.
func composeTaxReport(reports []taxReport, parseErrors, analysisErrors []string) string {
	var b strings.Builder
	if len(reports) == 1 && len(parseErrors) == 0 && len(analysisErrors) == 0 {
		return render.NormalizeMarkdownTables(strings.TrimSpace(reports[0].analysis))
	}

	for i, rep := range reports {
		fmt.Fprintf(&b, "\n%s\nОТЧЕТ %d ИЗ %d\nФайл: %s\n%s\n\n", blockRule, i+1, len(reports), rep.fileName, blockRule)
		b.WriteString(render.NormalizeMarkdownTables(strings.TrimSpace(rep.analysis)))
		b.WriteString("\n\n")
	}

	if len(parseErrors) > 0 || len(analysisErrors) > 0 {
		fmt.Fprintf(&b, "\n\n%s\n⚠️ ДОПОЛНИТЕЛЬНАЯ ИНФОРМАЦИЯ\n%s\n", blockRule, blockRule)
		if len(parseErrors) > 0 {
			fmt.Fprintf(&b, "\nФАЙЛЫ С ОШИБКАМИ ПРИ ПАРСИНГЕ:\n%s\n", strings.Join(parseErrors, "\n"))
		}
		if len(analysisErrors) > 0 {
			fmt.Fprintf(&b, "\nБАТЧИ С ОШИБКАМИ ПРИ АНАЛИЗЕ:\n%s\n", strings.Join(analysisErrors, "\n"))
		}
	}
	return strings.TrimSpace(b.String())
}
