package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"ikap-analysis/internal/backend"
	"ikap-analysis/internal/classifier"
	"ikap-analysis/internal/models"
	"ikap-analysis/internal/normalize"
	"ikap-analysis/internal/render"
	"ikap-analysis/internal/summary"

	"go.uber.org/zap"
)

// StatementConverter extracts transaction rows from one statement file.
type StatementConverter interface {
	Convert(ctx context.Context, f backend.File, comment string) ([]backend.StatementDocument, error)
}

var _ StatementConverter = (*backend.StatementsConverter)(nil)

// StatementsRunner builds the revenue report from bank statements.
type StatementsRunner struct {
	files        FileResolver
	converter    StatementConverter
	classifier   *classifier.Classifier
	secondary    classifier.SecondaryClassifier
	batchSize    int
	previewLimit int
	now          func() time.Time
	logger       *zap.Logger
}

type StatementsRunnerConfig struct {
	// BatchSize is the number of ambiguous rows per secondary classifier request.
	BatchSize    int
	PreviewLimit int
}

// NewStatementsRunner wires the statements pipeline. converter and secondary
// may be nil: JSON uploads are still parsed locally and ambiguous rows then
// stay unresolved.
func NewStatementsRunner(
	files FileResolver,
	converter StatementConverter,
	cls *classifier.Classifier,
	secondary classifier.SecondaryClassifier,
	cfg StatementsRunnerConfig,
	logger *zap.Logger,
) *StatementsRunner {
	if cls == nil {
		cls = classifier.New(nil)
	}
	return &StatementsRunner{
		files:        files,
		converter:    converter,
		classifier:   cls,
		secondary:    secondary,
		batchSize:    cfg.BatchSize,
		previewLimit: cfg.PreviewLimit,
		now:          time.Now,
		logger:       logger,
	}
}

func (r *StatementsRunner) Category() models.Category { return models.CategoryStatements }

type fileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Mime string `json:"mime,omitempty"`
}

func (r *StatementsRunner) Run(ctx context.Context, job Job) (Result, error) {
	log := job.logger(r.logger)

	listed, err := r.files.List(ctx, job.SessionID, models.CategoryStatements)
	if err != nil {
		return Result{}, err
	}
	if len(listed) == 0 {
		return Result{}, inputErrorf(ErrNoFiles, "Файлы банковских выписок не найдены")
	}

	resolved := r.files.Load(ctx, job.SessionID, listed)
	var converted []summary.ConvertedFile
	for _, f := range resolved.Failed {
		converted = append(converted, summary.ConvertedFile{
			FileName: NormalizeFileName(f.File.OriginalName),
			Error:    "не удалось получить содержимое файла",
		})
	}

	var records []normalize.Record
	usable := 0
	for _, f := range resolved.Files {
		name := NormalizeFileName(f.OriginalName)
		docs, err := r.extract(ctx, f.Data, name, f.MimeType, job.Applicant.Comment)
		if err != nil {
			if backend.IsTimeout(err) {
				return Result{}, err
			}
			log.Warn("Statement file failed", zap.String("file", name), zap.Error(err))
			converted = append(converted, summary.ConvertedFile{FileName: name, Error: err.Error()})
			continue
		}
		usable++
		if len(docs) == 0 {
			converted = append(converted, summary.ConvertedFile{FileName: name})
			continue
		}
		for _, d := range docs {
			source := d.SourceFile
			if source == "" {
				source = name
			}
			converted = append(converted, summary.ConvertedFile{
				FileName:     source,
				Transactions: len(d.Transactions),
				Error:        d.Error,
			})
			records = append(records, d.Transactions...)
		}
	}

	if usable == 0 {
		return Result{}, inputErrorf(ErrNoFiles, "Не удалось обработать банковские выписки: %s", failureList(converted))
	}

	now := r.now()
	items := r.classifier.Prepare(records, job.SessionID, now)
	buckets := classifier.Split(items)
	resolution := classifier.Resolve(ctx, r.secondary, buckets.NeedsReview, r.batchSize, log)

	revenue := append(append([]*classifier.Item{}, buckets.Revenue...), resolution.Revenue...)
	nonRevenue := append(append([]*classifier.Item{}, buckets.NonRevenue...), resolution.NonRevenue...)

	log.Info("Statements classified",
		zap.Int("transactions", len(items)),
		zap.Int("revenue", len(revenue)),
		zap.Int("non_revenue", len(nonRevenue)),
		zap.Int("unresolved", len(resolution.Unresolved)),
	)

	s := summary.Build(summary.BuildInput{
		Revenue:    revenue,
		NonRevenue: nonRevenue,
		Stats: summary.Stats{
			TotalTransactions: len(items),
			AutoRevenue:       len(buckets.Revenue),
			AgentReviewed:     resolution.Reviewed,
			AgentDecisions:    resolution.Decisions,
			Unresolved:        len(resolution.Unresolved),
		},
		Preview:   summary.Preview(revenue, r.previewLimit),
		Converted: converted,
		Now:       now,
	}, log)

	structured, err := json.Marshal(s)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode summary: %w", err)
	}
	structuredText := string(structured)

	res := Result{Text: render.FormatSummary(s), Structured: &structuredText}
	r.attachFiles(ctx, job.SessionID, listed, &res, log)
	return res, nil
}

func (r *StatementsRunner) extract(ctx context.Context, data []byte, name, mime, comment string) ([]backend.StatementDocument, error) {
	if strings.EqualFold(filepath.Ext(name), ".json") || strings.EqualFold(mime, "application/json") {
		return backend.DecodeStatementDocuments(data, name)
	}
	if r.converter == nil {
		return nil, fmt.Errorf("сервис конвертации выписок не настроен")
	}
	return r.converter.Convert(ctx, backend.File{
		Name:     name,
		MimeType: mimeOrDefault(mime, "application/pdf"),
		Data:     data,
	}, comment)
}

// attachFiles records the session's file count and the statement file list.
func (r *StatementsRunner) attachFiles(ctx context.Context, sessionID string, statements []models.File, res *Result, log *zap.Logger) {
	count := len(statements)
	if all, err := r.files.List(ctx, sessionID, ""); err == nil {
		count = len(all)
	} else {
		log.Warn("Failed to count session files", zap.Error(err))
	}
	res.FilesCount = &count

	infos := make([]fileInfo, len(statements))
	for i, f := range statements {
		infos[i] = fileInfo{Name: NormalizeFileName(f.OriginalName), Size: f.SizeBytes, Mime: f.MimeType}
	}
	if data, err := json.Marshal(infos); err == nil {
		s := string(data)
		res.FilesData = &s
	}
}

func failureList(converted []summary.ConvertedFile) string {
	var failed []string
	for _, c := range converted {
		if c.Error != "" {
			failed = append(failed, fmt.Sprintf("%s: %s", c.FileName, c.Error))
		}
	}
	if len(failed) == 0 {
		return "нет данных"
	}
	return strings.Join(failed, "; ")
}
