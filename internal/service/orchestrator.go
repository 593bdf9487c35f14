package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ikap-analysis/internal/backend"
	"ikap-analysis/internal/models"
	"ikap-analysis/internal/repository"
	"ikap-analysis/internal/worker"
	"ikap-analysis/pkg/logger"

	"go.uber.org/zap"
)

// Outcome is how a single category run ended.
type Outcome string

const (
	OutcomeSkippedInFlight Outcome = "skipped_in_flight"
	OutcomeSkippedStatus   Outcome = "skipped_status"
	OutcomeCompleted       Outcome = "completed"
	OutcomeFailed          Outcome = "failed"
	OutcomeTimedOut        Outcome = "timed_out"
	// OutcomeInterrupted is a run whose parent context was cancelled, e.g. on shutdown.
	OutcomeInterrupted Outcome = "interrupted"
)

const errorTextPrefix = "Ошибка генерации отчета: "

// persistTimeout bounds the final status write, which must survive the run's deadline.
const persistTimeout = 15 * time.Second

type ReportStore interface {
	Get(ctx context.Context, sessionID string) (*models.Report, error)
	Upsert(ctx context.Context, sessionID string, u models.ReportUpdate) error
}

type MessageSource interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.Message, error)
}

type Submitter interface {
	Submit(task worker.Task) error
}

var (
	_ ReportStore   = (*repository.ReportRepository)(nil)
	_ MessageSource = (*repository.MessageRepository)(nil)
	_ Submitter     = (*worker.Pool)(nil)
)

// inFlight is the process-local set of running session categories.
type inFlight struct {
	mu   sync.Mutex
	runs map[string]struct{}
}

func (g *inFlight) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.runs[key]; ok {
		return false
	}
	g.runs[key] = struct{}{}
	return true
}

func (g *inFlight) release(key string) {
	g.mu.Lock()
	delete(g.runs, key)
	g.mu.Unlock()
}

// Orchestrator drives the per-category status machine of a session:
// absent -> generating -> completed | error. A run that times out leaves the
// category generating so a late backend result can still be picked up.
type Orchestrator struct {
	reports  ReportStore
	messages MessageSource
	files    FileResolver
	pool     Submitter
	runners  map[models.Category]Runner
	timeouts map[models.Category]time.Duration
	guard    inFlight
	now      func() time.Time
	logger   *zap.Logger
}

func NewOrchestrator(
	reports ReportStore,
	messages MessageSource,
	files FileResolver,
	pool Submitter,
	timeouts map[models.Category]time.Duration,
	logger *zap.Logger,
	runners ...Runner,
) *Orchestrator {
	byCategory := make(map[models.Category]Runner, len(runners))
	for _, r := range runners {
		byCategory[r.Category()] = r
	}
	return &Orchestrator{
		reports:  reports,
		messages: messages,
		files:    files,
		pool:     pool,
		runners:  byCategory,
		timeouts: timeouts,
		guard:    inFlight{runs: make(map[string]struct{})},
		now:      time.Now,
		logger:   logger,
	}
}

// Trigger queues one run per category and returns without waiting. No
// categories means all of them.
func (o *Orchestrator) Trigger(sessionID string, categories ...models.Category) error {
	if len(categories) == 0 {
		categories = models.Categories
	}
	for _, c := range categories {
		if _, ok := o.runners[c]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCategory, c)
		}
	}

	var errs []error
	for _, c := range categories {
		category := c
		task := worker.Task{
			Name: "analysis:" + sessionID + ":" + string(category),
			Run: func(ctx context.Context) error {
				_, err := o.Run(ctx, sessionID, category)
				return err
			},
		}
		if err := o.pool.Submit(task); err != nil {
			errs = append(errs, fmt.Errorf("failed to queue %s analysis: %w", category, err))
		}
	}
	return errors.Join(errs...)
}

// Run executes one category synchronously. The returned error is only set
// when the report record itself could not be read or written.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, category models.Category) (Outcome, error) {
	runner, ok := o.runners[category]
	if !ok {
		return OutcomeFailed, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	log := logger.ForSession(o.logger, sessionID, string(category))

	key := sessionID + "/" + string(category)
	if !o.guard.acquire(key) {
		log.Info("Analysis already running, skipping")
		return OutcomeSkippedInFlight, nil
	}
	defer o.guard.release(key)

	existing, err := o.reports.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Error("Failed to read report", zap.Error(err))
		return OutcomeFailed, fmt.Errorf("failed to read report: %w", err)
	}
	if existing != nil {
		switch status := existing.State(category).Status; status {
		case models.StatusGenerating, models.StatusCompleted:
			log.Info("Analysis not required", zap.String("status", string(status)))
			return OutcomeSkippedStatus, nil
		}
	}

	var missing []string
	if listed, err := o.files.List(ctx, sessionID, category); err != nil {
		log.Warn("Failed to list files for the period check", zap.Error(err))
	} else {
		missing = MissingPeriods(fileNames(listed), o.now())
	}

	job := Job{SessionID: sessionID, Logger: log}
	start := models.ReportUpdate{
		Category: category,
		State:    models.CategoryUpdate{Status: statusPtr(models.StatusGenerating), MissingPeriods: &missing},
	}
	if existing != nil && !existing.Applicant.Empty() {
		job.Applicant = existing.Applicant
	} else if applicant, ok := o.applicant(ctx, sessionID, log); ok {
		job.Applicant = applicant
		if category == models.CategoryStatements {
			start.Applicant = &applicant
		}
	}

	if err := o.reports.Upsert(ctx, sessionID, start); err != nil {
		log.Error("Failed to mark analysis as generating", zap.Error(err))
		return OutcomeFailed, fmt.Errorf("failed to mark analysis as generating: %w", err)
	}
	log.Info("Analysis started", zap.Strings("missing_periods", missing))

	runCtx := ctx
	if timeout := o.timeouts[category]; timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	res, runErr := safeRun(runCtx, runner, job)

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if runErr != nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) || backend.IsTimeout(runErr):
			log.Warn("Analysis timed out, status left as generating",
				zap.Duration("took", time.Since(started)),
				zap.Error(runErr),
			)
			return OutcomeTimedOut, nil
		case ctx.Err() != nil:
			log.Warn("Analysis interrupted, status left as generating", zap.Error(runErr))
			return OutcomeInterrupted, nil
		}

		text := sanitizeUTF8(FailureText(runErr))
		log.Error("Analysis failed", zap.Duration("took", time.Since(started)), zap.Error(runErr))
		if err := o.reports.Upsert(persistCtx, sessionID, models.ReportUpdate{
			Category: category,
			State:    models.CategoryUpdate{Status: statusPtr(models.StatusError), Text: &text},
		}); err != nil {
			log.Error("Failed to store analysis error", zap.Error(err))
			return OutcomeFailed, fmt.Errorf("failed to store analysis error: %w", err)
		}
		return OutcomeFailed, nil
	}

	text := sanitizeUTF8(res.Text)
	if err := o.reports.Upsert(persistCtx, sessionID, models.ReportUpdate{
		Category: category,
		State: models.CategoryUpdate{
			Status:     statusPtr(models.StatusCompleted),
			Text:       &text,
			Structured: sanitizeOptional(res.Structured),
		},
		FilesCount: res.FilesCount,
		FilesData:  res.FilesData,
	}); err != nil {
		log.Error("Failed to store analysis result", zap.Error(err))
		return OutcomeFailed, fmt.Errorf("failed to store analysis result: %w", err)
	}

	log.Info("Analysis completed",
		zap.Duration("took", time.Since(started)),
		zap.Int("text_length", len(text)),
	)
	return OutcomeCompleted, nil
}

func (o *Orchestrator) applicant(ctx context.Context, sessionID string, log *zap.Logger) (models.Applicant, bool) {
	if o.messages == nil {
		return models.Applicant{}, false
	}
	history, err := o.messages.ListBySession(ctx, sessionID)
	if err != nil {
		log.Warn("Failed to load conversation history", zap.Error(err))
		return models.Applicant{}, false
	}
	if len(history) == 0 {
		return models.Applicant{}, false
	}
	return ExtractApplicant(history), true
}

// FailureText is the report text stored for a failed run.
func FailureText(err error) string {
	var ie *InputError
	if errors.As(err, &ie) {
		return ie.Message
	}
	return errorTextPrefix + err.Error()
}

func safeRun(ctx context.Context, r Runner, job Job) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.Run(ctx, job)
}

func statusPtr(s models.Status) *models.Status { return &s }
