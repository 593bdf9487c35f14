package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ikap-analysis/pkg/retry"

	"go.uber.org/zap"
)

type IndicatorRow struct {
	Indicator string         `json:"indicator"`
	Values    map[string]any `json:"values"`
}

// Years accepts numbers or strings in JSON.
type Years []string

func (y *Years) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Years, 0, len(raw))
	for _, v := range raw {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case float64:
			out = append(out, strconv.FormatFloat(t, 'f', -1, 64))
		}
	}
	*y = out
	return nil
}

const (
	FSStatusCompleted = "completed"
	FSStatusError     = "error"
)

// FSAnalysis is the polled state of a financial statements job.
type FSAnalysis struct {
	Status  string         `json:"status"`
	Summary string         `json:"summary"`
	Table   []IndicatorRow `json:"table"`
	Years   Years          `json:"years"`
	Error   string         `json:"error"`
}

type FSConfig struct {
	BaseURL        string
	UploadTimeout  time.Duration
	RequestTimeout time.Duration
	PollInterval   time.Duration
	MaxAttempts    int
}

// FSClient submits financial statement PDFs and polls the analysis job.
type FSClient struct {
	client
	poll        *http.Client
	interval    time.Duration
	maxAttempts int
	logger      *zap.Logger
}

func NewFSClient(cfg FSConfig, rc retry.Config, logger *zap.Logger) *FSClient {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	return &FSClient{
		client:      newClient("pdftopng", cfg.BaseURL, &http.Client{Timeout: cfg.UploadTimeout}, rc),
		poll:        &http.Client{Timeout: cfg.RequestTimeout},
		interval:    cfg.PollInterval,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
	}
}

// Analyze uploads files and waits for a terminal job status. Exhausting the
// attempts or ctx yields a CodeTimeout error.
func (c *FSClient) Analyze(ctx context.Context, files []File) (*FSAnalysis, error) {
	id, err := c.upload(ctx, files)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Waiting for financial statements analysis",
		zap.String("job_id", id),
		zap.Duration("interval", c.interval),
		zap.Int("max_attempts", c.maxAttempts),
	)

	pollURL := c.baseURL + "/api/analysis/" + url.PathEscape(id)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, &Error{Backend: c.name, Code: CodeTimeout, Message: "ожидание анализа прервано", Cause: ctx.Err()}
		case <-ticker.C:
		}

		_, data, err := c.send(ctx, c.poll, http.MethodGet, pollURL, nil, "")
		if err != nil {
			if Retryable(err) || IsTimeout(err) {
				c.logger.Warn("Analysis poll failed, polling again",
					zap.String("job_id", id),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				continue
			}
			return nil, err
		}

		var state FSAnalysis
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, badResponse(c.name, "некорректный JSON статуса анализа", err)
		}

		switch state.Status {
		case FSStatusCompleted:
			return &state, nil
		case FSStatusError:
			msg := state.Error
			if msg == "" {
				msg = "Ошибка анализа на pdftopng"
			}
			return nil, &Error{Backend: c.name, Code: CodeJobFailed, Message: msg}
		}
	}

	budget := time.Duration(c.maxAttempts) * c.interval
	return nil, &Error{
		Backend: c.name,
		Code:    CodeTimeout,
		Message: fmt.Sprintf("Таймаут ожидания анализа от pdftopng (%s)", budget.Round(time.Second)),
	}
}

func (c *FSClient) upload(ctx context.Context, files []File) (string, error) {
	body, contentType, err := multipartBody(files, nil)
	if err != nil {
		return "", err
	}

	_, data, err := c.sendWithRetry(ctx, http.MethodPost, c.baseURL+"/upload?dpi=150", body.Bytes(), contentType)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", badResponse(c.name, "некорректный JSON ответа загрузки", err)
	}
	id := jobID(resp.ID)
	if id == "" {
		return "", badResponse(c.name, "pdftopng не вернул id конвертации", nil)
	}
	return id, nil
}

func jobID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
