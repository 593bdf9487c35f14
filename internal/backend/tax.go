package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"ikap-analysis/pkg/retry"

	"go.uber.org/zap"
)

type TaxFileResult struct {
	FileName string `json:"filename"`
	Text     string `json:"text"`
	Analysis string `json:"analysis"`
	Error    string `json:"error"`
}

type TaxResponse struct {
	AnalysisText string          `json:"analysis_text"`
	Files        []TaxFileResult `json:"files"`
}

// TaxClient talks to the tax declaration OCR and analysis service.
type TaxClient struct {
	client
	logger *zap.Logger
}

func NewTaxClient(baseURL string, timeout time.Duration, rc retry.Config, logger *zap.Logger) *TaxClient {
	return &TaxClient{
		client: newClient("tax-ocr-service", baseURL, &http.Client{Timeout: timeout}, rc),
		logger: logger,
	}
}

// Process uploads a batch of declarations with analysis enabled.
func (c *TaxClient) Process(ctx context.Context, files []File, comment string) (*TaxResponse, error) {
	body, contentType, err := multipartBody(files, map[string]string{"comment": comment})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	_, data, err := c.sendWithRetry(ctx, http.MethodPost, c.baseURL+"/process?analyze=true", body.Bytes(), contentType)
	if err != nil {
		return nil, err
	}

	var resp TaxResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, badResponse(c.name, "некорректный JSON в ответе", err)
	}
	resp.AnalysisText = strings.TrimSpace(resp.AnalysisText)
	if len(resp.Files) == 0 && resp.AnalysisText == "" {
		return nil, badResponse(c.name, "пустой результат (нет файлов)", nil)
	}

	c.logger.Info("Tax batch processed",
		zap.Int("files", len(files)),
		zap.Int("results", len(resp.Files)),
		zap.Duration("took", time.Since(start)),
	)
	return &resp, nil
}
