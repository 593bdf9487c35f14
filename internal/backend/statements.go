package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ikap-analysis/internal/normalize"
	"ikap-analysis/pkg/retry"

	"go.uber.org/zap"
)

// StatementDocument is one bank statement extracted by the converter.
type StatementDocument struct {
	SourceFile   string             `json:"source_file"`
	Metadata     map[string]any     `json:"metadata"`
	Transactions []normalize.Record `json:"transactions"`
	Error        string             `json:"error,omitempty"`
}

// StatementsConverter turns statement files (PDF, spreadsheets) into
// transaction records.
type StatementsConverter struct {
	client
	logger *zap.Logger
}

func NewStatementsConverter(baseURL string, timeout time.Duration, rc retry.Config, logger *zap.Logger) *StatementsConverter {
	return &StatementsConverter{
		client: newClient("statements-converter", baseURL, &http.Client{Timeout: timeout}, rc),
		logger: logger,
	}
}

// Convert sends one file to {base}/process. A 204 answer means the file has
// no credit rows.
func (c *StatementsConverter) Convert(ctx context.Context, f File, comment string) ([]StatementDocument, error) {
	body, contentType, err := multipartBody([]File{f}, map[string]string{"comment": comment})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	status, data, err := c.sendWithRetry(ctx, http.MethodPost, c.baseURL+"/process", body.Bytes(), contentType)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Statement converted",
		zap.String("file", f.Name),
		zap.Int("status", status),
		zap.Duration("took", time.Since(start)),
	)

	if status == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	docs, err := DecodeStatementDocuments(data, f.Name)
	if err != nil {
		return nil, badResponse(c.name, err.Error(), err)
	}
	return docs, nil
}

// DecodeStatementDocuments accepts a document, an array of documents, a bare
// transaction or an array of transactions. Bare transactions are grouped into
// one document named fallbackName.
func DecodeStatementDocuments(data []byte, fallbackName string) ([]StatementDocument, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode statement json: %w", err)
	}

	var elems []any
	switch v := raw.(type) {
	case []any:
		elems = v
	case map[string]any:
		elems = []any{v}
	default:
		return nil, fmt.Errorf("unexpected statement json of type %T", raw)
	}

	var docs []StatementDocument
	var loose []normalize.Record
	for _, e := range elems {
		obj, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if !isDocument(obj) {
			loose = append(loose, normalize.Record(obj))
			continue
		}

		doc := StatementDocument{SourceFile: fallbackName}
		if s, ok := obj["source_file"].(string); ok && s != "" {
			doc.SourceFile = s
		}
		if m, ok := obj["metadata"].(map[string]any); ok {
			doc.Metadata = m
		}
		if s, ok := obj["error"].(string); ok {
			doc.Error = s
		}
		if list, ok := obj["transactions"].([]any); ok {
			for _, t := range list {
				if r, ok := t.(map[string]any); ok {
					doc.Transactions = append(doc.Transactions, normalize.Record(r))
				}
			}
		}
		docs = append(docs, doc)
	}

	if len(loose) > 0 {
		docs = append(docs, StatementDocument{SourceFile: fallbackName, Transactions: loose})
	}
	return docs, nil
}

func isDocument(obj map[string]any) bool {
	_, hasSource := obj["source_file"]
	_, hasTx := obj["transactions"]
	return hasSource || hasTx
}
