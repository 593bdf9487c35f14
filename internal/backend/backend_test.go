package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ikap-analysis/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fastRetry = retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestStatementsConverter(t *testing.T) {
	t.Run("documents", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/process", r.URL.Path)
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "выписка за год", r.FormValue("comment"))
			fh := r.MultipartForm.File["files"]
			require.Len(t, fh, 1)
			assert.Equal(t, "kaspi.pdf", fh[0].Filename)

			_, _ = io.WriteString(w, `[{"source_file":"kaspi.pdf","metadata":{"bank":"Kaspi"},"transactions":[{"Кредит":"1 000,00","Дата":"05.01.2025"}]}]`)
		}))
		defer srv.Close()

		c := NewStatementsConverter(srv.URL+"/", time.Second, fastRetry, zap.NewNop())
		docs, err := c.Convert(context.Background(), File{Name: "kaspi.pdf", MimeType: "application/pdf", Data: []byte("%PDF")}, "выписка за год")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "Kaspi", docs[0].Metadata["bank"])
		require.Len(t, docs[0].Transactions, 1)
		assert.Equal(t, "1 000,00", docs[0].Transactions[0]["Кредит"])
	})

	t.Run("no content", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		docs, err := NewStatementsConverter(srv.URL, time.Second, fastRetry, zap.NewNop()).
			Convert(context.Background(), File{Name: "a.pdf"}, "")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("retries unavailable", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = io.WriteString(w, `{"Кредит":"10"}`)
		}))
		defer srv.Close()

		docs, err := NewStatementsConverter(srv.URL, time.Second, fastRetry, zap.NewNop()).
			Convert(context.Background(), File{Name: "a.pdf"}, "")
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
		require.Len(t, docs, 1)
		assert.Equal(t, "a.pdf", docs[0].SourceFile)
	})

	t.Run("rejected is not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"unsupported file"}`)
		}))
		defer srv.Close()

		_, err := NewStatementsConverter(srv.URL, time.Second, fastRetry, zap.NewNop()).
			Convert(context.Background(), File{Name: "a.txt"}, "")
		var be *Error
		require.ErrorAs(t, err, &be)
		assert.Equal(t, CodeRejected, be.Code)
		assert.Equal(t, "unsupported file", be.Message)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestDecodeStatementDocuments(t *testing.T) {
	docs, err := DecodeStatementDocuments([]byte(`[{"Кредит":1},{"transactions":[],"error":"bad page"},{"Кредит":2}]`), "x.json")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "bad page", docs[0].Error)
	assert.Len(t, docs[1].Transactions, 2)
	assert.Equal(t, json.Number("2"), docs[1].Transactions[1]["Кредит"])

	_, err = DecodeStatementDocuments([]byte(`"text"`), "x.json")
	assert.Error(t, err)
}

func TestTaxClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/process", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("analyze"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Len(t, r.MultipartForm.File["files"], 2)
		_, _ = io.WriteString(w, `{"files":[{"filename":"a.pdf","text":"t","analysis":"анализ"},{"filename":"b.pdf","error":"ocr failed"}]}`)
	}))
	defer srv.Close()

	resp, err := NewTaxClient(srv.URL, time.Second, fastRetry, zap.NewNop()).
		Process(context.Background(), []File{{Name: "a.pdf"}, {Name: "b.pdf"}}, "")
	require.NoError(t, err)
	require.Len(t, resp.Files, 2)
	assert.Equal(t, "анализ", resp.Files[0].Analysis)
	assert.Equal(t, "ocr failed", resp.Files[1].Error)
}

func TestTaxClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewTaxClient(srv.URL, 20*time.Millisecond, fastRetry, zap.NewNop()).
		Process(context.Background(), []File{{Name: "a.pdf"}}, "")
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.False(t, Retryable(err))
}

func fsConfig(url string) FSConfig {
	return FSConfig{
		BaseURL:        url,
		UploadTimeout:  time.Second,
		RequestTimeout: time.Second,
		PollInterval:   time.Millisecond,
		MaxAttempts:    5,
	}
}

func TestFSClient(t *testing.T) {
	t.Run("completes after transient poll failure", func(t *testing.T) {
		var polls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/upload":
				assert.Equal(t, "150", r.URL.Query().Get("dpi"))
				_, _ = io.WriteString(w, `{"id":"job-1"}`)
			case "/api/analysis/job-1":
				switch polls.Add(1) {
				case 1:
					w.WriteHeader(http.StatusServiceUnavailable)
				case 2:
					_, _ = io.WriteString(w, `{"status":"processing"}`)
				default:
					_, _ = io.WriteString(w, `{"status":"completed","summary":"Рост","years":[2023,"2024"],"table":[{"indicator":"Выручка","values":{"2023":10}}]}`)
				}
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer srv.Close()

		res, err := NewFSClient(fsConfig(srv.URL), fastRetry, zap.NewNop()).Analyze(context.Background(), []File{{Name: "fs.pdf"}})
		require.NoError(t, err)
		assert.Equal(t, Years{"2023", "2024"}, res.Years)
		assert.Equal(t, "Рост", res.Summary)
		require.Len(t, res.Table, 1)
		assert.Equal(t, int32(3), polls.Load())
	})

	t.Run("job error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/upload" {
				_, _ = io.WriteString(w, `{"id":7}`)
				return
			}
			assert.Equal(t, "/api/analysis/7", r.URL.Path)
			_, _ = io.WriteString(w, `{"status":"error","error":"не удалось распознать"}`)
		}))
		defer srv.Close()

		_, err := NewFSClient(fsConfig(srv.URL), fastRetry, zap.NewNop()).Analyze(context.Background(), []File{{Name: "fs.pdf"}})
		var be *Error
		require.ErrorAs(t, err, &be)
		assert.Equal(t, CodeJobFailed, be.Code)
		assert.Equal(t, "не удалось распознать", be.Message)
		assert.False(t, IsTimeout(err))
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/upload" {
				_, _ = io.WriteString(w, `{"id":"slow"}`)
				return
			}
			_, _ = io.WriteString(w, `{"status":"processing"}`)
		}))
		defer srv.Close()

		_, err := NewFSClient(fsConfig(srv.URL), fastRetry, zap.NewNop()).Analyze(context.Background(), []File{{Name: "fs.pdf"}})
		require.Error(t, err)
		assert.True(t, IsTimeout(err))
	})

	t.Run("missing id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{}`)
		}))
		defer srv.Close()

		_, err := NewFSClient(fsConfig(srv.URL), fastRetry, zap.NewNop()).Analyze(context.Background(), []File{{Name: "fs.pdf"}})
		var be *Error
		require.ErrorAs(t, err, &be)
		assert.Equal(t, CodeBadResponse, be.Code)
	})
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(&Error{Code: CodeTimeout}))
	assert.False(t, IsTimeout(errors.New("boom")))
	assert.False(t, IsTimeout(&Error{Code: CodeUnavailable}))
}
