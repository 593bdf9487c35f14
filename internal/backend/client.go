// Package backend holds HTTP clients for the external converters and
// analysis services.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"ikap-analysis/pkg/retry"
)

// File is one document sent to a backend.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 4 << 10

type client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	retry      retry.Config
}

func newClient(name, baseURL string, httpClient *http.Client, rc retry.Config) client {
	return client{
		name:       name,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
		retry:      rc,
	}
}

func multipartBody(files []File, fields map[string]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
		mime := f.MimeType
		if mime == "" {
			mime = "application/octet-stream"
		}
		h.Set("Content-Type", mime)

		part, err := writer.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("write file data: %w", err)
		}
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write %s: %w", k, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// send performs one request and returns the status and body of a 2xx answer.
// Non-2xx answers and transport failures come back as *Error.
func (c client) send(ctx context.Context, hc *http.Client, method, url string, body []byte, contentType string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, transportError(c.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, transportError(c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, nil, statusError(c.name, resp.StatusCode, errorDetail(data))
	}
	return resp.StatusCode, data, nil
}

// sendWithRetry repeats send while the failure is Retryable.
func (c client) sendWithRetry(ctx context.Context, method, url string, body []byte, contentType string) (int, []byte, error) {
	type answer struct {
		status int
		body   []byte
	}
	a, err := retry.Do(ctx, c.retry, Retryable, func(ctx context.Context) (answer, error) {
		status, data, err := c.send(ctx, c.httpClient, method, url, body, contentType)
		return answer{status, data}, err
	})
	return a.status, a.body, err
}

// errorDetail pulls a message out of an error body: {"error": …},
// {"detail": …}, {"message": …} or the raw text.
func errorDetail(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, k := range []string{"error", "detail", "message"} {
			if s, ok := payload[k].(string); ok && s != "" {
				return s
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return text
}
