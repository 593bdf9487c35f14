package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"ikap-analysis/internal/filestore"
	"ikap-analysis/internal/models"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrNoFiles         = errors.New("no files for category")
	ErrUnknownCategory = errors.New("unknown category")
)

// Result is what a runner persists on success. Nil fields are left untouched.
type Result struct {
	Text       string
	Structured *string
	FilesCount *int
	FilesData  *string
}

// Job is one category run of a session.
type Job struct {
	SessionID string
	Applicant models.Applicant
	Logger    *zap.Logger
}

func (j Job) logger(fallback *zap.Logger) *zap.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return fallback
}

// Runner analyses one document category of a session.
type Runner interface {
	Category() models.Category
	Run(ctx context.Context, job Job) (Result, error)
}

// InputError is a failure caused by the session's documents rather than the
// infrastructure. Its message is stored as the report text unchanged.
type InputError struct {
	Message string
	Err     error
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Unwrap() error { return e.Err }

func inputErrorf(err error, format string, args ...any) error {
	return &InputError{Message: fmt.Sprintf(format, args...), Err: err}
}

// FileResolver lists session files and loads their bytes.
type FileResolver interface {
	List(ctx context.Context, sessionID string, category models.Category) ([]models.File, error)
	Load(ctx context.Context, sessionID string, files []models.File) *filestore.Resolved
}

var _ FileResolver = (*filestore.Resolver)(nil)

// MissingPeriods returns the current and the previous calendar year when no
// file name mentions them.
func MissingPeriods(names []string, now time.Time) []string {
	var missing []string
	for _, year := range []int{now.Year(), now.Year() - 1} {
		y := strconv.Itoa(year)
		found := false
		for _, n := range names {
			if strings.Contains(strings.ToLower(n), y) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, y)
		}
	}
	return missing
}

// NormalizeFileName repairs UTF-8 names that were decoded as Latin-1 by an
// upstream multipart parser.
func NormalizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	high := false
	for _, r := range name {
		if r > 0xFF {
			return name
		}
		if r >= 0x80 {
			high = true
		}
	}
	if !high {
		return name
	}
	raw, err := charmap.ISO8859_1.NewEncoder().String(name)
	if err != nil || !utf8.ValidString(raw) {
		return name
	}
	return raw
}

func fileNames(files []models.File) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = NormalizeFileName(f.OriginalName)
	}
	return names
}

func isPDF(f models.File) bool {
	return strings.EqualFold(filepath.Ext(NormalizeFileName(f.OriginalName)), ".pdf") ||
		strings.EqualFold(f.MimeType, "application/pdf")
}

func mimeOrDefault(mime, fallback string) string {
	if mime == "" {
		return fallback
	}
	return mime
}
