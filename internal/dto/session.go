package dto

import (
	"ikap-analysis/internal/models"
)

type AnalysisRequest struct {
	// Categories to run; empty means all of them.
	Categories []string `json:"categories"`
}

type AnalysisResponse struct {
	SessionID  string   `json:"session_id"`
	Categories []string `json:"categories"`
	Status     string   `json:"status"`
}

type FileResponse struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	Category   string `json:"category"`
	FileName   string `json:"file_name"`
	FileSize   int64  `json:"file_size"`
	MimeType   string `json:"mime_type"`
	UploadedAt string `json:"uploaded_at"`
}

func NewFileResponse(f *models.File) FileResponse {
	return FileResponse{
		ID:         f.ID,
		SessionID:  f.SessionID,
		Category:   string(f.Category),
		FileName:   f.OriginalName,
		FileSize:   f.SizeBytes,
		MimeType:   f.MimeType,
		UploadedAt: formatTime(f.UploadedAt),
	}
}
