package dto

import (
	"encoding/json"
	"time"

	"ikap-analysis/internal/models"
)

type ApplicantResponse struct {
	CompanyBIN string `json:"company_bin"`
	Amount     string `json:"amount"`
	Term       string `json:"term"`
	Purpose    string `json:"purpose"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

type CategoryResponse struct {
	Status         string          `json:"status,omitempty"`
	Text           *string         `json:"text,omitempty"`
	Structured     json.RawMessage `json:"structured,omitempty" swaggertype:"object"`
	MissingPeriods []string        `json:"missing_periods,omitempty"`
	CompletedAt    string          `json:"completed_at,omitempty"`
}

type ReportResponse struct {
	SessionID  string             `json:"session_id"`
	Applicant  *ApplicantResponse `json:"applicant,omitempty"`
	Statements CategoryResponse   `json:"statements"`
	Taxes      CategoryResponse   `json:"taxes"`
	Financial  CategoryResponse   `json:"financial"`
	FilesCount int                `json:"files_count"`
	FilesData  json.RawMessage    `json:"files_data,omitempty" swaggertype:"array,object"`
	CreatedAt  string             `json:"created_at"`
	UpdatedAt  string             `json:"updated_at"`
}

type ReportListResponse struct {
	Reports []ReportResponse `json:"reports"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

func NewReportResponse(r *models.Report) ReportResponse {
	resp := ReportResponse{
		SessionID:  r.SessionID,
		Statements: newCategoryResponse(r.Statements),
		Taxes:      newCategoryResponse(r.Taxes),
		Financial:  newCategoryResponse(r.Financial),
		FilesCount: r.FilesCount,
		FilesData:  rawJSON(r.FilesData),
		CreatedAt:  formatTime(r.CreatedAt),
		UpdatedAt:  formatTime(r.UpdatedAt),
	}
	if !r.Applicant.Empty() {
		a := r.Applicant
		resp.Applicant = &ApplicantResponse{
			CompanyBIN: a.CompanyBIN,
			Amount:     a.Amount,
			Term:       a.Term,
			Purpose:    a.Purpose,
			Name:       a.Name,
			Email:      a.Email,
			Phone:      a.Phone,
		}
	}
	return resp
}

func newCategoryResponse(s models.CategoryState) CategoryResponse {
	resp := CategoryResponse{
		Status:         string(s.Status),
		Text:           s.Text,
		Structured:     rawJSON(s.Structured),
		MissingPeriods: s.MissingPeriods,
	}
	if s.CompletedAt != nil {
		resp.CompletedAt = formatTime(*s.CompletedAt)
	}
	return resp
}

// rawJSON passes stored JSON through untouched; invalid values are dropped.
func rawJSON(s *string) json.RawMessage {
	if s == nil || !json.Valid([]byte(*s)) {
		return nil
	}
	return json.RawMessage(*s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
