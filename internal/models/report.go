package models

import (
	"strings"
	"time"
)

type Status string

const (
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

type Category string

const (
	CategoryStatements Category = "statements"
	CategoryTaxes      Category = "taxes"
	CategoryFinancial  Category = "financial"
)

// Categories lists every analysed document class in display order.
var Categories = []Category{CategoryStatements, CategoryTaxes, CategoryFinancial}

func (c Category) Valid() bool {
	switch c {
	case CategoryStatements, CategoryTaxes, CategoryFinancial:
		return true
	}
	return false
}

// CategoryState is the per-category slice of a report. An empty Status
// means the category was never started.
type CategoryState struct {
	Status         Status
	Text           *string
	Structured     *string
	MissingPeriods []string
	CompletedAt    *time.Time
}

// Applicant is the session metadata captured from the intake conversation.
type Applicant struct {
	CompanyBIN string
	Amount     string
	Term       string
	Purpose    string
	Name       string
	Email      string
	Phone      string
	Comment    string
}

func (a Applicant) Empty() bool {
	return a == Applicant{}
}

type Report struct {
	SessionID  string
	Applicant  Applicant
	Statements CategoryState
	Taxes      CategoryState
	Financial  CategoryState
	FilesCount int
	FilesData  *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// State returns the state of category c, nil for an unknown category.
func (r *Report) State(c Category) *CategoryState {
	switch c {
	case CategoryStatements:
		return &r.Statements
	case CategoryTaxes:
		return &r.Taxes
	case CategoryFinancial:
		return &r.Financial
	}
	return nil
}

// CategoryUpdate holds the category columns to write. Nil fields are left
// untouched; an empty MissingPeriods slice stores NULL.
type CategoryUpdate struct {
	Status         *Status
	Text           *string
	Structured     *string
	MissingPeriods *[]string
}

// ReportUpdate is a partial write to one report row.
type ReportUpdate struct {
	Category   Category
	State      CategoryUpdate
	Applicant  *Applicant
	FilesCount *int
	FilesData  *string
}

// JoinPeriods renders missing periods the way they are stored.
func JoinPeriods(periods []string) *string {
	if len(periods) == 0 {
		return nil
	}
	s := strings.Join(periods, ",")
	return &s
}

func SplitPeriods(s *string) []string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	parts := strings.Split(*s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
