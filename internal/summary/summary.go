package summary

import (
	"time"

	"ikap-analysis/internal/classifier"
	"ikap-analysis/internal/normalize"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// integrityTolerance is the allowed gap between a bucket total and the sum of its years.
var integrityTolerance = decimal.New(1, -2)

type Amount struct {
	Value     float64 `json:"value"`
	Formatted string  `json:"formatted"`
}

type Totals struct {
	Revenue    Amount `json:"revenue"`
	NonRevenue Amount `json:"nonRevenue"`
}

type Bucket struct {
	TotalValue     float64 `json:"totalValue"`
	TotalFormatted string  `json:"totalFormatted"`
	Years          []Year  `json:"years"`
}

type TrailingRevenue struct {
	Value                 float64 `json:"value"`
	Formatted             string  `json:"formatted"`
	ReferencePeriodEndsAt *string `json:"referencePeriodEndsAt"`
}

type Stats struct {
	TotalTransactions int `json:"totalTransactions"`
	AutoRevenue       int `json:"autoRevenue"`
	AgentReviewed     int `json:"agentReviewed"`
	AgentDecisions    int `json:"agentDecisions"`
	Unresolved        int `json:"unresolved"`
}

// ConvertedFile describes one statement file fed to the pipeline.
type ConvertedFile struct {
	FileName     string `json:"fileName"`
	Transactions int    `json:"transactions"`
	Error        string `json:"error,omitempty"`
}

// Summary is the structured statements report. Every section is optional
// when decoded from storage.
type Summary struct {
	GeneratedAt             string           `json:"generatedAt,omitempty"`
	Totals                  *Totals          `json:"totals,omitempty"`
	Revenue                 *Bucket          `json:"revenue,omitempty"`
	NonRevenue              *Bucket          `json:"nonRevenue,omitempty"`
	Trailing12MonthsRevenue *TrailingRevenue `json:"trailing12MonthsRevenue,omitempty"`
	Stats                   *Stats           `json:"stats,omitempty"`
	AutoRevenuePreview      []PreviewItem    `json:"autoRevenuePreview"`
	ConvertedExcels         []ConvertedFile  `json:"convertedExcels"`
}

type BuildInput struct {
	Revenue    []*classifier.Item
	NonRevenue []*classifier.Item
	Stats      Stats
	Preview    []PreviewItem
	Converted  []ConvertedFile
	Now        time.Time
}

func Build(in BuildInput, logger *zap.Logger) *Summary {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	revenueYears := Aggregate(in.Revenue, now, logger)
	nonRevenueYears := Aggregate(in.NonRevenue, now, logger)
	totalRevenue := Total(in.Revenue)
	totalNonRevenue := Total(in.NonRevenue)

	revenueDiff := totalRevenue.Sub(sumYears(revenueYears))
	nonRevenueDiff := totalNonRevenue.Sub(sumYears(nonRevenueYears))
	if revenueDiff.Abs().GreaterThan(integrityTolerance) || nonRevenueDiff.Abs().GreaterThan(integrityTolerance) {
		logger.Warn("Bucket totals differ from the sum by years",
			zap.String("revenue_total", totalRevenue.String()),
			zap.String("revenue_difference", revenueDiff.String()),
			zap.String("non_revenue_total", totalNonRevenue.String()),
			zap.String("non_revenue_difference", nonRevenueDiff.String()),
		)
	}

	trailing := Trailing12Months(in.Revenue, now, logger)
	var refEnd *string
	if trailing.ReferenceDate != nil {
		s := FormatISO(*trailing.ReferenceDate)
		refEnd = &s
	}

	preview := in.Preview
	if preview == nil {
		preview = []PreviewItem{}
	}
	converted := in.Converted
	if converted == nil {
		converted = []ConvertedFile{}
	}
	stats := in.Stats

	return &Summary{
		GeneratedAt: FormatISO(now),
		Totals: &Totals{
			Revenue:    amountOf(totalRevenue),
			NonRevenue: amountOf(totalNonRevenue),
		},
		Revenue:    bucketOf(totalRevenue, revenueYears),
		NonRevenue: bucketOf(totalNonRevenue, nonRevenueYears),
		Trailing12MonthsRevenue: &TrailingRevenue{
			Value:                 trailing.Value.InexactFloat64(),
			Formatted:             formatDecimal(trailing.Value),
			ReferencePeriodEndsAt: refEnd,
		},
		Stats:              &stats,
		AutoRevenuePreview: preview,
		ConvertedExcels:    converted,
	}
}

func amountOf(d decimal.Decimal) Amount {
	return Amount{Value: d.InexactFloat64(), Formatted: formatDecimal(d)}
}

func bucketOf(total decimal.Decimal, years []Year) *Bucket {
	return &Bucket{
		TotalValue:     total.InexactFloat64(),
		TotalFormatted: formatDecimal(total),
		Years:          years,
	}
}

// PreviewItem is a display row for one classified transaction.
type PreviewItem struct {
	ID                 string   `json:"id"`
	AmountRaw          *string  `json:"amountRaw"`
	AmountValue        *float64 `json:"amountValue"`
	AmountFormatted    *string  `json:"amountFormatted"`
	Date               *string  `json:"date"`
	Purpose            *string  `json:"purpose"`
	Sender             *string  `json:"sender"`
	Correspondent      *string  `json:"correspondent"`
	Source             *string  `json:"source"`
	Reason             *string  `json:"reason"`
	PossibleNonRevenue bool     `json:"possibleNonRevenue"`
}

const DefaultPreviewLimit = 50

// Preview renders the first limit items. limit <= 0 uses DefaultPreviewLimit.
func Preview(items []*classifier.Item, limit int) []PreviewItem {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	if len(items) < limit {
		limit = len(items)
	}

	out := make([]PreviewItem, 0, limit)
	for _, it := range items[:limit] {
		p := PreviewItem{
			ID:            it.ID,
			AmountRaw:     optional(it.Tx.AmountRaw),
			Purpose:       optional(it.Tx.Purpose),
			Sender:        optional(it.Tx.Sender),
			Correspondent: optional(it.Tx.Correspondent),
			Source:        optional(string(it.Source)),
			Reason:        optional(it.Reason()),
			// Accepted by review although no rule recognised it as revenue.
			PossibleNonRevenue: it.Source == classifier.SourceAgent && it.Result.Tag == classifier.TagAmbiguous && it.Decision != nil && it.Decision.IsRevenue,
		}
		if !it.Tx.Amount.IsZero() {
			v := it.Tx.Amount.InexactFloat64()
			f := formatDecimal(it.Tx.Amount)
			p.AmountValue, p.AmountFormatted = &v, &f
		}
		if it.Tx.Date != nil {
			p.Date = optional(FormatISO(*it.Tx.Date))
		} else {
			p.Date = optional(normalize.FieldValue(it.Record, normalize.DateKeys))
		}
		out = append(out, p)
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
