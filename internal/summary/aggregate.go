// Package summary aggregates classified transactions into the structured
// statements report.
package summary

import (
	"sort"
	"time"

	"ikap-analysis/internal/classifier"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// futureTolerance is how far past now a date may be before it is treated as
// an extraction error.
const futureTolerance = 3 * 24 * time.Hour

type Month struct {
	Month     int     `json:"month"`
	MonthName string  `json:"monthName"`
	Value     float64 `json:"value"`
	Formatted string  `json:"formatted"`
}

type Year struct {
	Year      int     `json:"year"`
	Value     float64 `json:"value"`
	Formatted string  `json:"formatted"`
	Months    []Month `json:"months"`
}

type Trailing struct {
	Value         decimal.Decimal
	ReferenceDate *time.Time
}

// qualifies reports whether it contributes to dated aggregates.
func qualifies(it *classifier.Item, now time.Time, logger *zap.Logger) (decimal.Decimal, time.Time, bool) {
	amount := it.Tx.Amount
	if !amount.IsPositive() || it.Tx.Date == nil {
		return decimal.Zero, time.Time{}, false
	}
	date := *it.Tx.Date
	if date.After(now.Add(futureTolerance)) {
		logger.Warn("Transaction dated in the future skipped",
			zap.String("transaction_id", it.ID),
			zap.Time("date", date),
			zap.String("amount", amount.String()),
			zap.String("purpose", it.Tx.Purpose),
		)
		return decimal.Zero, time.Time{}, false
	}
	return amount, date, true
}

// Aggregate sums positive, dated amounts by year and month. Years and months
// are ascending.
func Aggregate(items []*classifier.Item, now time.Time, logger *zap.Logger) []Year {
	if logger == nil {
		logger = zap.NewNop()
	}

	type yearAcc struct {
		total  decimal.Decimal
		months map[time.Month]decimal.Decimal
	}
	years := make(map[int]*yearAcc)

	for _, it := range items {
		amount, date, ok := qualifies(it, now, logger)
		if !ok {
			continue
		}
		date = date.UTC()
		acc, ok := years[date.Year()]
		if !ok {
			acc = &yearAcc{months: make(map[time.Month]decimal.Decimal)}
			years[date.Year()] = acc
		}
		acc.total = acc.total.Add(amount)
		acc.months[date.Month()] = acc.months[date.Month()].Add(amount)
	}

	keys := make([]int, 0, len(years))
	for y := range years {
		keys = append(keys, y)
	}
	sort.Ints(keys)

	out := make([]Year, 0, len(keys))
	for _, y := range keys {
		acc := years[y]
		months := make([]time.Month, 0, len(acc.months))
		for m := range acc.months {
			months = append(months, m)
		}
		sort.Slice(months, func(i, j int) bool { return months[i] < months[j] })

		year := Year{
			Year:      y,
			Value:     acc.total.InexactFloat64(),
			Formatted: formatDecimal(acc.total),
			Months:    make([]Month, 0, len(months)),
		}
		for _, m := range months {
			v := acc.months[m]
			year.Months = append(year.Months, Month{
				Month:     int(m),
				MonthName: MonthNames[m-1],
				Value:     v.InexactFloat64(),
				Formatted: formatDecimal(v),
			})
		}
		out = append(out, year)
	}
	return out
}

// Trailing12Months sums qualifying amounts between the first day of the
// month eleven months before the latest date and the latest date itself.
func Trailing12Months(items []*classifier.Item, now time.Time, logger *zap.Logger) Trailing {
	if logger == nil {
		logger = zap.NewNop()
	}

	type dated struct {
		amount decimal.Decimal
		date   time.Time
	}
	var list []dated
	var ref time.Time
	for _, it := range items {
		amount, date, ok := qualifies(it, now, logger)
		if !ok {
			continue
		}
		list = append(list, dated{amount, date})
		if date.After(ref) {
			ref = date
		}
	}
	if len(list) == 0 {
		return Trailing{Value: decimal.Zero}
	}

	ref = ref.UTC()
	start := time.Date(ref.Year(), ref.Month()-11, 1, 0, 0, 0, 0, time.UTC)
	total := decimal.Zero
	for _, d := range list {
		if !d.date.Before(start) && !d.date.After(ref) {
			total = total.Add(d.amount)
		}
	}
	return Trailing{Value: total, ReferenceDate: &ref}
}

// Total sums the positive amounts of items, dated or not.
func Total(items []*classifier.Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		if it.Tx.Amount.IsPositive() {
			total = total.Add(it.Tx.Amount)
		}
	}
	return total
}

func sumYears(years []Year) decimal.Decimal {
	total := decimal.Zero
	for _, y := range years {
		total = total.Add(decimal.NewFromFloat(y.Value))
	}
	return total
}
