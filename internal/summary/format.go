package summary

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var ruPrinter = message.NewPrinter(language.Russian)

// MonthNames are Russian nominative month names, January first.
var MonthNames = [12]string{
	"январь", "февраль", "март", "апрель", "май", "июнь",
	"июль", "август", "сентябрь", "октябрь", "ноябрь", "декабрь",
}

// FormatKZT renders v with ru-RU digit grouping, two decimals and the currency code.
func FormatKZT(v float64) string {
	return ruPrinter.Sprint(number.Decimal(v, number.Scale(2))) + " KZT"
}

func formatDecimal(d decimal.Decimal) string {
	return FormatKZT(d.InexactFloat64())
}

// isoTime matches the millisecond UTC form used for every timestamp in a summary.
const isoTime = "2006-01-02T15:04:05.000Z07:00"

func FormatISO(t time.Time) string {
	return t.UTC().Format(isoTime)
}
