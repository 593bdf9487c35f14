// Package render turns structured reports into the text shown to users.
package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ikap-analysis/internal/summary"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const Unavailable = "Отчёт недоступен."

var titleCase = cases.Title(language.Russian)

var genitiveMonths = [12]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// FormatSummary renders s as plain text. Absent sections are omitted and the
// output depends on s alone.
func FormatSummary(s *summary.Summary) string {
	if s == nil {
		return Unavailable
	}

	var lines []string
	add := func(l ...string) { lines = append(lines, l...) }

	add("📊 ФИНАНСОВЫЙ ОТЧЁТ", "")

	if s.GeneratedAt != "" {
		if t, err := time.Parse(time.RFC3339, s.GeneratedAt); err == nil {
			add("Дата формирования: "+longDateTime(t), "")
		}
	}

	if s.Totals != nil {
		add("💰 ИТОГОВЫЕ СУММЫ", "")
		add("Выручка: "+amountText(s.Totals.Revenue.Formatted, s.Totals.Revenue.Value))
		add("Не выручка: "+amountText(s.Totals.NonRevenue.Formatted, s.Totals.NonRevenue.Value))
		add("")
	}

	if s.Revenue != nil {
		add(bucketLines("📈 ВЫРУЧКА", s.Revenue)...)
	}
	if s.NonRevenue != nil {
		add(bucketLines("📉 НЕ ВЫРУЧКА", s.NonRevenue)...)
	}

	if tr := s.Trailing12MonthsRevenue; tr != nil {
		add("📅 ВЫРУЧКА ЗА ПОСЛЕДНИЕ 12 МЕСЯЦЕВ", "")
		add("Сумма: " + amountText(tr.Formatted, tr.Value))
		if tr.ReferencePeriodEndsAt != nil {
			if t, err := time.Parse(time.RFC3339, *tr.ReferencePeriodEndsAt); err == nil {
				add("Период заканчивается: " + longDate(t))
			}
		}
		add("")
	}

	if st := s.Stats; st != nil {
		add("📊 СТАТИСТИКА", "")
		add(
			fmt.Sprintf("Всего транзакций: %d", st.TotalTransactions),
			fmt.Sprintf("Автоматически классифицировано как выручка: %d", st.AutoRevenue),
			fmt.Sprintf("Проверено агентом: %d", st.AgentReviewed),
			fmt.Sprintf("Решений от агента: %d", st.AgentDecisions),
		)
		if st.Unresolved > 0 {
			add(fmt.Sprintf("Неразрешённых: %d", st.Unresolved))
		}
		add("")
	}

	var failed []string
	for _, f := range s.ConvertedExcels {
		if f.Error != "" {
			failed = append(failed, f.FileName+": "+f.Error)
		}
	}
	if len(failed) > 0 {
		add("⚠️ ФАЙЛЫ С ОШИБКАМИ ПРИ ОБРАБОТКЕ:")
		add(failed...)
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func bucketLines(title string, b *summary.Bucket) []string {
	lines := []string{title, "", "Общая сумма: " + amountText(b.TotalFormatted, b.TotalValue), ""}
	for _, y := range b.Years {
		lines = append(lines, fmt.Sprintf("Год %d: %s", y.Year, summary.FormatKZT(y.Value)))
		for _, m := range y.Months {
			lines = append(lines, fmt.Sprintf("  • %s: %s", titleCase.String(monthName(m)), amountText(m.Formatted, m.Value)))
		}
		lines = append(lines, "")
	}
	return lines
}

func monthName(m summary.Month) string {
	if m.MonthName != "" {
		return m.MonthName
	}
	if m.Month >= 1 && m.Month <= 12 {
		return summary.MonthNames[m.Month-1]
	}
	return "неизвестно"
}

func amountText(formatted string, value float64) string {
	if formatted != "" {
		return formatted
	}
	return summary.FormatKZT(value)
}

func longDate(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%d %s %d г.", t.Day(), genitiveMonths[t.Month()-1], t.Year())
}

func longDateTime(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s, %02d:%02d", longDate(t), t.Hour(), t.Minute())
}

// EnsureHumanReadable returns the text to show for a stored statements report.
// A parseable structured value always wins; otherwise text that is itself a
// serialized summary is re-rendered.
func EnsureHumanReadable(text string, structured *string) string {
	if structured != nil {
		if s, ok := decodeSummary(*structured); ok {
			return FormatSummary(s)
		}
	}

	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return text
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return text
	}
	if !hasAny(probe, "generatedAt", "totals", "revenue") {
		return text
	}
	if s, ok := decodeSummary(trimmed); ok {
		return FormatSummary(s)
	}
	return text
}

func decodeSummary(raw string) (*summary.Summary, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, false
	}
	var s summary.Summary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, false
	}
	return &s, true
}

func hasAny(m map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		if v, ok := m[k]; ok && string(v) != "null" {
			return true
		}
	}
	return false
}
