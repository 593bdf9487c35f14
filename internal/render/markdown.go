package render

import (
	"fmt"
	"regexp"
	"strings"

	"ikap-analysis/internal/backend"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var (
	headerSeparatorRe = regexp.MustCompile(`(\|[^\n]+?\|)[ \t]*(\|[-:\s|]+\|)`)
	ruPrinter         = message.NewPrinter(language.Russian)
)

// NormalizeMarkdownTables puts a table header and its separator row on
// separate lines and drops blank lines between consecutive table rows.
func NormalizeMarkdownTables(s string) string {
	s = headerSeparatorRe.ReplaceAllString(s, "$1\n$2")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" && len(out) > 0 && isTableRow(out[len(out)-1]) {
			j := i
			for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
				j++
			}
			if j < len(lines) && isTableRow(lines[j]) {
				i = j - 1
				continue
			}
		}
		out = append(out, lines[i])
	}
	return strings.Join(out, "\n")
}

func isTableRow(line string) bool {
	line = strings.TrimSpace(line)
	return len(line) > 1 && strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|")
}

// FinancialStatementsMarkdown renders the short analysis and the indicator
// table returned by the financial statements backend.
func FinancialStatementsMarkdown(analysis string, table []backend.IndicatorRow, years []string) string {
	var parts []string
	if analysis = strings.TrimSpace(analysis); analysis != "" {
		parts = append(parts, "## Краткий анализ\n\n"+analysis)
	}

	if len(table) > 0 && len(years) > 0 {
		header := append([]string{"Показатель"}, years...)
		sep := make([]string, len(header))
		for i := range sep {
			sep[i] = "---"
		}
		rows := []string{
			"| " + strings.Join(header, " | ") + " |",
			"| " + strings.Join(sep, " | ") + " |",
		}
		for _, r := range table {
			cells := []string{r.Indicator}
			for _, y := range years {
				cells = append(cells, indicatorValue(r.Values[y]))
			}
			rows = append(rows, "| "+strings.Join(cells, " | ")+" |")
		}
		parts = append(parts, "## Финансовые показатели", strings.Join(rows, "\n"))
	}

	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

func indicatorValue(v any) string {
	switch n := v.(type) {
	case nil:
		return "—"
	case float64:
		return ruPrinter.Sprint(number.Decimal(n, number.MaxFractionDigits(0)))
	case string:
		return n
	default:
		return fmt.Sprint(n)
	}
}
