package render

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"ikap-analysis/internal/backend"
	"ikap-analysis/internal/classifier"
	"ikap-analysis/internal/normalize"
	"ikap-analysis/internal/summary"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, time.February, 1, 10, 30, 0, 0, time.UTC)

func sampleSummary(t *testing.T) *summary.Summary {
	t.Helper()
	items := classifier.New(nil).Prepare([]normalize.Record{
		{"amount": "1 500 000,50", "date": "05.01.2025", "purpose": "Оплата по договору поставки №12"},
		{"amount": "200000", "date": "10.01.2025", "purpose": "Возврат средств по договору"},
	}, "s", now)
	b := classifier.Split(items)
	return summary.Build(summary.BuildInput{
		Revenue:    b.Revenue,
		NonRevenue: b.NonRevenue,
		Stats:      summary.Stats{TotalTransactions: 2, AutoRevenue: 1},
		Now:        now,
	}, nil)
}

func TestFormatSummary(t *testing.T) {
	s := sampleSummary(t)
	text := FormatSummary(s)

	rev := summary.FormatKZT(1500000.5)
	non := summary.FormatKZT(200000)
	want := strings.Join([]string{
		"📊 ФИНАНСОВЫЙ ОТЧЁТ",
		"",
		"Дата формирования: 1 февраля 2025 г., 10:30",
		"",
		"💰 ИТОГОВЫЕ СУММЫ",
		"",
		"Выручка: " + rev,
		"Не выручка: " + non,
		"",
		"📈 ВЫРУЧКА",
		"",
		"Общая сумма: " + rev,
		"",
		"Год 2025: " + rev,
		"  • Январь: " + rev,
		"",
		"📉 НЕ ВЫРУЧКА",
		"",
		"Общая сумма: " + non,
		"",
		"Год 2025: " + non,
		"  • Январь: " + non,
		"",
		"📅 ВЫРУЧКА ЗА ПОСЛЕДНИЕ 12 МЕСЯЦЕВ",
		"",
		"Сумма: " + rev,
		"Период заканчивается: 5 января 2025 г.",
		"",
		"📊 СТАТИСТИКА",
		"",
		"Всего транзакций: 2",
		"Автоматически классифицировано как выручка: 1",
		"Проверено агентом: 0",
		"Решений от агента: 0",
	}, "\n")

	assert.Equal(t, want, text)
	assert.Equal(t, text, FormatSummary(s))
}

func TestFormatSummaryPartial(t *testing.T) {
	assert.Equal(t, Unavailable, FormatSummary(nil))

	s := sampleSummary(t)
	s.Trailing12MonthsRevenue = nil
	s.Stats = nil
	text := FormatSummary(s)
	assert.NotContains(t, text, "ПОСЛЕДНИЕ 12 МЕСЯЦЕВ")
	assert.NotContains(t, text, "СТАТИСТИКА")

	s.Stats = &summary.Stats{Unresolved: 3}
	assert.Contains(t, FormatSummary(s), "Неразрешённых: 3")
}

func TestFormatSummaryFailedFiles(t *testing.T) {
	s := sampleSummary(t)
	s.ConvertedExcels = []summary.ConvertedFile{
		{FileName: "missing.pdf", Error: "файл не найден"},
		{FileName: "kaspi.json", Transactions: 3},
	}

	text := FormatSummary(s)
	assert.True(t, strings.HasSuffix(text, "\n\n⚠️ ФАЙЛЫ С ОШИБКАМИ ПРИ ОБРАБОТКЕ:\nmissing.pdf: файл не найден"))
	assert.NotContains(t, text, "kaspi.json")

	data, err := json.Marshal(s)
	require.NoError(t, err)
	raw := string(data)
	assert.Equal(t, text, EnsureHumanReadable("", &raw))
}

func TestEnsureHumanReadable(t *testing.T) {
	s := sampleSummary(t)
	data, err := json.Marshal(s)
	require.NoError(t, err)
	raw := string(data)
	rendered := FormatSummary(s)

	t.Run("structured wins", func(t *testing.T) {
		assert.Equal(t, rendered, EnsureHumanReadable("stale text", &raw))
	})

	t.Run("serialized summary in text", func(t *testing.T) {
		assert.Equal(t, rendered, EnsureHumanReadable(raw, nil))
	})

	t.Run("unrelated json kept", func(t *testing.T) {
		assert.Equal(t, `{"foo":1}`, EnsureHumanReadable(`{"foo":1}`, nil))
	})

	t.Run("plain text kept", func(t *testing.T) {
		broken := "{not json"
		assert.Equal(t, "Отчёт готов", EnsureHumanReadable("Отчёт готов", &broken))
	})

	t.Run("idempotent", func(t *testing.T) {
		assert.Equal(t, rendered, EnsureHumanReadable(EnsureHumanReadable(raw, nil), nil))
	})
}

func TestNormalizeMarkdownTables(t *testing.T) {
	in := "Итог\n\n| Показатель | 2024 | | --- | --- |\n\n| Выручка | 10 |\n\n| Прибыль | 2 |\n\nКонец"
	want := "Итог\n\n| Показатель | 2024 |\n| --- | --- |\n| Выручка | 10 |\n| Прибыль | 2 |\n\nКонец"
	assert.Equal(t, want, NormalizeMarkdownTables(in))
	assert.Equal(t, want, NormalizeMarkdownTables(want))
}

func TestFinancialStatementsMarkdown(t *testing.T) {
	table := []backend.IndicatorRow{
		{Indicator: "Выручка", Values: map[string]any{"2023": 1500.0, "2024": "н/д"}},
		{Indicator: "Прибыль", Values: map[string]any{"2023": nil}},
	}

	got := FinancialStatementsMarkdown("Рост выручки.", table, []string{"2023", "2024"})

	assert.True(t, strings.HasPrefix(got, "## Краткий анализ\n\nРост выручки.\n\n## Финансовые показатели\n\n"))
	assert.Contains(t, got, "| Показатель | 2023 | 2024 |\n| --- | --- | --- |\n")
	assert.Contains(t, got, "| Выручка | "+indicatorValue(1500.0)+" | н/д |")
	assert.Contains(t, got, "| Прибыль | — | — |")
	assert.Equal(t, "", FinancialStatementsMarkdown("", nil, nil))
}
