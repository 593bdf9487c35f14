package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)

func TestFieldValue(t *testing.T) {
	r := Record{
		"Назначение":   nil,
		"purpose":      "Оплата",
		"description":  "ignored",
		"Кредит":       1500.5,
		"Примечание":   map[string]any{"x": 1},
		"comment":      []string{"skipped"},
		"Комментарий":  true,
		"counterparty": json.Number("42"),
	}

	assert.Equal(t, "Оплата", FieldValue(r, PurposeKeys))
	assert.Equal(t, "1500.5", FieldValue(r, AmountKeys))
	assert.Equal(t, "", FieldValue(r, CommentKeys))
	assert.Equal(t, "42", FieldValue(r, SenderKeys))
	assert.Equal(t, "", FieldValue(nil, PurposeKeys))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  any
		want string
	}{
		{"1 500 000,50", "1500000.5"},
		{"1 500 000,50", "1500000.5"},
		{"1 234.56", "1234.56"},
		{"1'234'567", "1234567"},
		{"1,234.56", "1234.56"},
		{"1.234,56", "1234.56"},
		{"1.500.000", "1500000"},
		{"1,500,000", "1500000"},
		{"1,234,56", "1234.56"},
		{"12,5", "12.5"},
		{"12.5", "12.5"},
		{"1.500", "1500"},
		{"-200,00", "-200"},
		{"+300", "300"},
		{"200000", "200000"},
		{"200 000 KZT", "200000"},
		{"—", "0"},
		{"", "0"},
		{"abc", "0"},
		{nil, "0"},
		{1500.25, "1500.25"},
		{42, "42"},
	}

	for _, tt := range tests {
		got := ParseAmount(tt.raw)
		want, err := decimal.NewFromString(tt.want)
		require.NoError(t, err)
		assert.Truef(t, want.Equal(got), "ParseAmount(%#v) = %s, want %s", tt.raw, got, want)
	}
}

func TestParseDateRoundTrip(t *testing.T) {
	want := time.Date(2025, time.September, 15, 0, 0, 0, 0, time.UTC)

	for _, raw := range []any{"15.09.2025", "2025-09-15", "15 сентября 2025", "15 сентября 2025 г.", 45915.0, "45915", "15/09/2025", "15-09-25", "2025/09/15"} {
		got, ok := ParseDate(raw, now)
		require.Truef(t, ok, "ParseDate(%#v) failed", raw)
		assert.Truef(t, want.Equal(got), "ParseDate(%#v) = %s", raw, got)
	}
}

func TestParseDateForms(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want time.Time
		ok   bool
	}{
		{"with time", "05.01.2025 14:30:15", time.Date(2025, 1, 5, 14, 30, 15, 0, time.UTC), true},
		{"short time", "05.01.2025 14:30", time.Date(2025, 1, 5, 14, 30, 0, 0, time.UTC), true},
		{"serial next day", 45916.0, time.Date(2025, 9, 16, 0, 0, 0, 0, time.UTC), true},
		{"incomplete", ".03.2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"pivot below", "01.02.69", time.Date(2069, 2, 1, 0, 0, 0, 0, time.UTC), true},
		{"pivot at", "01.02.70", time.Date(1970, 2, 1, 0, 0, 0, 0, time.UTC), true},
		{"iso time", "2025-01-05T10:20:30Z", time.Date(2025, 1, 5, 10, 20, 30, 0, time.UTC), true},
		{"short month word", "3 дек 2024", time.Date(2024, 12, 3, 0, 0, 0, 0, time.UTC), true},
		{"timestamp", float64(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"time value", time.Date(2024, 6, 1, 0, 0, 0, 0, time.FixedZone("x", 3600)), time.Date(2024, 5, 31, 23, 0, 0, 0, time.UTC), true},
		{"invalid day", "31.02.2025", time.Time{}, false},
		{"serial out of range", 100.0, time.Time{}, false},
		{"unknown month", "15 smarch 2025", time.Time{}, false},
		{"none", "None", time.Time{}, false},
		{"garbage", "дата", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.raw, now)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}
}

func TestTransactionDateFallbackScan(t *testing.T) {
	t.Run("primary field", func(t *testing.T) {
		got, ok := TransactionDate(Record{"Дата операции": "10.01.2025", "Детали": "от 01.01.2024"}, now)
		require.True(t, ok)
		assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("embedded in free text", func(t *testing.T) {
		r := Record{
			"Дата":              "",
			"bank_name":         "Банк 01.01.2020",
			"_ikap_source":      "12.12.2021",
			"Детали платежа":    "Оплата по счету 15 от 03.02.2025 12:00",
			"Номер документа":   "1.2.3",
		}
		got, ok := TransactionDate(r, now)
		require.True(t, ok)
		assert.Equal(t, time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC), got)
	})

	t.Run("implausible year skipped", func(t *testing.T) {
		got, ok := TransactionDate(Record{"a": "01.01.1999", "b": "02.02.2024"}, now)
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("amount is not a serial date", func(t *testing.T) {
		_, ok := TransactionDate(Record{"amount": 45915.0}, now)
		assert.False(t, ok)
	})

	t.Run("nothing found", func(t *testing.T) {
		_, ok := TransactionDate(Record{"amount": "—", "purpose": "без даты"}, now)
		assert.False(t, ok)
	})
}

func TestNormalize(t *testing.T) {
	tx := Normalize(Record{
		"Сумма":              "1 500 000,50",
		"Дата":               "05.01.2025",
		"Назначение платежа": "  Оплата   по договору\nпоставки №12 ",
		"Плательщик":         "ТОО  Ромашка",
		"Получатель":         "ТОО Заявитель",
		"БИН":                "123456789012",
	}, now)

	assert.Equal(t, "1 500 000,50", tx.AmountRaw)
	assert.True(t, decimal.RequireFromString("1500000.50").Equal(tx.Amount))
	require.NotNil(t, tx.Date)
	assert.Equal(t, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), *tx.Date)
	assert.Equal(t, "Оплата по договору поставки №12", tx.Purpose)
	assert.Equal(t, "ТОО Ромашка", tx.Sender)
	assert.Equal(t, "ТОО Заявитель", tx.Correspondent)
	assert.Equal(t, "123456789012", tx.BIN)
}
