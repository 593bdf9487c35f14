package classifier

import (
	"testing"
	"time"

	"ikap-analysis/internal/normalize"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := New(nil)

	tests := []struct {
		name    string
		purpose string
		sender  string
		tag     Tag
		reason  string
	}{
		{"empty", "", "", TagAmbiguous, ReasonNoText},
		{"refund beats revenue", "Возврат по договору поставки", "", TagNonRevenue, `обнаружены слова "возврат" или "возмещение" в назначении платежа`},
		{"compensation", "Возмещение расходов", "", TagNonRevenue, `обнаружены слова "возврат" или "возмещение" в назначении платежа`},
		{"terminal in purpose", "Пополнение через терминал", "", TagNonRevenue, "пополнение через терминал - не выручка (собственные средства)"},
		{"terminal in sender", "", "CASH IN терминал 12", TagNonRevenue, "пополнение через терминал - не выручка (собственные средства)"},
		{"loan", "Выдача кредита по договору", "", TagNonRevenue, "обнаружены маркеры невыручки"},
		{"tax before revenue", "Оплата налога", "", TagNonRevenue, "обнаружены маркеры невыручки"},
		{"revenue", "Оплата по договору №5 за услуги", "ТОО Клиент", TagRevenue, "обнаружены маркеры выручки"},
		{"kaspi", "Продажи с Kaspi.kz", "", TagRevenue, "обнаружены маркеры выручки"},
		{"topup needs context", "Пополнение счета", "", TagAmbiguous, "пополнение/перевод требует анализа контекста"},
		{"transfer needs context", "Перевод собственных средств", "", TagAmbiguous, "пополнение/перевод требует анализа контекста"},
		{"no markers", "Прочее", "ИП Иванов", TagAmbiguous, ReasonNoMarkers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.purpose, tt.sender)
			assert.Equal(t, tt.tag, got.Tag)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestClassifyRevenueMarkerInSenderOnly(t *testing.T) {
	got := New(nil).Classify("", "Оплата по договору")
	assert.Equal(t, TagAmbiguous, got.Tag)
	assert.Equal(t, ReasonNoMarkers, got.Reason)
}

func TestAttachIDs(t *testing.T) {
	records := []normalize.Record{
		{"id": "abc"},
		{"purpose": "x"},
		{"transaction_id": 77.0},
		{"_ikap_tx_id": "kept", "id": "other"},
	}

	ids := AttachIDs(records, "s1")

	assert.Equal(t, []string{"abc", "s1_2", "77", "kept"}, ids)
	for i, r := range records {
		assert.Equal(t, ids[i], r["_ikap_tx_id"])
	}
	assert.Equal(t, ids, AttachIDs(records, "s1"))
}

func TestAttachIDsDuplicates(t *testing.T) {
	records := []normalize.Record{
		{"id": "1"},
		{"id": "1"},
		{"id": "1"},
		{"id": "1_2"},
		{"purpose": "x"},
		{"id": "s1_5"},
	}

	ids := AttachIDs(records, "s1")

	assert.Equal(t, []string{"1", "1_2", "1_3", "1_2_2", "s1_5", "s1_5_2"}, ids)
	assert.Equal(t, ids, AttachIDs(records, "s1"))
}

func TestPrepareAndSplit(t *testing.T) {
	now := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	records := []normalize.Record{
		{"Назначение платежа": "Оплата за товар", "Кредит": "1 000,00", "Дата": "05.01.2025"},
		{"Назначение платежа": "Возврат", "Кредит": "50"},
		{"Назначение платежа": "Пополнение", "Кредит": "10"},
	}

	items := New(nil).Prepare(records, "sess", now)
	require.Len(t, items, 3)
	assert.Equal(t, SourceHeuristic, items[0].Source)
	assert.Equal(t, SourceAgentRequired, items[2].Source)
	assert.True(t, items[0].Tx.Amount.Equal(decimal.NewFromInt(1000)))
	require.NotNil(t, items[0].Tx.Date)

	b := Split(items)
	assert.Len(t, b.Revenue, 1)
	assert.Len(t, b.NonRevenue, 1)
	assert.Len(t, b.NeedsReview, 1)
	assert.Equal(t, "sess_3", b.NeedsReview[0].ID)
}

func TestParseRules(t *testing.T) {
	t.Run("custom table", func(t *testing.T) {
		table, err := ParseRules([]byte(`
rules:
  - kind: revenue
    reason: custom
    keywords: ["  ПРОДАЖА ", ""]
`))
		require.NoError(t, err)
		require.Len(t, table.Rules, 1)
		assert.Equal(t, []string{"продажа"}, table.Rules[0].Keywords)

		got := New(table).Classify("Продажа товара", "")
		assert.Equal(t, Result{Tag: TagRevenue, Reason: "custom"}, got)
	})

	for name, data := range map[string]string{
		"unknown kind": "rules:\n  - kind: bogus\n    keywords: [x]\n",
		"empty":        "rules: []\n",
		"malformed":    "rules: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRules([]byte(data))
			assert.ErrorIs(t, err, ErrInvalidRules)
		})
	}
}

func TestDefaultRulesCoverEveryKind(t *testing.T) {
	seen := map[RuleKind]bool{}
	for _, r := range DefaultRules().Rules {
		seen[r.Kind] = true
		assert.NotEmpty(t, r.Reason)
	}
	assert.Len(t, seen, len(knownKinds))
}
