// Package normalize extracts typed values from loosely-typed transaction rows
// produced by statement converters. Field names differ between banks,
// languages and converter versions, so every lookup goes through an ordered
// alias list.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is a single extracted row.
type Record map[string]any

var (
	PurposeKeys = []string{
		"Назначение платежа", "назначение платежа", "Назначение", "назначение",
		"Purpose", "purpose", "Комментарий", "comment", "description", "Description", "Details",
	}
	SenderKeys = []string{
		"Отправитель", "отправитель", "Плательщик", "плательщик",
		"Контрагент", "counterparty", "sender", "payer",
	}
	CorrespondentKeys = []string{
		"Корреспондент", "корреспондент", "Correspondent", "correspondent",
		"Получатель", "получатель", "Beneficiary", "beneficiary", "counterparty",
	}
	AmountKeys = []string{
		"Кредит", "credit", "Сумма", "сумма", "Amount", "amount", "value",
	}
	DateKeys = []string{
		"Дата", "дата", "Date", "date", "та",
		"Дата операции", "дата операции", "Дата платежа", "дата платежа",
		"Дата документа", "дата документа", "operation date", "transaction date",
		"Value Date", "value date", "күні",
	}
	BINKeys     = []string{"БИН/ИИН", "БИН", "ИИН", "BIN", "IIN", "bin", "iin"}
	CommentKeys = []string{"Комментарий", "comment", "Примечание"}
)

// Transaction is a row after normalization.
type Transaction struct {
	AmountRaw     string
	Amount        decimal.Decimal
	Date          *time.Time
	Purpose       string
	Sender        string
	Correspondent string
	BIN           string
	Comment       string
}

// FieldValue returns the first present, non-nil string or number among keys,
// rendered as a string. Values of any other type are skipped.
func FieldValue(r Record, keys []string) string {
	if r == nil {
		return ""
	}
	for _, key := range keys {
		v, ok := r[key]
		if !ok || v == nil {
			continue
		}
		if s, ok := stringify(v); ok {
			return s
		}
	}
	return ""
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case decimal.Decimal:
		return t.String(), true
	}
	return "", false
}

// CleanText collapses whitespace runs into single spaces.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Normalize extracts every field of interest from r. now bounds the
// plausible-year checks of date parsing.
func Normalize(r Record, now time.Time) Transaction {
	raw := FieldValue(r, AmountKeys)
	tx := Transaction{
		AmountRaw:     raw,
		Amount:        ParseAmount(raw),
		Purpose:       CleanText(FieldValue(r, PurposeKeys)),
		Sender:        CleanText(FieldValue(r, SenderKeys)),
		Correspondent: CleanText(FieldValue(r, CorrespondentKeys)),
		BIN:           CleanText(FieldValue(r, BINKeys)),
		Comment:       CleanText(FieldValue(r, CommentKeys)),
	}
	if d, ok := TransactionDate(r, now); ok {
		tx.Date = &d
	}
	return tx
}
