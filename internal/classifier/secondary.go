package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ikap-analysis/internal/normalize"

	"go.uber.org/zap"
)

// Descriptor is the reduced view of a transaction sent for secondary review.
type Descriptor struct {
	ID            string `json:"id"`
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	Purpose       string `json:"purpose"`
	Sender        string `json:"sender"`
	Correspondent string `json:"correspondent"`
	BIN           string `json:"bin"`
	Comment       string `json:"comment"`
}

// Decision is an externally supplied verdict. Once attached to an item it is final.
type Decision struct {
	ID        string `json:"id"`
	IsRevenue bool   `json:"is_revenue"`
	Reason    string `json:"reason"`
}

func (d *Decision) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        any    `json:"id"`
		IsRevenue any    `json:"is_revenue"`
		Reason    string `json:"reason"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.ID.(type) {
	case string:
		d.ID = v
	case float64:
		d.ID = strconv.FormatFloat(v, 'f', -1, 64)
	}
	switch v := raw.IsRevenue.(type) {
	case bool:
		d.IsRevenue = v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "да", "yes", "1":
			d.IsRevenue = true
		}
	case float64:
		d.IsRevenue = v != 0
	}
	d.Reason = raw.Reason
	return nil
}

// SecondaryClassifier resolves transactions the heuristics could not.
// Ids missing from the answer stay unresolved.
type SecondaryClassifier interface {
	ClassifyBatch(ctx context.Context, batch []Descriptor) ([]Decision, error)
}

var ErrNoDecisions = errors.New("no decisions in classifier response")

// Describe builds the descriptor of an item.
func Describe(it *Item) Descriptor {
	return Descriptor{
		ID:            it.ID,
		Date:          normalize.FieldValue(it.Record, normalize.DateKeys),
		Amount:        it.Tx.AmountRaw,
		Purpose:       it.Tx.Purpose,
		Sender:        it.Tx.Sender,
		Correspondent: it.Tx.Correspondent,
		BIN:           it.Tx.BIN,
		Comment:       it.Tx.Comment,
	}
}

// Instructions is the system prompt for an LLM-backed secondary classifier.
const Instructions = `Ты финансовый аналитик. Классифицируй операции, по которым нет однозначного понимания, является ли поступление выручкой от реализации товаров и услуг.

Каждая операция имеет поля id, date, amount, purpose и иногда sender, correspondent, bin, comment.

Правила:
1. Для каждой операции верни is_revenue (true/false) и короткое объяснение reason.
2. Выручка: платежи клиентов за товары и услуги ("оплата", "реализация", "invoice", "services", "договор поставки", "СФ", "счет-фактура", "акт оказанных услуг"). "Продажи с Kaspi.kz" всегда выручка.
3. Не выручка: назначение со словами "возврат" или "возмещение" (даже при других маркерах выручки), переводы между своими счетами (одинаковый БИН/ИИН), займы, кредиты, инвестиции, субсидии, депозиты, дивиденды, зарплаты, налоги, штрафы, безвозмездная и материальная помощь, пополнение через терминал или банкомат ("cash in", "наличность в терминалах").
4. "Пополнение счета" без упоминания терминала может быть выручкой, если отправитель клиент. Проверяй correspondent, sender и bin.
5. Если сомневаешься и видны признаки собственных средств, выбирай false.

Формат ответа строго JSON без текста:
{"transactions": [{"id": "tx_1", "is_revenue": true, "reason": "оплата по договору поставки"}]}`

// BuildPrompt renders the user message for a batch.
func BuildPrompt(batch []Descriptor) (string, error) {
	payload, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal descriptors: %w", err)
	}
	return strings.Join([]string{
		"Ниже операции, которые нужно классифицировать как выручка или нет.",
		"Верни JSON в соответствии с инструкцией, без дополнительных пояснений.",
		"transactions_for_review:",
		"```json",
		string(payload),
		"```",
	}, "\n"), nil
}

// ParseDecisions extracts decisions from a model answer. It accepts a bare
// JSON array, an object with a "transactions" array, either one wrapped in a
// markdown code fence, or embedded in surrounding prose.
func ParseDecisions(content string) ([]Decision, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrNoDecisions
	}

	candidates := []string{content}
	if fenced := stripFence(content); fenced != content {
		candidates = append(candidates, fenced)
	}
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		candidates = append(candidates, content[start:end+1])
	}
	if start, end := strings.Index(content, "["), strings.LastIndex(content, "]"); start >= 0 && end > start {
		candidates = append(candidates, content[start:end+1])
	}

	for _, c := range candidates {
		if ds, ok := decodeDecisions(c); ok {
			return ds, nil
		}
	}
	return nil, ErrNoDecisions
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func decodeDecisions(s string) ([]Decision, bool) {
	var list []Decision
	if err := json.Unmarshal([]byte(s), &list); err == nil {
		return list, true
	}
	var wrapped struct {
		Transactions []Decision `json:"transactions"`
	}
	if err := json.Unmarshal([]byte(s), &wrapped); err == nil && wrapped.Transactions != nil {
		return wrapped.Transactions, true
	}
	return nil, false
}

// Resolution is the outcome of the secondary pass.
type Resolution struct {
	Revenue    []*Item
	NonRevenue []*Item
	Unresolved []*Item
	Reviewed   int
	Decisions  int
}

// Resolve sends items to sc in batches of batchSize. A failed batch leaves
// its items unresolved; the pass itself never fails.
func Resolve(ctx context.Context, sc SecondaryClassifier, items []*Item, batchSize int, logger *zap.Logger) Resolution {
	res := Resolution{Reviewed: len(items)}
	if sc == nil || len(items) == 0 {
		res.Unresolved = items
		return res
	}
	if batchSize <= 0 {
		batchSize = len(items)
	}

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		if err := ctx.Err(); err != nil {
			res.Unresolved = append(res.Unresolved, items[start:]...)
			logger.Warn("Secondary classification interrupted", zap.Int("remaining", len(items)-start), zap.Error(err))
			break
		}

		descriptors := make([]Descriptor, len(batch))
		byID := make(map[string]*Item, len(batch))
		for i, it := range batch {
			descriptors[i] = Describe(it)
			byID[it.ID] = it
		}

		decisions, err := sc.ClassifyBatch(ctx, descriptors)
		if err != nil {
			logger.Error("Secondary classification batch failed",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			res.Unresolved = append(res.Unresolved, batch...)
			continue
		}

		for _, d := range decisions {
			it, ok := byID[d.ID]
			if !ok || it.Decision != nil {
				continue
			}
			decision := d
			it.Decision = &decision
			it.Source = SourceAgent
			res.Decisions++
		}

		for _, it := range batch {
			switch {
			case it.Decision == nil:
				res.Unresolved = append(res.Unresolved, it)
			case it.Decision.IsRevenue:
				res.Revenue = append(res.Revenue, it)
			default:
				res.NonRevenue = append(res.NonRevenue, it)
			}
		}
	}

	return res
}
