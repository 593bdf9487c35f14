// Package classifier decides whether an inbound transaction is revenue from
// the sale of goods and services.
package classifier

import (
	"strconv"
	"strings"
	"time"

	"ikap-analysis/internal/normalize"
)

type Tag string

const (
	TagRevenue    Tag = "revenue"
	TagNonRevenue Tag = "non_revenue"
	TagAmbiguous  Tag = "ambiguous"
)

const (
	ReasonNoText    = "нет назначения платежа и отправителя"
	ReasonNoMarkers = "нет явных маркеров"
)

// Result is the heuristic verdict for one transaction.
type Result struct {
	Tag    Tag
	Reason string
}

type Source string

const (
	SourceHeuristic     Source = "heuristic"
	SourceAgentRequired Source = "agent_required"
	SourceAgent         Source = "agent"
)

// Item is a transaction moving through classification.
type Item struct {
	ID     string
	Record normalize.Record
	Tx     normalize.Transaction
	Result Result
	Source Source

	// Decision is set once by the secondary classifier and never replaced.
	Decision *Decision
}

// Reason is the most specific explanation available for the item.
func (it *Item) Reason() string {
	if it.Decision != nil && it.Decision.Reason != "" {
		return it.Decision.Reason
	}
	return it.Result.Reason
}

type Classifier struct {
	rules *RuleTable
}

func New(rules *RuleTable) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify applies the rule table, first match wins:
// refund markers in the purpose, terminal top-ups and other non-revenue
// markers anywhere in purpose+sender, revenue markers in the purpose, and
// generic top-up/transfer wording, which needs context.
func (c *Classifier) Classify(purpose, sender string) Result {
	purpose = strings.ToLower(purpose)
	sender = strings.ToLower(sender)
	if purpose == "" && sender == "" {
		return Result{Tag: TagAmbiguous, Reason: ReasonNoText}
	}
	combined := strings.TrimSpace(purpose + " " + sender)

	steps := []struct {
		kind RuleKind
		text string
		tag  Tag
	}{
		{KindRefund, purpose, TagNonRevenue},
		{KindTerminalTopUp, combined, TagNonRevenue},
		{KindOtherNonRevenue, combined, TagNonRevenue},
		{KindRevenue, purpose, TagRevenue},
		{KindAmbiguousContext, purpose, TagAmbiguous},
	}
	for _, s := range steps {
		if r, ok := c.rules.match(s.kind, s.text); ok {
			return Result{Tag: s.tag, Reason: r.Reason}
		}
	}
	return Result{Tag: TagAmbiguous, Reason: ReasonNoMarkers}
}

// Prepare assigns ids, normalizes and classifies every record.
func (c *Classifier) Prepare(records []normalize.Record, sessionID string, now time.Time) []*Item {
	ids := AttachIDs(records, sessionID)
	items := make([]*Item, len(records))
	for i, r := range records {
		tx := normalize.Normalize(r, now)
		res := c.Classify(tx.Purpose, tx.Sender)
		src := SourceHeuristic
		if res.Tag == TagAmbiguous {
			src = SourceAgentRequired
		}
		items[i] = &Item{ID: ids[i], Record: r, Tx: tx, Result: res, Source: src}
	}
	return items
}

var idKeys = []string{"_ikap_tx_id", "transaction_id", "id", "ID"}

// AttachIDs returns a stable id per record: an existing id field, else
// "<sessionID>_<n>" with n counted from 1. A repeated id gets a "_<n>"
// suffix so every record in the batch is addressable. The id is written back
// under "_ikap_tx_id".
func AttachIDs(records []normalize.Record, sessionID string) []string {
	if sessionID == "" {
		sessionID = "sess"
	}
	ids := make([]string, len(records))
	seen := make(map[string]int, len(records))
	for i, r := range records {
		id := normalize.FieldValue(r, idKeys)
		if id == "" {
			id = sessionID + "_" + strconv.Itoa(i+1)
		}
		for seen[id] > 0 {
			n := seen[id] + 1
			seen[id] = n
			id = id + "_" + strconv.Itoa(n)
		}
		seen[id] = 1
		if r != nil {
			r["_ikap_tx_id"] = id
		}
		ids[i] = id
	}
	return ids
}

// Buckets groups items by heuristic outcome.
type Buckets struct {
	Revenue     []*Item
	NonRevenue  []*Item
	NeedsReview []*Item
}

func Split(items []*Item) Buckets {
	var b Buckets
	for _, it := range items {
		switch it.Result.Tag {
		case TagRevenue:
			b.Revenue = append(b.Revenue, it)
		case TagNonRevenue:
			b.NonRevenue = append(b.NonRevenue, it)
		default:
			b.NeedsReview = append(b.NeedsReview, it)
		}
	}
	return b
}
