package main

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// HistoryKey is the storage slot holding the serialized history list
const HistoryKey = "sentinel_audit_v2"

// HistoryItem is an immutable record of one completed quick scan
type HistoryItem struct {
	ID           string    `json:"id"`
	Timestamp    string    `json:"timestamp"`
	Verdict      Status    `json:"verdict"`
	RiskLevel    RiskLevel `json:"riskLevel"`
	CodePreview  string    `json:"codePreview"`
	FullCode     string    `json:"fullCode"`
	Language     string    `json:"language,omitempty"`
	Confidence   *float64  `json:"confidence,omitempty"`
	NodesScanned *int      `json:"nodesScanned,omitempty"`
}

// NewHistoryItem records a verdict-state result for the given source
func NewHistoryItem(code string, result AnalysisResult, previewLen int, now time.Time) HistoryItem {
	item := HistoryItem{
		ID:          newHistoryID(now),
		Timestamp:   now.Format("15:04"),
		Verdict:     result.Status,
		RiskLevel:   result.RiskLevel,
		CodePreview: codePreview(code, previewLen),
		FullCode:    code,
		Language:    result.Language,
	}
	if result.Confidence != nil {
		c := *result.Confidence
		item.Confidence = &c
	}
	if result.Metadata != nil {
		n := result.Metadata.NodesScanned
		item.NodesScanned = &n
	}
	return item
}

// Result rebuilds the verdict fields of the scan this item recorded
func (it HistoryItem) Result() AnalysisResult {
	r := AnalysisResult{
		Status:    it.Verdict,
		RiskLevel: it.RiskLevel,
		Language:  it.Language,
	}
	if it.Confidence != nil {
		c := *it.Confidence
		r.Confidence = &c
	}
	if it.NodesScanned != nil {
		r.Metadata = &Metadata{NodesScanned: *it.NodesScanned}
	}
	return r
}

// newHistoryID returns a time-ordered UUIDv7, falling back to the unix-millis
// string the web client used if the random source fails.
func newHistoryID(now time.Time) string {
	id, err := uuid.NewV7()
	if err != nil {
		return strings.TrimSpace(now.Format("20060102150405.000"))
	}
	return id.String()
}

// codePreview keeps the first n characters of the trimmed code followed by "..."
func codePreview(code string, n int) string {
	trimmed := strings.TrimSpace(code)
	if utf8.RuneCountInString(trimmed) > n {
		trimmed = string([]rune(trimmed)[:n])
	}
	return trimmed + "..."
}

// HistoryStore persists a bounded, newest-first list of HistoryItems in a single
// storage slot. Every mutation rewrites the whole list.
type HistoryStore struct {
	storage Storage
	key     string
	limit   int
	log     *logrus.Entry

	mu    sync.Mutex
	items []HistoryItem
}

// NewHistoryStore creates a store bound to the history slot. Call Load once at startup.
func NewHistoryStore(storage Storage, limit int, log *logrus.Logger) *HistoryStore {
	if limit <= 0 {
		limit = DefaultConfig().HistoryLimit
	}
	return &HistoryStore{
		storage: storage,
		key:     HistoryKey,
		limit:   limit,
		log:     componentLogger(log, "history"),
		items:   []HistoryItem{},
	}
}

// Load reads the persisted list. A missing or unparsable slot yields an empty list.
func (h *HistoryStore) Load() []HistoryItem {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items = h.read()
	return cloneItems(h.items)
}

func (h *HistoryStore) read() []HistoryItem {
	raw, ok, err := h.storage.Get(h.key)
	if err != nil {
		h.log.WithError(err).Warn("history slot unreadable, starting empty")
		return []HistoryItem{}
	}
	if !ok || raw == "" {
		return []HistoryItem{}
	}

	var items []HistoryItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		h.log.WithError(err).Warn("history slot corrupt, starting empty")
		return []HistoryItem{}
	}
	if items == nil {
		items = []HistoryItem{}
	}
	return items
}

// Save replaces the persisted list
func (h *HistoryStore) Save(items []HistoryItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.write(cloneItems(items))
}

func (h *HistoryStore) write(items []HistoryItem) error {
	if items == nil {
		items = []HistoryItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := h.storage.Set(h.key, string(data)); err != nil {
		return err
	}
	h.items = items
	return nil
}

// Append puts item at the front and drops the oldest entries beyond the limit
func (h *HistoryStore) Append(item HistoryItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := make([]HistoryItem, 0, len(h.items)+1)
	next = append(next, item)
	next = append(next, h.items...)
	if len(next) > h.limit {
		next = next[:h.limit]
	}
	return h.write(next)
}

// Clear empties the history
func (h *HistoryStore) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.storage.Delete(h.key); err != nil {
		return err
	}
	h.items = []HistoryItem{}
	return nil
}

// Items returns a copy of the in-memory list, newest first
func (h *HistoryStore) Items() []HistoryItem {
	h.mu.Lock()
	defer h.mu.Unlock()
	return cloneItems(h.items)
}

// Find returns the item with the given ID, or the item at a 1-based index when id is numeric
func (h *HistoryStore) Find(id string) (HistoryItem, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, it := range h.items {
		if it.ID == id {
			return it, true
		}
	}
	var idx int
	parseIntSafe(id, &idx)
	if idx >= 1 && idx <= len(h.items) && intToStr(idx) == id {
		return h.items[idx-1], true
	}
	return HistoryItem{}, false
}

func cloneItems(items []HistoryItem) []HistoryItem {
	out := make([]HistoryItem, len(items))
	copy(out, items)
	return out
}
