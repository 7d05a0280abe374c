package main

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// QuickScanController runs a single request/response analysis and records
// the verdict in history and game state.
type QuickScanController struct {
	analyzer   Analyzer
	history    *HistoryStore
	game       *GameState
	baseURL    string
	maxPayload int
	previewLen int
	metrics    *Metrics
	log        *logrus.Entry
	now        func() time.Time

	mu       sync.Mutex
	current  AnalysisResult
	gen      uint64
	onUpdate func(AnalysisResult)
}

// NewQuickScanController wires a controller to its collaborators
func NewQuickScanController(analyzer Analyzer, history *HistoryStore, game *GameState, cfg *Config, metrics *Metrics, log *logrus.Logger) *QuickScanController {
	return &QuickScanController{
		analyzer:   analyzer,
		history:    history,
		game:       game,
		baseURL:    cfg.APIURL,
		maxPayload: cfg.MaxPayloadChars,
		previewLen: cfg.PreviewLen,
		metrics:    metrics,
		log:        componentLogger(log, "quickscan"),
		now:        time.Now,
		current:    WaitingResult(),
	}
}

// OnUpdate registers a callback for every state change, including loading
func (q *QuickScanController) OnUpdate(fn func(AnalysisResult)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onUpdate = fn
}

// Current returns the latest result
func (q *QuickScanController) Current() AnalysisResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Reset returns to waiting and drops the result of any scan in flight
func (q *QuickScanController) Reset() {
	q.mu.Lock()
	q.gen++
	gen := q.gen
	q.mu.Unlock()
	q.publish(gen, WaitingResult())
}

func (q *QuickScanController) begin() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gen++
	return q.gen
}

func (q *QuickScanController) publish(gen uint64, r AnalysisResult) {
	q.mu.Lock()
	if gen != q.gen {
		q.mu.Unlock()
		return
	}
	q.current = r
	fn := q.onUpdate
	q.mu.Unlock()

	if fn != nil {
		fn(r)
	}
}

// Analyze scans code and returns the resulting state. The returned error is a
// *UserError matching ErrEmptyInput, ErrPayloadTooLarge or ErrTransport, and is
// nil whenever the result carries a verdict.
func (q *QuickScanController) Analyze(ctx context.Context, code string, roast bool) (AnalysisResult, error) {
	gen := q.begin()

	if strings.TrimSpace(code) == "" {
		return q.fail(gen, ErrNoCode())
	}
	if n := utf8.RuneCountInString(code); n > q.maxPayload {
		q.log.WithField("chars", n).Info("rejected oversized payload")
		return q.fail(gen, ErrPayload(q.maxPayload))
	}

	q.publish(gen, AnalysisResult{Status: StatusLoading})

	start := time.Now()
	resp, err := q.analyzer.Analyze(ctx, AnalyzeRequest{Code: code, RoastMode: roast})
	if err != nil {
		q.log.WithError(err).Warn("analyze request failed")
		return q.fail(gen, ErrBackendOffline(q.baseURL, err))
	}

	result := resp.ToResult()
	q.log.WithFields(logrus.Fields{
		"verdict":  result.Status,
		"risk":     result.RiskLevel,
		"language": result.Language,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("quick scan complete")

	if q.game != nil {
		q.game.AwardScan(result.Status)
	}
	if q.history != nil {
		item := NewHistoryItem(code, result, q.previewLen, q.now())
		if err := q.history.Append(item); err != nil {
			q.log.WithError(err).Warn("failed to persist history")
		}
	}
	q.metrics.countQuickScan(result.Status)
	q.publish(gen, result)
	return result, nil
}

func (q *QuickScanController) fail(gen uint64, uerr *UserError) (AnalysisResult, error) {
	result := ErrorResult(uerr.Message)
	q.metrics.countQuickScan(StatusError)
	q.publish(gen, result)
	return result, uerr
}
