package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeBackend is an in-process stand-in for the analysis backend
type fakeBackend struct {
	srv *httptest.Server

	mu            sync.Mutex
	analyze       AnalyzeResponse
	analyzeStatus int
	analyzeCalls  []AnalyzeRequest
	deepLines     []string
	deepCalls     []DeepScanRequest
	report        []byte
	reportCalls   []ReportRequest
	batch         BatchResponse
	batchCalls    []BatchRequest
	githubCalls   []GithubScanRequest
	trainLines    []string
	stats         ModelStats
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		analyze: AnalyzeResponse{Malicious: false, Reason: "looks fine", Confidence: 0.97, RiskLevel: "LOW", Language: "python"},
		report:  []byte("%PDF-1.4 fake"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+endpointAnalyze, func(w http.ResponseWriter, r *http.Request) {
		var req AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fb.mu.Lock()
		fb.analyzeCalls = append(fb.analyzeCalls, req)
		status, resp := fb.analyzeStatus, fb.analyze
		fb.mu.Unlock()

		if status != 0 && status != http.StatusOK {
			http.Error(w, "analyzer exploded", status)
			return
		}
		writeJSON(w, resp)
	})
	mux.HandleFunc("POST "+endpointDeepScan, func(w http.ResponseWriter, r *http.Request) {
		var req DeepScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fb.mu.Lock()
		fb.deepCalls = append(fb.deepCalls, req)
		lines := append([]string(nil), fb.deepLines...)
		fb.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, l := range lines {
			_, _ = io.WriteString(w, l)
			if flusher != nil {
				flusher.Flush()
			}
		}
	})
	mux.HandleFunc("POST "+endpointReport, func(w http.ResponseWriter, r *http.Request) {
		var req ReportRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		fb.mu.Lock()
		fb.reportCalls = append(fb.reportCalls, req)
		data := fb.report
		fb.mu.Unlock()
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(data)
	})
	mux.HandleFunc("POST "+endpointBatchScan, func(w http.ResponseWriter, r *http.Request) {
		var req BatchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		fb.mu.Lock()
		fb.batchCalls = append(fb.batchCalls, req)
		resp := fb.batch
		fb.mu.Unlock()
		writeJSON(w, resp)
	})
	mux.HandleFunc("POST "+endpointGithubScan, func(w http.ResponseWriter, r *http.Request) {
		var req GithubScanRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		fb.mu.Lock()
		fb.githubCalls = append(fb.githubCalls, req)
		resp := fb.batch
		fb.mu.Unlock()
		writeJSON(w, resp)
	})
	mux.HandleFunc("GET "+endpointModelStats, func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		resp := fb.stats
		fb.mu.Unlock()
		writeJSON(w, resp)
	})
	mux.HandleFunc("GET "+endpointHealth, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, HealthStatus{Status: "ok"})
	})
	mux.HandleFunc("POST "+endpointTrainStream, func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		lines := append([]string(nil), fb.trainLines...)
		fb.mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, strings.Join(lines, ""))
	})

	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (fb *fakeBackend) URL() string { return fb.srv.URL }

func (fb *fakeBackend) setAnalyze(resp AnalyzeResponse) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.analyze = resp
	fb.analyzeStatus = 0
}

func (fb *fakeBackend) failAnalyze(status int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.analyzeStatus = status
}

// with runs fn while holding the backend lock
func (fb *fakeBackend) with(fn func()) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fn()
}

func (fb *fakeBackend) setDeepLines(lines ...string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.deepLines = lines
}

func (fb *fakeBackend) analyzeRequests() []AnalyzeRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]AnalyzeRequest(nil), fb.analyzeCalls...)
}

func (fb *fakeBackend) deepRequests() []DeepScanRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]DeepScanRequest(nil), fb.deepCalls...)
}

// testConfig returns a configuration pointed at url with in-memory storage
func testConfig(t *testing.T, url string) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.APIURL = url
	cfg.StorageBackend = StorageMemory
	cfg.DataDir = t.TempDir()
	cfg.LogFile = ""
	return cfg
}

func newTestApp(t *testing.T, url string) *App {
	t.Helper()
	app, err := NewApp(context.Background(), testConfig(t, url), discardLogger())
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

// maliciousEval is the backend answer for the eval(input()) scenario
func maliciousEval() AnalyzeResponse {
	return AnalyzeResponse{
		Malicious:  true,
		Reason:     "unsafe eval",
		Confidence: 92,
		RiskLevel:  "CRITICAL",
		Language:   "python",
	}
}
