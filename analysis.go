package main

import (
	"math"
	"strings"
)

// Status is the lifecycle state of a single quick-scan attempt
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusLoading   Status = "loading"
	StatusMalicious Status = "malicious"
	StatusClean     Status = "clean"
	StatusError     Status = "error"
)

// IsVerdict reports whether the status carries a backend verdict
func (s Status) IsVerdict() bool {
	return s == StatusMalicious || s == StatusClean
}

// RiskLevel is the backend's categorical risk label
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
	RiskInvalid  RiskLevel = "INVALID"
)

// ParseRiskLevel normalizes a backend risk label; unknown labels map to INVALID
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case RiskCritical:
		return RiskCritical
	case RiskHigh:
		return RiskHigh
	case RiskMedium:
		return RiskMedium
	case RiskLow:
		return RiskLow
	default:
		return RiskInvalid
	}
}

// Metadata describes how the backend produced a verdict
type Metadata struct {
	NodesScanned       int      `json:"nodes_scanned"`
	Engine             string   `json:"engine,omitempty"`
	SupportedLanguages []string `json:"supported_languages,omitempty"`
	ProcessTime        string   `json:"process_time,omitempty"`
}

// Vulnerability is one finding anchored to a source line
type Vulnerability struct {
	Line        int    `json:"line"`
	Pattern     string `json:"pattern"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	CWE         string `json:"cwe,omitempty"`
	Snippet     string `json:"snippet"`
}

// AnalysisResult is the state of one quick-scan attempt. Only Status and Message
// are meaningful unless Status is malicious or clean.
type AnalysisResult struct {
	Status          Status          `json:"status"`
	Message         string          `json:"message,omitempty"`
	Confidence      *float64        `json:"confidence,omitempty"`
	RiskLevel       RiskLevel       `json:"risk_level,omitempty"`
	Language        string          `json:"language,omitempty"`
	Metadata        *Metadata       `json:"metadata,omitempty"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities,omitempty"`
}

// WaitingResult is the initial state before any scan
func WaitingResult() AnalysisResult {
	return AnalysisResult{Status: StatusWaiting}
}

// ErrorResult builds an error-state result with a static message
func ErrorResult(message string) AnalysisResult {
	return AnalysisResult{Status: StatusError, Message: message}
}

// AnalyzeRequest is the body of POST /analyze
type AnalyzeRequest struct {
	Code      string `json:"code"`
	RoastMode bool   `json:"roast_mode"`
}

// AnalyzeResponse is the body returned by POST /analyze
type AnalyzeResponse struct {
	Malicious       bool            `json:"malicious"`
	Reason          string          `json:"reason"`
	Confidence      float64         `json:"confidence"`
	RiskLevel       string          `json:"risk_level"`
	Language        string          `json:"language"`
	Metadata        *Metadata       `json:"metadata,omitempty"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities,omitempty"`
}

// Verdict maps the boolean backend answer to a result status
func (r *AnalyzeResponse) Verdict() Status {
	if r.Malicious {
		return StatusMalicious
	}
	return StatusClean
}

// ToResult converts a backend response into a verdict-state AnalysisResult
func (r *AnalyzeResponse) ToResult() AnalysisResult {
	confidence := normalizeConfidence(r.Confidence)
	return AnalysisResult{
		Status:          r.Verdict(),
		Message:         r.Reason,
		Confidence:      &confidence,
		RiskLevel:       ParseRiskLevel(r.RiskLevel),
		Language:        r.Language,
		Metadata:        r.Metadata,
		Vulnerabilities: r.Vulnerabilities,
	}
}

// normalizeConfidence maps a backend confidence onto [0,100]. Older engines
// answer with a probability (0.95), newer ones with a percentage (92).
func normalizeConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || c <= 0:
		return 0
	case c <= 1:
		return math.Round(c*1000) / 10
	case c > 100:
		return 100
	default:
		return c
	}
}

// ConfidenceValue returns the confidence or 0 when unset
func (r AnalysisResult) ConfidenceValue() float64 {
	if r.Confidence == nil {
		return 0
	}
	return *r.Confidence
}

// ScanContext is the snapshot of a quick-scan verdict sent along with a deep scan
type ScanContext struct {
	RiskLevel  string  `json:"risk_level"`
	Reason     string  `json:"reason"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Context snapshots the verdict fields a deep scan forwards to the analyzer
func (r AnalysisResult) Context() ScanContext {
	return ScanContext{
		RiskLevel:  string(r.RiskLevel),
		Reason:     r.Message,
		Language:   r.Language,
		Confidence: r.ConfidenceValue(),
	}
}
