package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ReportRequest is the body of POST /generate-report
type ReportRequest struct {
	Code       string  `json:"code"`
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	RiskLevel  string  `json:"risk_level"`
}

// ReportGenerator renders a PDF audit report
type ReportGenerator interface {
	GenerateReport(ctx context.Context, req ReportRequest) ([]byte, error)
}

// NewReportRequest builds a report request for a verdict-state result
func NewReportRequest(code string, result AnalysisResult) (ReportRequest, error) {
	if !result.Status.IsVerdict() {
		return ReportRequest{}, errNoVerdict
	}
	return ReportRequest{
		Code:       code,
		Verdict:    strings.ToUpper(string(result.Status)),
		Confidence: result.ConfidenceValue(),
		RiskLevel:  string(result.RiskLevel),
	}, nil
}

// ReportFilename is the default name for a report generated at now
func ReportFilename(now time.Time) string {
	return fmt.Sprintf("Sentinel_Audit_%d.pdf", now.UnixMilli())
}

// ExportReport requests a report and writes it to path, or to the default
// filename in the current directory when path is empty. It returns the path written.
func ExportReport(ctx context.Context, gen ReportGenerator, code string, result AnalysisResult, path string, now time.Time) (string, error) {
	req, err := NewReportRequest(code, result)
	if err != nil {
		return "", err
	}

	data, err := gen.GenerateReport(ctx, req)
	if err != nil {
		return "", fmt.Errorf("backend failed to generate PDF: %w", err)
	}

	if path == "" {
		path = ReportFilename(now)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
