package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// FormatResult renders a quick-scan result for terminal display
func FormatResult(r AnalysisResult, theme *Theme) string {
	var sb strings.Builder

	switch r.Status {
	case StatusMalicious:
		sb.WriteString(theme.Error("⚠ THREAT DETECTED"))
	case StatusClean:
		sb.WriteString(theme.Success("✓ CLEAN"))
	case StatusError:
		sb.WriteString(theme.Error("✗ " + r.Message))
		sb.WriteString("\n")
		return sb.String()
	case StatusLoading:
		return theme.Info("Analyzing...") + "\n"
	default:
		return theme.Dim("Awaiting input.") + "\n"
	}

	if r.RiskLevel != "" {
		sb.WriteString("  ")
		sb.WriteString(theme.Severity(string(r.RiskLevel), string(r.RiskLevel)))
	}
	sb.WriteString("\n")

	if r.Confidence != nil {
		fmt.Fprintf(&sb, "  Confidence: %s\n", confidenceBar(*r.Confidence, 20))
	}
	if r.Language != "" {
		fmt.Fprintf(&sb, "  Language:   %s\n", r.Language)
	}
	if r.Metadata != nil {
		if r.Metadata.Engine != "" {
			fmt.Fprintf(&sb, "  Engine:     %s\n", r.Metadata.Engine)
		}
		if r.Metadata.NodesScanned > 0 {
			fmt.Fprintf(&sb, "  AST nodes:  %d\n", r.Metadata.NodesScanned)
		}
	}
	if r.Message != "" {
		sb.WriteString("\n")
		for _, line := range wrapText(stripMarkdown(r.Message), 78) {
			sb.WriteString("  ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	if len(r.Vulnerabilities) > 0 {
		sb.WriteString("\n")
		sb.WriteString(FormatVulnerabilities(r.Vulnerabilities, theme))
	}
	return sb.String()
}

// confidenceBar draws a fixed-width bar followed by the percentage
func confidenceBar(pct float64, width int) string {
	filled := int(pct/100*float64(width) + 0.5)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + fmt.Sprintf(" %.0f%%", pct)
}

// FormatVulnerabilities renders vulnerability markers ordered by line
func FormatVulnerabilities(vulns []Vulnerability, theme *Theme) string {
	if len(vulns) == 0 {
		return ""
	}

	sorted := make([]Vulnerability, len(vulns))
	copy(sorted, vulns)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Line < sorted[j].Line })

	var sb strings.Builder
	for _, v := range sorted {
		// Format: [SEVERITY] pattern (CWE-xx)
		//           at line N: description
		//           > snippet
		sb.WriteString(theme.Severity(v.Severity, "["+strings.ToUpper(v.Severity)+"]"))
		sb.WriteString(" ")
		sb.WriteString(v.Pattern)
		if v.CWE != "" {
			sb.WriteString(" ")
			sb.WriteString(theme.Dim("(" + v.CWE + ")"))
		}
		sb.WriteString("\n")

		sb.WriteString("  at line ")
		sb.WriteString(intToStr(v.Line))
		if v.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(v.Description)
		}
		sb.WriteString("\n")

		if snippet := strings.TrimSpace(v.Snippet); snippet != "" {
			for _, l := range strings.Split(snippet, "\n") {
				sb.WriteString("  ")
				sb.WriteString(theme.Dim("> " + l))
				sb.WriteString("\n")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatHistory renders the history list, newest first, with 1-based indices
func FormatHistory(items []HistoryItem, theme *Theme) string {
	if len(items) == 0 {
		return theme.Dim("No scans yet.") + "\n"
	}

	var sb strings.Builder
	for i, it := range items {
		verdict := theme.Success("clean    ")
		if it.Verdict == StatusMalicious {
			verdict = theme.Error("malicious")
		}
		fmt.Fprintf(&sb, "%2d. %s  %s  %-8s  %s\n",
			i+1, it.Timestamp, verdict,
			theme.Severity(string(it.RiskLevel), string(it.RiskLevel)),
			it.CodePreview)
	}
	return sb.String()
}

// FormatHistoryItem renders the full record for one history entry
func FormatHistoryItem(it HistoryItem, theme *Theme) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", theme.Accent("ID:"), it.ID)
	fmt.Fprintf(&sb, "%s %s\n", theme.Accent("Time:"), it.Timestamp)
	fmt.Fprintf(&sb, "%s %s (%s)\n", theme.Accent("Verdict:"), it.Verdict, it.RiskLevel)
	if it.Language != "" {
		fmt.Fprintf(&sb, "%s %s\n", theme.Accent("Language:"), it.Language)
	}
	if it.Confidence != nil {
		fmt.Fprintf(&sb, "%s %.0f%%\n", theme.Accent("Confidence:"), *it.Confidence)
	}
	sb.WriteString("\n")
	sb.WriteString(it.FullCode)
	if !strings.HasSuffix(it.FullCode, "\n") {
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatBatch renders batch results followed by the project summary
func FormatBatch(resp *BatchResponse, skipped []SkippedFile, theme *Theme) string {
	var sb strings.Builder

	for _, r := range resp.Results {
		var mark string
		switch r.Status {
		case StatusMalicious:
			mark = theme.Error("✗")
		case StatusClean:
			mark = theme.Success("✓")
		default:
			mark = theme.Warning("?")
		}
		fmt.Fprintf(&sb, "%s %-40s %s", mark, truncate(r.Filename, 40), theme.Severity(r.RiskLevel, r.RiskLevel))
		if r.Status == StatusError && r.Message != "" {
			sb.WriteString("  ")
			sb.WriteString(theme.Dim(r.Message))
		} else if r.Confidence > 0 {
			fmt.Fprintf(&sb, "  %.0f%%", normalizeConfidence(r.Confidence))
		}
		sb.WriteString("\n")
	}

	for _, s := range skipped {
		fmt.Fprintf(&sb, "%s %-40s %s\n", theme.Dim("-"), truncate(s.Path, 40), theme.Dim("skipped: "+s.Reason))
	}

	s := resp.Summary
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Files: %d   Threats: %s   Clean: %s\n",
		s.TotalFiles, theme.Error(intToStr(s.Threats)), theme.Success(intToStr(s.Clean)))
	fmt.Fprintf(&sb, "Project score: %.0f   Grade: %s\n", s.ProjectScore, gradeColor(s.ProjectGrade, theme))
	return sb.String()
}

func gradeColor(grade string, theme *Theme) string {
	switch strings.ToUpper(grade) {
	case "A", "B":
		return theme.Success(grade)
	case "C":
		return theme.Warning(grade)
	default:
		return theme.Error(grade)
	}
}

// FormatModelStats renders the backend model status
func FormatModelStats(s *ModelStats, theme *Theme) string {
	status := theme.Error(s.Status)
	if s.Ready() {
		status = theme.Success(s.Status)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Status:       %s\n", status)
	fmt.Fprintf(&sb, "Accuracy:     %s\n", s.Accuracy)
	fmt.Fprintf(&sb, "Last trained: %s\n", s.LastTrained)
	fmt.Fprintf(&sb, "Model type:   %s\n", s.ModelType)
	if s.FileSize != "" {
		fmt.Fprintf(&sb, "File size:    %s\n", s.FileSize)
	}
	if s.FeaturesCount > 0 {
		fmt.Fprintf(&sb, "Features:     %d\n", s.FeaturesCount)
	}
	if s.Message != "" {
		fmt.Fprintf(&sb, "Message:      %s\n", s.Message)
	}
	return sb.String()
}

// FormatTrainLine renders one training log line
func FormatTrainLine(l TrainLine, theme *Theme) string {
	switch l.Kind {
	case TrainDone:
		return theme.Success(l.Text)
	case TrainError:
		return theme.Error(l.Text)
	default:
		return theme.Dim("["+l.At.Format(time.TimeOnly)+"]") + " " + l.Text
	}
}

// FormatDiff colors a fix diff for the terminal
func FormatDiff(lines []DiffLine, theme *Theme) string {
	var sb strings.Builder
	for _, l := range lines {
		switch l.Op {
		case diffmatchpatch.DiffDelete:
			sb.WriteString(theme.Error("- " + l.Text))
		case diffmatchpatch.DiffInsert:
			sb.WriteString(theme.Success("+ " + l.Text))
		default:
			sb.WriteString(theme.Dim("  " + l.Text))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
