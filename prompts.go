package main

import (
	"fmt"
	"strings"
)

// DeepScanSystemPrompt instructs a model used directly as a deep-scan analyzer.
// The "## Fixed Code" section is what ExtractFix looks for first.
const DeepScanSystemPrompt = `You are Sentinel, a senior application-security reviewer.
You receive source code together with the verdict of a fast structural scanner.
Confirm or refute that verdict by reading the code carefully.

Structure your answer with these markdown sections, in order:

## Summary
One or two sentences: is the code dangerous, and why.

## Findings
A bullet per issue: the line number, what is wrong, the CWE identifier when one applies,
and how an attacker would exploit it. If there is nothing to report, say so.

## Fixed Code
A single fenced code block containing the complete corrected source, in the same language.
Keep behaviour identical apart from the security fixes. Omit this section only when
the code needs no changes.

Rules:
- Be concrete. Quote the offending expression rather than describing it vaguely.
- Do not invent vulnerabilities the code does not contain.
- Never produce more than one code block under Fixed Code.`

// RoastAddendum is appended to the system prompt when roast mode is on
const RoastAddendum = `

Tone: roast the author. Be sarcastic and witty about every mistake, but keep each
finding technically accurate and the fix genuinely useful.`

// deepScanSystemPrompt returns the system prompt for the current roast setting
func deepScanSystemPrompt(roast bool) string {
	if roast {
		return DeepScanSystemPrompt + RoastAddendum
	}
	return DeepScanSystemPrompt
}

// deepScanUserPrompt renders the code and the quick-scan context for the model
func deepScanUserPrompt(req DeepScanRequest) string {
	var sb strings.Builder
	sb.WriteString("Structural scanner verdict:\n")
	fmt.Fprintf(&sb, "- Risk level: %s\n", orDash(req.ScanResult.RiskLevel))
	fmt.Fprintf(&sb, "- Reason: %s\n", orDash(req.ScanResult.Reason))
	fmt.Fprintf(&sb, "- Language: %s\n", orDash(req.ScanResult.Language))
	fmt.Fprintf(&sb, "- Confidence: %.0f%%\n\n", req.ScanResult.Confidence)

	lang := strings.ToLower(req.ScanResult.Language)
	sb.WriteString("Source:\n```")
	sb.WriteString(lang)
	sb.WriteString("\n")
	sb.WriteString(strings.TrimRight(req.Code, "\n"))
	sb.WriteString("\n```\n")
	return sb.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
