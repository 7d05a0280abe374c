package main

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// readSource reads code from a file path, or from in when path is "-" or empty
func readSource(path string, in io.Reader) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// saveToFile writes code to a file
func saveToFile(filename, code string) error {
	return os.WriteFile(filename, []byte(code), 0600)
}

var (
	boldStarRe  = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	boldUnderRe = regexp.MustCompile(`__([^_]+)__`)
	italicRe    = regexp.MustCompile(`(^|[^*])\*([^*\n]+)\*`)
	inlineRe    = regexp.MustCompile("`([^`\n]+)`")
	headingRe   = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
)

// stripMarkdown removes common markdown formatting from text for terminal display.
// Fenced blocks are left alone.
func stripMarkdown(text string) string {
	parts := strings.Split(text, "```")
	for i := 0; i < len(parts); i += 2 {
		p := parts[i]
		p = boldStarRe.ReplaceAllString(p, "$1")
		p = boldUnderRe.ReplaceAllString(p, "$1")
		p = italicRe.ReplaceAllString(p, "$1$2")
		p = inlineRe.ReplaceAllString(p, "$1")
		p = headingRe.ReplaceAllString(p, "")
		parts[i] = p
	}
	return strings.Join(parts, "```")
}

// wrapText wraps text to a specified width, preserving paragraph breaks
func wrapText(text string, width int) []string {
	var result []string
	paragraphs := strings.Split(text, "\n")

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			result = append(result, "")
			continue
		}

		words := strings.Fields(para)
		var line string
		for _, word := range words {
			if line == "" {
				line = word
			} else if utf8.RuneCountInString(line)+1+utf8.RuneCountInString(word) <= width {
				line += " " + word
			} else {
				result = append(result, line)
				line = word
			}
		}
		if line != "" {
			result = append(result, line)
		}
	}

	return result
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string([]rune(s)[:n-1]) + "…"
}

// shortModelName extracts a readable model name from a Bedrock model ID
func shortModelName(modelID string) string {
	// global.anthropic.claude-sonnet-4-5-20250929-v1:0 -> claude-sonnet-4-5
	parts := strings.Split(modelID, ".")
	if len(parts) >= 3 {
		modelPart := parts[2]
		if idx := strings.Index(modelPart, "-202"); idx > 0 {
			return modelPart[:idx]
		}
		return modelPart
	}
	return modelID
}

func parseIntSafe(s string, out *int) {
	val := 0
	for _, c := range s {
		if c >= '0' && c <= '9' {
			val = val*10 + int(c-'0')
		} else {
			return
		}
	}
	*out = val
}

func intToStr(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
