package main

import (
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var (
	// fixedHeaderRe matches a "Fixed Code" heading line of any level
	fixedHeaderRe = regexp.MustCompile(`(?im)^#{1,6}[ \t]*fixed code[^\n]*$`)
	// headedFenceRe matches a complete fenced block at the start of the text
	headedFenceRe = regexp.MustCompile("(?s)^\\s*```[\\w+#.-]*[ \t]*\n(.*?)\n?```")
	// fenceRe matches the first complete fenced block with an optional language tag
	fenceRe = regexp.MustCompile("(?s)```[\\w+#.-]*[ \t]*\n(.*?)\n?```")
)

// ExtractFix pulls the suggested fix out of deep-scan text. When a "Fixed Code"
// heading exists only the fenced block right after it counts; otherwise the
// first complete fenced block is used. Unterminated or empty blocks yield no fix.
func ExtractFix(text string) (string, bool) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	if loc := fixedHeaderRe.FindStringIndex(text); loc != nil {
		return fencedCode(headedFenceRe, text[loc[1]:])
	}
	return fencedCode(fenceRe, text)
}

func fencedCode(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	code := strings.TrimSpace(m[1])
	return code, code != ""
}

// DiffLine is one line of a line-level diff
type DiffLine struct {
	Op   diffmatchpatch.Operation
	Text string
}

// FixDiff computes a line-oriented diff from original to fixed. A missing
// final newline on either side does not count as a change.
func FixDiff(original, fixed string) []DiffLine {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(withFinalNewline(original), withFinalNewline(fixed))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out []DiffLine
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		for _, line := range strings.Split(text, "\n") {
			out = append(out, DiffLine{Op: d.Type, Text: line})
		}
	}
	return out
}

func withFinalNewline(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
