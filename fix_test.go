package main

import (
	"strings"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
)

func TestExtractFix(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{
			name:   "fixed code heading",
			text:   "## Fixed Code\n```py\nX\n```",
			want:   "X",
			wantOK: true,
		},
		{
			name:   "bare fence",
			text:   "Here you go:\n```\nprint(1)\n```\nthanks",
			want:   "print(1)",
			wantOK: true,
		},
		{
			name:   "heading wins over earlier fence",
			text:   "## Findings\n```py\nbad()\n```\n\n## Fixed Code\n```python\ngood()\n```\n",
			want:   "good()",
			wantOK: true,
		},
		{
			name:   "heading case and level",
			text:   "### fixed code (python)\n\n```python\n  safe()  \n```",
			want:   "safe()",
			wantOK: true,
		},
		{
			name:   "crlf line endings",
			text:   "## Fixed Code\r\n```go\r\nfmt.Println()\r\n```\r\n",
			want:   "fmt.Println()",
			wantOK: true,
		},
		{
			name:   "multi line fix",
			text:   "## Fixed Code\n```js\nconst a = 1;\nconst b = 2;\n```",
			want:   "const a = 1;\nconst b = 2;",
			wantOK: true,
		},
		{
			name:   "no fence",
			text:   "## Summary\nnothing to fix",
			wantOK: false,
		},
		{
			name:   "unterminated fence while streaming",
			text:   "## Fixed Code\n```py\nhalf_writ",
			wantOK: false,
		},
		{
			name:   "heading with unterminated block ignores earlier fence",
			text:   "## Findings\n```py\nbad()\n```\n## Fixed Code\n```py\nhalf",
			wantOK: false,
		},
		{
			name:   "heading without a block",
			text:   "## Findings\n```py\neval(input())\n```\n\n## Fixed Code\nNo change needed.\n",
			wantOK: false,
		},
		{
			name:   "empty block under heading",
			text:   "## Fixed Code\n```py\n\n```\n```py\nother()\n```",
			wantOK: false,
		},
		{
			name:   "empty fence",
			text:   "```\n\n```",
			wantOK: false,
		},
		{
			name:   "empty",
			text:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractFix(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ExtractFix() ok = %v, want %v (got %q)", ok, tt.wantOK, got)
			}
			if got != tt.want {
				t.Errorf("ExtractFix() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeepScanStateFix(t *testing.T) {
	text := "## Fixed Code\n```py\nok()\n```"
	tests := []struct {
		status DeepScanStatus
		wantOK bool
	}{
		{DeepScanDone, true},
		{DeepScanScanning, false},
		{DeepScanError, false},
		{DeepScanIdle, false},
	}
	for _, tt := range tests {
		fix, ok := DeepScanState{Status: tt.status, Text: text}.Fix()
		if ok != tt.wantOK {
			t.Errorf("%s: Fix() ok = %v, want %v", tt.status, ok, tt.wantOK)
		}
		if ok && fix != "ok()" {
			t.Errorf("%s: Fix() = %q", tt.status, fix)
		}
	}
}

func TestFixDiff(t *testing.T) {
	original := "import os\nos.system(cmd)\nprint('done')\n"
	fixed := "import subprocess\nsubprocess.run([cmd])\nprint('done')"

	lines := FixDiff(original, fixed)

	var deleted, inserted, equal []string
	for _, l := range lines {
		switch l.Op {
		case diffmatchpatch.DiffDelete:
			deleted = append(deleted, l.Text)
		case diffmatchpatch.DiffInsert:
			inserted = append(inserted, l.Text)
		default:
			equal = append(equal, l.Text)
		}
	}

	if strings.Join(deleted, "|") != "import os|os.system(cmd)" {
		t.Errorf("deleted = %q", deleted)
	}
	if strings.Join(inserted, "|") != "import subprocess|subprocess.run([cmd])" {
		t.Errorf("inserted = %q", inserted)
	}
	if len(equal) != 1 || equal[0] != "print('done')" {
		t.Errorf("equal = %q", equal)
	}

	out := FormatDiff(lines, PlainTheme())
	if !strings.Contains(out, "- os.system(cmd)\n") || !strings.Contains(out, "+ subprocess.run([cmd])\n") {
		t.Errorf("FormatDiff() =\n%s", out)
	}
}

func TestFixDiffIdentical(t *testing.T) {
	for _, l := range FixDiff("a\nb", "a\nb") {
		if l.Op != diffmatchpatch.DiffEqual {
			t.Errorf("unexpected op %v for %q", l.Op, l.Text)
		}
	}
}
