package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// BatchFile is one file submitted to POST /batch-scan
type BatchFile struct {
	Filename string `json:"filename"`
	Code     string `json:"code"`
}

// BatchRequest is the body of POST /batch-scan
type BatchRequest struct {
	Files []BatchFile `json:"files"`
}

// GithubScanRequest is the body of POST /github-scan
type GithubScanRequest struct {
	RepoURL     string `json:"repo_url"`
	AccessToken string `json:"access_token,omitempty"`
}

// BatchFileResult is the verdict for one file of a batch
type BatchFileResult struct {
	Filename     string  `json:"filename"`
	Status       Status  `json:"status"`
	Message      string  `json:"message"`
	RiskLevel    string  `json:"risk_level"`
	Confidence   float64 `json:"confidence"`
	Language     string  `json:"language"`
	NodesScanned *int    `json:"nodes_scanned,omitempty"`
}

// BatchSummary aggregates a batch into a project grade
type BatchSummary struct {
	TotalFiles   int     `json:"total_files"`
	Threats      int     `json:"threats"`
	Clean        int     `json:"clean"`
	ProjectScore float64 `json:"project_score"`
	ProjectGrade string  `json:"project_grade"`
}

// BatchResponse is returned by both batch and GitHub scans
type BatchResponse struct {
	Results []BatchFileResult `json:"results"`
	Summary BatchSummary      `json:"summary"`
}

// batchExtensions lists the file types accepted for batch scans
var batchExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".java": true, ".c": true, ".cpp": true, ".h": true, ".hpp": true,
	".cs": true, ".go": true, ".rb": true, ".php": true, ".rs": true,
	".swift": true, ".kt": true, ".scala": true, ".sh": true,
	".sql": true, ".html": true, ".css": true, ".vue": true, ".svelte": true,
}

// batchSkipDirs are never descended into
var batchSkipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"build":        true,
	"dist":         true,
	"out":          true,
	"bin":          true,
	"obj":          true,
	"target":       true,
	"__pycache__":  true,
	"venv":         true,
	"third_party":  true,
}

// SkippedFile records a candidate that was left out of a batch
type SkippedFile struct {
	Path   string
	Reason string
}

// CollectBatchFiles walks root and reads every eligible source file. Files are
// read concurrently with at most concurrency readers; results are ordered by path.
func CollectBatchFiles(ctx context.Context, root string, maxChars, concurrency int) ([]BatchFile, []SkippedFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%s is not a directory", root)
	}

	var paths []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable entries are skipped, not fatal
			return nil //nolint:nilerr
		}
		if d.IsDir() {
			name := d.Name()
			if path != absRoot && (strings.HasPrefix(name, ".") || batchSkipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if batchExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	sort.Strings(paths)

	if concurrency < 1 {
		concurrency = 1
	}

	files := make([]*BatchFile, len(paths))
	skips := make([]*SkippedFile, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rel, _ := filepath.Rel(absRoot, path)
			rel = filepath.ToSlash(rel)

			data, err := os.ReadFile(path)
			if err != nil {
				skips[i] = &SkippedFile{Path: rel, Reason: "unreadable"}
				return nil
			}
			if !utf8.Valid(data) {
				skips[i] = &SkippedFile{Path: rel, Reason: "not UTF-8 text"}
				return nil
			}
			code := string(data)
			if strings.TrimSpace(code) == "" {
				skips[i] = &SkippedFile{Path: rel, Reason: "empty"}
				return nil
			}
			if utf8.RuneCountInString(code) > maxChars {
				skips[i] = &SkippedFile{Path: rel, Reason: "over " + groupThousands(maxChars) + " characters"}
				return nil
			}
			files[i] = &BatchFile{Filename: rel, Code: code}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var outFiles []BatchFile
	var outSkips []SkippedFile
	for i := range paths {
		if files[i] != nil {
			outFiles = append(outFiles, *files[i])
		}
		if skips[i] != nil {
			outSkips = append(outSkips, *skips[i])
		}
	}
	return outFiles, outSkips, nil
}
