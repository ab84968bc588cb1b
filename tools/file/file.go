// Package file provides workspace-scoped file read/write tools. Reads may
// touch anything under the workspace root, including PDFs; writes are
// confined to a single allow-listed subtree.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	skiff "github.com/avitkov/skiff"
)

const (
	// readLimit matches the fetch_url output bound, so every tool hands
	// the model at most the same amount of text.
	readLimit = 12_000
	// defaultWriteDir is the only subtree write_file may touch.
	defaultWriteDir = "scratch"
)

// Tool provides file read/write within a sandboxed workspace.
type Tool struct {
	workspacePath string
	writeDir      string
}

// Option configures a Tool.
type Option func(*Tool)

// WithWriteDir overrides the subtree writes are confined to.
func WithWriteDir(dir string) Option {
	return func(t *Tool) { t.writeDir = dir }
}

// New creates a file tool rooted at workspacePath.
func New(workspacePath string, opts ...Option) *Tool {
	abs, err := filepath.Abs(workspacePath)
	if err != nil {
		abs = workspacePath
	}
	t := &Tool{workspacePath: abs, writeDir: defaultWriteDir}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Definitions() []skiff.ToolDefinition {
	return []skiff.ToolDefinition{
		{
			Name:        "read_file",
			Description: "Read a file from the workspace. Handles text files and PDFs. Returns the content (truncated if large).",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"}},"required":["path"]}`),
		},
		{
			Name:        "write_file",
			Description: "Write content to a file under the " + t.writeDir + "/ directory of the workspace. Creates parent directories if needed.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"},"content":{"type":"string","description":"Content to write"}},"required":["path","content"]}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (skiff.ToolResult, error) {
	var params struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return skiff.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	resolved, err := t.resolve(params.Path)
	if err != nil {
		return skiff.ToolResult{Error: err.Error()}, nil
	}

	switch name {
	case "read_file":
		return t.read(resolved)
	case "write_file":
		return t.write(params.Path, resolved, params.Content)
	default:
		return skiff.ToolResult{Error: "unknown file tool: " + name}, nil
	}
}

// resolve maps a user-supplied relative path to an absolute path and rejects
// anything that escapes the workspace. The check runs on the resolved path,
// not on the raw string, so "a/../b" style paths are judged by where they
// actually land.
func (t *Tool) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}
	resolved := filepath.Join(t.workspacePath, path)
	rel, err := filepath.Rel(t.workspacePath, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return resolved, nil
}

func (t *Tool) read(path string) (skiff.ToolResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return skiff.ToolResult{Error: "read error: " + err.Error()}, nil
	}

	var content string
	if isPDF(path, data) {
		content, err = extractPDF(path)
		if err != nil {
			return skiff.ToolResult{Error: "pdf extract error: " + err.Error()}, nil
		}
	} else {
		content = string(data)
	}

	if len(content) > readLimit {
		content = content[:readLimit] + "\n... (truncated)"
	}
	return skiff.ToolResult{Content: content}, nil
}

func (t *Tool) write(rawPath, resolved, content string) (skiff.ToolResult, error) {
	rel, err := filepath.Rel(t.workspacePath, resolved)
	if err != nil {
		return skiff.ToolResult{Error: "write error: " + err.Error()}, nil
	}
	if rel != t.writeDir && !strings.HasPrefix(rel, t.writeDir+string(filepath.Separator)) {
		return skiff.ToolResult{Error: fmt.Sprintf("writes restricted to %s/: %s", t.writeDir, rawPath)}, nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return skiff.ToolResult{Error: "mkdir error: " + err.Error()}, nil
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return skiff.ToolResult{Error: "write error: " + err.Error()}, nil
	}
	return skiff.ToolResult{Content: fmt.Sprintf("Written %d bytes to %s", len(content), rel)}, nil
}

func isPDF(path string, data []byte) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf") || bytes.HasPrefix(data, []byte("%PDF-"))
}

// extractPDF pulls plain text out of a PDF, page by page. Pages that fail to
// decode are skipped rather than aborting the whole read.
func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var out strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		out.WriteString(text)
		out.WriteString("\n")
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", fmt.Errorf("no extractable text")
	}
	return out.String(), nil
}

var _ skiff.Tool = (*Tool)(nil)
