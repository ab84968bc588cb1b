// Package fetch implements the fetch_url tool: SSRF-guarded retrieval of a
// web page, converted to readable plain text (or pretty-printed JSON) and
// truncated to a bounded length.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	skiff "github.com/avitkov/skiff"
	"github.com/avitkov/skiff/internal/htmltext"
	"github.com/avitkov/skiff/internal/ssrf"
)

const (
	// maxOutput bounds what goes back to the model.
	maxOutput = 12_000
	// maxBody bounds what is read off the wire.
	maxBody = 2 << 20 // 2MB

	fetchTimeout = 15 * time.Second
	userAgent    = "Mozilla/5.0 (compatible; SkiffBot/1.0)"
)

// Tool fetches URLs and extracts readable content.
type Tool struct {
	client *http.Client
}

// New creates the fetch_url tool with a bounded-timeout client.
func New() *Tool {
	return &Tool{client: &http.Client{Timeout: fetchTimeout}}
}

func (t *Tool) Definitions() []skiff.ToolDefinition {
	return []skiff.ToolDefinition{{
		Name:        "fetch_url",
		Description: "Fetch a URL and return its readable text content. Use for reading web pages, articles, documentation, or JSON APIs.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"The http(s) URL to fetch"}},"required":["url"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (skiff.ToolResult, error) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return skiff.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	content, err := t.Fetch(ctx, params.URL)
	if err != nil {
		return skiff.ToolResult{Error: err.Error()}, nil
	}
	return skiff.ToolResult{Content: content}, nil
}

// Fetch validates, downloads, and extracts a URL. The SSRF check runs before
// any network I/O.
func (t *Tool) Fetch(ctx context.Context, rawURL string) (string, error) {
	if err := ssrf.ValidateURL(rawURL); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}

	text := extract(rawURL, resp.Header.Get("Content-Type"), body)
	return truncate(text), nil
}

// extract picks a representation: JSON bodies are pretty-printed, HTML goes
// through readability with the tag stripper as fallback.
func extract(rawURL, contentType string, body []byte) string {
	trimmed := bytes.TrimSpace(body)
	isJSON := strings.Contains(contentType, "json") ||
		(len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '['))
	if isJSON && json.Valid(trimmed) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, trimmed, "", "  "); err == nil {
			return buf.String()
		}
	}

	html := string(body)
	if parsedURL, err := url.Parse(rawURL); err == nil {
		article, err := readability.FromReader(strings.NewReader(html), parsedURL)
		if err == nil && strings.TrimSpace(article.TextContent) != "" {
			return strings.TrimSpace(article.TextContent)
		}
	}
	return htmltext.Strip(html)
}

func truncate(s string) string {
	if len(s) <= maxOutput {
		return s
	}
	return s[:maxOutput] + "\n... (truncated)"
}

var _ skiff.Tool = (*Tool)(nil)
