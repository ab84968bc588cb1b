// Package search implements the web_search tool. Brave Search is the primary
// backend; DuckDuckGo's HTML endpoint is the keyless fallback when Brave is
// unconfigured, fails, or returns nothing.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	skiff "github.com/avitkov/skiff"
	"github.com/avitkov/skiff/internal/htmltext"
)

const (
	resultCount   = 8
	snippetLimit  = 400
	userAgent     = "Mozilla/5.0 (compatible; SkiffBot/1.0)"
	searchTimeout = 10 * time.Second
)

// Result is one search hit, backend-independent.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Tool performs web searches with a two-tier backend.
type Tool struct {
	braveAPIKey string
	client      *http.Client
	logger      *slog.Logger
}

// Option configures a Tool.
type Option func(*Tool)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tool) { t.client = c }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) { t.logger = l }
}

// New creates the web_search tool. An empty braveAPIKey skips Brave and goes
// straight to the fallback backend.
func New(braveAPIKey string, opts ...Option) *Tool {
	t := &Tool{
		braveAPIKey: braveAPIKey,
		client:      &http.Client{Timeout: searchTimeout},
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Definitions() []skiff.ToolDefinition {
	return []skiff.ToolDefinition{{
		Name:        "web_search",
		Description: "Search the web for current/real-time information. Use for recent events, news, prices, weather, or anything that requires up-to-date data.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query optimized for search engines"}},"required":["query"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (skiff.ToolResult, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return skiff.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	content, err := t.Search(ctx, params.Query)
	if err != nil {
		return skiff.ToolResult{Error: err.Error()}, nil
	}
	return skiff.ToolResult{Content: content}, nil
}

// Search tries Brave first and falls back to DuckDuckGo. A run where every
// backend comes up empty is not an error: the model gets a readable
// "no results" message instead.
func (t *Tool) Search(ctx context.Context, query string) (string, error) {
	var results []Result

	if t.braveAPIKey != "" {
		var err error
		results, err = t.braveSearch(ctx, query)
		if err != nil {
			t.logger.Warn("brave search failed, falling back", "error", err)
		}
	}

	if len(results) == 0 {
		var err error
		results, err = t.duckduckgoSearch(ctx, query)
		if err != nil {
			return "", err
		}
	}

	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query), nil
	}
	return formatResults(query, results), nil
}

func (t *Tool) braveSearch(ctx context.Context, query string) ([]Result, error) {
	u := fmt.Sprintf("https://api.search.brave.com/res/v1/web/search?q=%s&count=%d",
		url.QueryEscape(query), resultCount)

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.braveAPIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("brave API %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("brave parse error: %w", err)
	}

	var results []Result
	for _, r := range data.Web.Results {
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: htmltext.Strip(r.Description),
		})
	}
	return results, nil
}

// duckduckgoSearch scrapes the HTML endpoint. It needs no API key, which
// makes it the backend of last resort.
func (t *Tool) duckduckgoSearch(ctx context.Context, query string) ([]Result, error) {
	u := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("duckduckgo HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo read error: %w", err)
	}
	return parseDuckDuckGo(string(body)), nil
}

// parseDuckDuckGo pulls result links and snippets out of the HTML response.
// The markup is stable enough that string scanning beats a full DOM parse.
func parseDuckDuckGo(html string) []Result {
	var results []Result
	rest := html
	for len(results) < resultCount {
		link, remainder, ok := extractBetween(rest, `class="result__a"`, "</a>")
		if !ok {
			break
		}
		rest = remainder

		href := extractAttr(link, "href")
		title := htmltext.Strip(afterTagClose(link))
		if href == "" || title == "" {
			continue
		}

		snippet := ""
		if s, r, ok := extractBetween(rest, `class="result__snippet"`, "</a>"); ok {
			snippet = htmltext.Strip(afterTagClose(s))
			rest = r
		}

		results = append(results, Result{
			Title:   title,
			URL:     decodeRedirect(href),
			Snippet: snippet,
		})
	}
	return results
}

// extractBetween finds marker and returns everything up to end, plus the
// remainder of the input after end.
func extractBetween(s, marker, end string) (segment, rest string, ok bool) {
	i := strings.Index(s, marker)
	if i < 0 {
		return "", "", false
	}
	// Back up to the opening bracket of the tag carrying the marker.
	start := strings.LastIndex(s[:i], "<")
	if start < 0 {
		start = i
	}
	j := strings.Index(s[i:], end)
	if j < 0 {
		return "", "", false
	}
	return s[start : i+j], s[i+j+len(end):], true
}

func extractAttr(tag, name string) string {
	marker := name + `="`
	i := strings.Index(tag, marker)
	if i < 0 {
		return ""
	}
	rest := tag[i+len(marker):]
	j := strings.Index(rest, `"`)
	if j < 0 {
		return ""
	}
	return rest[:j]
}

func afterTagClose(s string) string {
	if i := strings.Index(s, ">"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// decodeRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func decodeRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func formatResults(query string, results []Result) string {
	var out strings.Builder
	fmt.Fprintf(&out, "Search results for %q:\n\n", query)
	for i, r := range results {
		snippet := r.Snippet
		if len(snippet) > snippetLimit {
			snippet = snippet[:snippetLimit]
		}
		fmt.Fprintf(&out, "[%d] %s\n%s\n%s\n\n", i+1, r.Title, r.URL, snippet)
	}
	return strings.TrimRight(out.String(), "\n")
}

var _ skiff.Tool = (*Tool)(nil)
