package knowledge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// NoWikiResult is returned when the search page carries no usable text.
const NoWikiResult = "No relevant information found on the Minecraft Wiki."

const (
	defaultWikiBaseURL  = "https://minecraft.wiki"
	defaultWikiTimeout  = 20 * time.Second
	defaultWikiMaxChars = 10000
	maxWikiBody         = 4 << 20
)

// WikiSearch looks an item or block up on the Minecraft Wiki and returns a
// plain-text snippet of the page the search lands on.
type WikiSearch struct {
	client    *http.Client
	baseURL   string
	maxChars  int
	skipChars int
}

// WikiOpts holds parameters for creating a WikiSearch.
type WikiOpts struct {
	BaseURL   string        // default https://minecraft.wiki
	Timeout   time.Duration // default 20s; ignored when Client is set
	MaxChars  int           // snippet end offset, default 10000
	SkipChars int           // snippet start offset
	Client    *http.Client
}

// NewWikiSearch creates a WikiSearch.
func NewWikiSearch(opts WikiOpts) (*WikiSearch, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultWikiBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("knowledge: wiki: invalid base url: %w", err)
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = defaultWikiMaxChars
	}
	if opts.SkipChars < 0 {
		return nil, fmt.Errorf("knowledge: wiki: skip chars must not be negative")
	}
	if opts.SkipChars >= opts.MaxChars {
		return nil, fmt.Errorf("knowledge: wiki: skip chars (%d) must be below max chars (%d)", opts.SkipChars, opts.MaxChars)
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultWikiTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &WikiSearch{
		client:    client,
		baseURL:   base,
		maxChars:  opts.MaxChars,
		skipChars: opts.SkipChars,
	}, nil
}

func (w *WikiSearch) ID() ToolID { return WikiSearchTool }

func (w *WikiSearch) Description() string {
	return "Minecraft Wiki search tool. Input only the item or block name, always in English."
}

// SearchURL builds the wiki's "go" search URL for query.
func (w *WikiSearch) SearchURL(query string) string {
	return w.baseURL + "/w/Special:Search?search=" + url.QueryEscape(query) + "&go=Go"
}

func (w *WikiSearch) Run(ctx context.Context, in Input) (string, error) {
	if !in.HasQuery() {
		return "", fmt.Errorf("query is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.SearchURL(in.Query), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "gepeto/1.0 (+https://github.com/zulandar/gepeto)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxWikiBody))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var sb strings.Builder
	extractText(doc, &sb)
	return w.snippet(sb.String()), nil
}

// snippet trims text and returns the [skipChars, maxChars) rune window.
func (w *WikiSearch) snippet(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return NoWikiResult
	}
	if len(runes) <= w.skipChars {
		return string(runes)
	}
	end := min(len(runes), w.maxChars)
	return string(runes[w.skipChars:end])
}

// extractText writes the visible text of n, one line per block element.
func extractText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
			if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
				sb.WriteByte(' ')
			}
			sb.WriteString(text)
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "head":
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb)
	}

	if n.Type == html.ElementNode && isBlock(n.Data) {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "br", "li", "tr", "table", "ul", "ol", "section", "article",
		"h1", "h2", "h3", "h4", "h5", "h6", "pre", "blockquote", "dd", "dt":
		return true
	}
	return false
}
