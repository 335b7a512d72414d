package search

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// maxPageBytes bounds how much of a page is downloaded before parsing.
const maxPageBytes = 2 << 20

// skipElements are removed before text is collected.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"nav":      true,
	"footer":   true,
	"header":   true,
	"noscript": true,
	"svg":      true,
	"iframe":   true,
	"template": true,
}

// ExtractorOptions configures page fetching. Zero values use defaults.
type ExtractorOptions struct {
	Timeout   time.Duration
	MaxChars  int
	UserAgent string
	Client    *http.Client
}

// Extractor fetches a page and returns its readable text.
type Extractor struct {
	client    *http.Client
	timeout   time.Duration
	maxChars  int
	userAgent string
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ExtractorOptions) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 10000
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	return &Extractor{
		client:    opts.Client,
		timeout:   opts.Timeout,
		maxChars:  opts.MaxChars,
		userAgent: opts.UserAgent,
	}
}

// Extract downloads url and returns its whitespace-collapsed text, capped at
// the configured number of characters. Non-text responses yield "".
func (e *Extractor) Extract(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch: http %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxPageBytes)
	var text string
	switch mediaType(resp.Header.Get("Content-Type")) {
	case "", "text/html", "application/xhtml+xml":
		text, err = htmlText(body)
		if err != nil {
			return "", err
		}
	case "text/plain", "text/markdown":
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("read body: %w", err)
		}
		text = collapseWhitespace(string(raw))
	default:
		return "", nil
	}

	return truncateRunes(text, e.maxChars), nil
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}

// htmlText parses r as HTML and returns the visible text with boilerplate
// elements removed and whitespace collapsed.
func htmlText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skipElements[n.Data] {
				return
			}
		case html.CommentNode:
			return
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return collapseWhitespace(b.String()), nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
