// Package testutil provides test doubles and fixtures for scout tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/berth-dev/scout/internal/config"
	"github.com/berth-dev/scout/internal/llm"
	"github.com/berth-dev/scout/internal/search"
)

// TempConfig returns the default configuration with the database and
// report directory placed under a temporary directory.
func TempConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.LLM.OpenAIAPIKey = "test-key"
	cfg.Storage.DatabasePath = filepath.Join(dir, "data", "research.db")
	cfg.Storage.ReportDir = filepath.Join(dir, "reports")
	return cfg
}

// WriteFiles writes files (relative path -> content) under dir, creating
// directories as needed.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for relPath, content := range files {
		absPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", relPath, err)
		}
	}
}

// Reply is one scripted model response.
type Reply struct {
	Text string
	Err  error
}

// ScriptedGenerator returns its replies in order and records every request.
// Calls past the end of the script fail.
type ScriptedGenerator struct {
	mu       sync.Mutex
	replies  []Reply
	requests []llm.Request
}

// NewScriptedGenerator creates a generator that answers with replies in order.
func NewScriptedGenerator(replies ...Reply) *ScriptedGenerator {
	return &ScriptedGenerator{replies: replies}
}

// Generate returns the next scripted reply.
func (g *ScriptedGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, req)
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", llm.ErrGeneration, err)
	}
	if len(g.replies) == 0 {
		return "", fmt.Errorf("%w: %w", llm.ErrGeneration, errors.New("no scripted reply left"))
	}

	r := g.replies[0]
	g.replies = g.replies[1:]
	if r.Err != nil {
		return "", fmt.Errorf("%w: %w", llm.ErrGeneration, r.Err)
	}
	return r.Text, nil
}

// Requests returns the requests received so far.
func (g *ScriptedGenerator) Requests() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Request(nil), g.requests...)
}

// FakeSearcher serves canned search results and page contents.
type FakeSearcher struct {
	// Results by query; Default answers queries with no entry.
	Results map[string][]search.Result
	Default []search.Result
	// Content by URL; DefaultContent answers URLs with no entry.
	Content        map[string]string
	DefaultContent string

	mu      sync.Mutex
	queries []string
	fetched []string
}

// Search returns up to maxResults canned results for query.
func (f *FakeSearcher) Search(ctx context.Context, query string, maxResults int) []search.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, query)
	results, ok := f.Results[query]
	if !ok {
		results = f.Default
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// ExtractContent returns the canned content for url.
func (f *FakeSearcher) ExtractContent(ctx context.Context, url string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetched = append(f.fetched, url)
	if content, ok := f.Content[url]; ok {
		return content
	}
	return f.DefaultContent
}

// Queries returns the queries searched so far.
func (f *FakeSearcher) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// Fetched returns the URLs whose content was requested.
func (f *FakeSearcher) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}
