// Package search finds web pages for a query and extracts their readable
// text. Gateway never fails: engine and fetch errors are logged and turn
// into empty results.
package search

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/berth-dev/scout/internal/config"
)

// Result is one search hit, in engine order.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Engine is a web search backend.
type Engine interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Gateway combines an Engine with an Extractor behind a best-effort API.
type Gateway struct {
	engine    Engine
	extractor *Extractor
	logger    *zap.Logger
}

// NewGateway creates a Gateway. A nil logger discards log output.
func NewGateway(engine Engine, extractor *Extractor, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{engine: engine, extractor: extractor, logger: logger}
}

// New builds the Gateway for cfg.Search.Engine.
func New(cfg *config.Config, logger *zap.Logger) (*Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &http.Client{Timeout: 15 * time.Second}

	var engine Engine
	switch cfg.Search.Engine {
	case config.EngineDuckDuckGo:
		engine = NewDuckDuckGo(DuckDuckGoOptions{Client: client, UserAgent: cfg.Search.UserAgent})
	case config.EngineBrave:
		engine = NewBrave(BraveOptions{APIKey: cfg.Search.BraveAPIKey, Client: client})
	default:
		return nil, fmt.Errorf("unknown search engine %q", cfg.Search.Engine)
	}

	extractor := NewExtractor(ExtractorOptions{
		Timeout:   time.Duration(cfg.Search.FetchTimeoutSeconds) * time.Second,
		MaxChars:  cfg.Search.MaxContentChars,
		UserAgent: cfg.Search.UserAgent,
	})
	return NewGateway(engine, extractor, logger.With(zap.String("engine", engine.Name()))), nil
}

// EngineName reports the backend in use.
func (g *Gateway) EngineName() string {
	return g.engine.Name()
}

// Search returns up to maxResults hits for query, or nil on any failure.
func (g *Gateway) Search(ctx context.Context, query string, maxResults int) []Result {
	if maxResults <= 0 {
		return nil
	}

	results, err := g.engine.Search(ctx, query, maxResults)
	if err != nil {
		g.logger.Warn("search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	g.logger.Debug("search completed", zap.String("query", query), zap.Int("results", len(results)))
	return results
}

// ExtractContent returns the readable text of url, or "" on any failure.
func (g *Gateway) ExtractContent(ctx context.Context, url string) string {
	text, err := g.extractor.Extract(ctx, url)
	if err != nil {
		g.logger.Warn("content extraction failed", zap.String("url", url), zap.Error(err))
		return ""
	}
	return text
}
