package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// BraveEndpoint is the Brave Search web API.
const BraveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// braveMaxCount is the largest page size the API accepts.
const braveMaxCount = 20

// BraveOptions configures a Brave engine.
type BraveOptions struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
	Limiter  *rate.Limiter
}

// Brave uses the Brave Search API. An API key is required via X-Subscription-Token.
type Brave struct {
	apiKey   string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewBrave constructs a Brave engine. The free tier allows one request per second.
func NewBrave(opts BraveOptions) *Brave {
	if opts.Endpoint == "" {
		opts.Endpoint = BraveEndpoint
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Every(time.Second), 1)
	}
	return &Brave{
		apiKey:   opts.APIKey,
		endpoint: opts.Endpoint,
		client:   opts.Client,
		limiter:  opts.Limiter,
	}
}

// Name implements Engine.
func (b *Brave) Name() string { return "brave" }

// Search implements Engine.
func (b *Brave) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(b.apiKey) == "" {
		return nil, errors.New("brave: API key is missing")
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	count := maxResults
	if count > braveMaxCount {
		count = braveMaxCount
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave http %d", resp.StatusCode)
	}

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([]Result, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: stripTags(r.Description)})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}

// stripTags removes the <strong> highlighting Brave puts in descriptions.
func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	text, err := htmlText(strings.NewReader(s))
	if err != nil {
		return s
	}
	return text
}
