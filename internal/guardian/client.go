package guardian

import (
	"context"
	"io"
	"log/slog"
	"net/url"

	"github.com/demad/newsapp/internal/models"
)

// Client runs one fetch cycle: build the query URL, fetch it and parse the body.
type Client struct {
	baseURL string
	apiKey  string
	prefs   models.Preferences
	fetcher *Fetcher
	parser  *Parser
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another host (for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithFetcher replaces the default fetcher.
func WithFetcher(f *Fetcher) Option {
	return func(c *Client) {
		c.fetcher = f
	}
}

// WithParser replaces the default parser.
func WithParser(p *Parser) Option {
	return func(c *Client) {
		c.parser = p
	}
}

// WithPreferences sets the preferences used by LoadArticles.
func WithPreferences(p models.Preferences) Option {
	return func(c *Client) {
		c.prefs = p
	}
}

// NewClient creates a content API client authenticated with apiKey.
func NewClient(apiKey string, log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fetcher == nil {
		c.fetcher = NewFetcher(log)
	}
	if c.parser == nil {
		c.parser = NewParser(log)
	}
	return c
}

// QueryURL builds the search URL for prefs. A construction fault is logged and
// reported as nil.
func (c *Client) QueryURL(prefs models.Preferences) *url.URL {
	u, err := BuildQueryURL(c.baseURL, DefaultQuery(c.apiKey).WithPreferences(prefs))
	if err != nil {
		c.log.Error("problem building the url", slog.Any("err", err))
		return nil
	}
	return u
}

// LoadArticles runs a fetch cycle with the client's configured preferences.
func (c *Client) LoadArticles(ctx context.Context) []models.Article {
	return c.Load(ctx, c.prefs)
}

// Load runs a fetch cycle for prefs. Every failure collapses to an empty slice.
func (c *Client) Load(ctx context.Context, prefs models.Preferences) []models.Article {
	body := c.fetcher.Fetch(ctx, c.QueryURL(prefs))
	articles := c.parser.Parse(body)
	c.log.Debug("fetch cycle finished", slog.Int("articles", len(articles)))
	return articles
}
