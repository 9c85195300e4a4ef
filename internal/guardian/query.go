package guardian

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/demad/newsapp/internal/models"
)

const (
	// DefaultBaseURL is the public content API endpoint.
	DefaultBaseURL = "https://content.guardianapis.com"

	searchPath = "search"

	// MaxPageSize is the largest page the search endpoint serves.
	MaxPageSize     = 50
	defaultPageSize = MaxPageSize

	// matchAll is the free-text query that selects every piece of content.
	matchAll = " "
)

var validOrders = map[string]struct{}{
	"newest":    {},
	"oldest":    {},
	"relevance": {},
}

// Query holds the parameters of one content search request.
type Query struct {
	Format        string
	OrderBy       string
	ShowReference string
	ShowTags      string
	Lang          string
	PageSize      int
	Text          string
	APIKey        string
}

// DefaultQuery returns the newest English articles with contributor tags.
func DefaultQuery(apiKey string) Query {
	return Query{
		Format:        "json",
		OrderBy:       "newest",
		ShowReference: "author",
		ShowTags:      "contributor",
		Lang:          "en",
		PageSize:      defaultPageSize,
		Text:          matchAll,
		APIKey:        apiKey,
	}
}

// WithPreferences applies user preferences. Zero values keep the current setting;
// the topic "all" resets the free-text query to match everything.
func (q Query) WithPreferences(p models.Preferences) Query {
	if p.ItemsPerPage != 0 {
		q.PageSize = p.ItemsPerPage
	}
	switch topic := strings.TrimSpace(p.TopicCategory); {
	case topic == "":
	case strings.EqualFold(topic, "all"):
		q.Text = matchAll
	default:
		q.Text = topic
	}
	return q
}

// Values returns q as URL query parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("format", q.Format)
	v.Set("order-by", q.OrderBy)
	v.Set("show-reference", q.ShowReference)
	v.Set("show-tags", q.ShowTags)
	v.Set("lang", q.Lang)
	v.Set("page-size", strconv.Itoa(q.PageSize))
	v.Set("q", q.Text)
	v.Set("api-key", q.APIKey)
	return v
}

func (q Query) validate() error {
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return fmt.Errorf("page size %d outside 1..%d", q.PageSize, MaxPageSize)
	}
	if _, ok := validOrders[q.OrderBy]; !ok {
		return fmt.Errorf("unknown order %q", q.OrderBy)
	}
	if strings.TrimSpace(q.APIKey) == "" {
		return errors.New("api key is empty")
	}
	return nil
}

// BuildQueryURL returns the search URL for q on baseURL.
func BuildQueryURL(baseURL string, q Query) (*url.URL, error) {
	if err := q.validate(); err != nil {
		return nil, fmt.Errorf("build query url: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("build query url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("build query url: base %q needs scheme and host", baseURL)
	}

	u := base.JoinPath(searchPath)
	u.RawQuery = q.Values().Encode()
	return u, nil
}

// ValidatePreferences checks p against what the search endpoint accepts.
func ValidatePreferences(p models.Preferences) error {
	if p.ItemsPerPage < 1 || p.ItemsPerPage > MaxPageSize {
		return fmt.Errorf("items per page %d outside 1..%d", p.ItemsPerPage, MaxPageSize)
	}
	if strings.TrimSpace(p.TopicCategory) == "" {
		return errors.New("topic category is empty")
	}
	return nil
}
