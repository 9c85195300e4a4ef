package models

import "time"

// Article is one parsed item from the content search API.
type Article struct {
	Title         string    `json:"title"`
	SectionName   string    `json:"sectionName"`
	PublishedDate string    `json:"publishedDate"`
	Author        *string   `json:"author,omitempty"`
	URL           string    `json:"url"`
	PublishedAt   time.Time `json:"publishedAt,omitempty"`
}

// Preferences are the user-adjustable query options.
type Preferences struct {
	ItemsPerPage  int    `json:"itemsPerPage" yaml:"items_per_page"`
	TopicCategory string `json:"topicCategory" yaml:"topic_category"`
}

// ArticleDocument represents the canonical structure stored in Elasticsearch.
type ArticleDocument struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Section     string    `json:"section"`
	Author      string    `json:"author,omitempty"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Keywords    []string  `json:"keywords"`
	FetchedAt   time.Time `json:"fetched_at"`
}
