package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/demad/newsapp/internal/guardian"
	"github.com/demad/newsapp/internal/models"
)

// Common contains Elasticsearch parameters shared by the indexing services.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Kafka locates the article topic.
type Kafka struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// Feed configures the content API poller and its HTTP surface.
type Feed struct {
	Kafka
	APIKey           string
	BaseURL          string
	BindAddr         string
	ReloadSchedule   string
	ConnectivityAddr string
	Publish          bool
	SkipMalformed    bool
	DedupeCapacity   int
	DedupeTTL        time.Duration
	RateLimitRPS     float64
	RateLimitBurst   int
	Preferences      models.Preferences
}

// Worker holds configuration for the Kafka -> Elasticsearch worker.
type Worker struct {
	Common
	Kafka
	KafkaConsumer    string
	KeywordLimit     int
	KeywordMinLength int
	DedupeCapacity   int
	DedupeTTL        time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr       string
	DefaultPage    int
	MaxPage        int
	RateLimitRPS   float64
	RateLimitBurst int
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Schedule  string
	MaxAge    time.Duration
	BatchSize int
}

// LoadDotEnv reads variables from the given files (".env" when none are named)
// without overriding what the environment already sets. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// LoadFeed builds a Feed config from environment variables and the optional
// preferences file.
func LoadFeed() (*Feed, error) {
	c := &Feed{
		Kafka:            loadKafka(),
		APIKey:           getEnv("GUARDIAN_API_KEY", "test"),
		BaseURL:          getEnv("GUARDIAN_BASE_URL", guardian.DefaultBaseURL),
		BindAddr:         getEnv("FEED_BIND_ADDR", "0.0.0.0:8081"),
		ReloadSchedule:   getEnvAllowEmpty("FEED_RELOAD_SCHEDULE", "@every 30m"),
		ConnectivityAddr: getEnvAllowEmpty("FEED_CONNECTIVITY_ADDR", "content.guardianapis.com:443"),
		Publish:          getBool("FEED_PUBLISH", false),
		SkipMalformed:    getBool("FEED_SKIP_MALFORMED", false),
		DedupeCapacity:   getInt("FEED_DEDUPE_CAPACITY", 5000),
		DedupeTTL:        getDuration("FEED_DEDUPE_TTL", "24h"),
		RateLimitRPS:     getFloat("FEED_RATE_LIMIT_RPS", 5),
		RateLimitBurst:   getInt("FEED_RATE_LIMIT_BURST", 10),
	}

	prefs, err := LoadPreferences(os.Getenv("FEED_PREFERENCES_FILE"))
	if err != nil {
		return nil, err
	}
	prefs.ItemsPerPage = getInt("FEED_ITEMS_PER_PAGE", prefs.ItemsPerPage)
	prefs.TopicCategory = getEnv("FEED_TOPIC_CATEGORY", prefs.TopicCategory)
	if err := guardian.ValidatePreferences(prefs); err != nil {
		return nil, fmt.Errorf("feed preferences: %w", err)
	}
	c.Preferences = prefs

	if strings.TrimSpace(c.APIKey) == "" {
		return nil, fmt.Errorf("GUARDIAN_API_KEY must not be blank")
	}
	if c.Publish && len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker when FEED_PUBLISH is set")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("FEED_DEDUPE_CAPACITY must be positive")
	}
	if c.RateLimitRPS < 0 {
		return nil, fmt.Errorf("FEED_RATE_LIMIT_RPS cannot be negative")
	}

	return c, nil
}

// DefaultPreferences mirrors the content API defaults: a full page of everything.
func DefaultPreferences() models.Preferences {
	return models.Preferences{ItemsPerPage: guardian.MaxPageSize, TopicCategory: "all"}
}

// LoadPreferences reads a YAML preferences file over the defaults. An empty
// path returns the defaults.
func LoadPreferences(path string) (models.Preferences, error) {
	prefs := DefaultPreferences()
	if path == "" {
		return prefs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return prefs, fmt.Errorf("read preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return prefs, fmt.Errorf("parse preferences: %w", err)
	}
	return prefs, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		Common:           loadCommon(),
		Kafka:            loadKafka(),
		KafkaConsumer:    getEnv("KAFKA_CONSUMER_GROUP", "articles-worker"),
		KeywordLimit:     getInt("WORKER_KEYWORD_LIMIT", 8),
		KeywordMinLength: getInt("WORKER_KEYWORD_MIN_LEN", 4),
		DedupeCapacity:   getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:        getDuration("WORKER_DEDUPE_TTL", "24h"),
		MaxRetries:       getInt("WORKER_MAX_RETRIES", 3),
		RetryBackoff:     getDuration("WORKER_RETRY_BACKOFF", "500ms"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.KeywordLimit <= 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_LIMIT must be positive")
	}
	if c.KeywordMinLength < 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_MIN_LEN cannot be negative")
	}
	if c.MaxRetries < 0 {
		return nil, fmt.Errorf("WORKER_MAX_RETRIES cannot be negative")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:         loadCommon(),
		BindAddr:       getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage:    getInt("API_PAGE_SIZE", 20),
		MaxPage:        getInt("API_MAX_PAGE_SIZE", 100),
		RateLimitRPS:   getFloat("API_RATE_LIMIT_RPS", 10),
		RateLimitBurst: getInt("API_RATE_LIMIT_BURST", 20),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:    loadCommon(),
		Schedule:  getEnv("RETENTION_SCHEDULE", "@every 24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "168h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "articles"),
	}
}

func loadKafka() Kafka {
	return Kafka{
		KafkaBrokers: splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "articles"),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// getEnvAllowEmpty treats a set-but-empty variable as an explicit "off".
func getEnvAllowEmpty(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, fallback)); err == nil {
		return d
	}
	d, err := time.ParseDuration(fallback)
	if err != nil {
		panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, err))
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
