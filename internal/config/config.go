package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// BrowserConfig controls the shared headless browser pool.
type BrowserConfig struct {
	// MaxPages caps the number of concurrently open tabs across all jobs.
	MaxPages int `yaml:"maxPages"`
	// ControlURL connects to an external browser instead of launching one.
	ControlURL string `yaml:"controlURL"`
	// LaunchRetries is the number of relaunch attempts after the browser
	// process dies before Page calls start failing.
	LaunchRetries int `yaml:"launchRetries"`
}

// CrawlerConfig controls discovery behavior.
type CrawlerConfig struct {
	// MaxPagesDefault caps crawled pages when a job requests 0.
	MaxPagesDefault int `yaml:"maxPagesDefault"`
	// NavTimeoutMs is the per-navigation timeout during discovery.
	NavTimeoutMs int `yaml:"navTimeoutMs"`
	// SettleWaitMs is how long to wait for dynamic content after load.
	SettleWaitMs int `yaml:"settleWaitMs"`
	// ClickWaitMs is how long to wait after clicking load-more elements.
	ClickWaitMs int `yaml:"clickWaitMs"`
	// ProgressEvery writes job progress after this many new URLs.
	ProgressEvery int `yaml:"progressEvery"`
	// RespectRobots enables the optional robots.txt filter.
	RespectRobots bool   `yaml:"respectRobots"`
	UserAgent     string `yaml:"userAgent"`
}

// ExtractorConfig names the heuristic thresholds of the content extractor.
type ExtractorConfig struct {
	MinMainTextChars  int     `yaml:"minMainTextChars"`
	MinTextHTMLRatio  float64 `yaml:"minTextHtmlRatio"`
	FallbackParaChars int     `yaml:"fallbackParaChars"`
	FallbackBodyChars int     `yaml:"fallbackBodyChars"`
	MaxContentChars   int     `yaml:"maxContentChars"`
	MinDocumentChars  int     `yaml:"minDocumentChars"`
}

// ChunkerConfig supplies knowledge-base defaults for chunking.
type ChunkerConfig struct {
	DefaultChunkSize    int `yaml:"defaultChunkSize"`
	DefaultChunkOverlap int `yaml:"defaultChunkOverlap"`
}

// EmbeddingConfig configures the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	APIKey       string `yaml:"apiKey"`
	BaseURL      string `yaml:"baseURL"`
	DefaultModel string `yaml:"defaultModel"`
	Dimension    int    `yaml:"dimension"`
	TimeoutMs    int    `yaml:"timeoutMs"`
	// MaxConcurrent bounds parallel embedding calls per document.
	MaxConcurrent int `yaml:"maxConcurrent"`
}

// IngestConfig controls the per-URL scrape behavior of the pipeline.
type IngestConfig struct {
	NavTimeoutMs int `yaml:"navTimeoutMs"`
	// Retries after the initial attempt for a transient scrape failure.
	Retries int `yaml:"retries"`
}

type WorkerConfig struct {
	MaxConcurrentJobs int `yaml:"maxConcurrentJobs"`
	PollIntervalMs    int `yaml:"pollIntervalMs"`
	// RetentionDays deletes terminal jobs older than this. 0 keeps
	// them forever.
	RetentionDays int `yaml:"retentionDays"`
	// CleanupIntervalMinutes is how often retention cleanup runs.
	CleanupIntervalMinutes int `yaml:"cleanupIntervalMinutes"`
}

type RateLimitConfig struct {
	DefaultPerMinute int `yaml:"defaultPerMinute"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Browser   BrowserConfig   `yaml:"browser"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Worker    WorkerConfig    `yaml:"worker"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero-valued fields with the documented defaults so
// that a sparse config file still yields a working process.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Browser.MaxPages <= 0 {
		c.Browser.MaxPages = 5
	}
	if c.Browser.LaunchRetries <= 0 {
		c.Browser.LaunchRetries = 2
	}
	if c.Crawler.MaxPagesDefault <= 0 {
		c.Crawler.MaxPagesDefault = 500
	}
	if c.Crawler.NavTimeoutMs <= 0 {
		c.Crawler.NavTimeoutMs = 15000
	}
	if c.Crawler.SettleWaitMs <= 0 {
		c.Crawler.SettleWaitMs = 3000
	}
	if c.Crawler.ClickWaitMs <= 0 {
		c.Crawler.ClickWaitMs = 1000
	}
	if c.Crawler.ProgressEvery <= 0 {
		c.Crawler.ProgressEvery = 10
	}
	if c.Crawler.UserAgent == "" {
		c.Crawler.UserAgent = "quarry/1.0"
	}
	if c.Extractor.MinMainTextChars <= 0 {
		c.Extractor.MinMainTextChars = 200
	}
	if c.Extractor.MinTextHTMLRatio <= 0 {
		c.Extractor.MinTextHTMLRatio = 0.1
	}
	if c.Extractor.FallbackParaChars <= 0 {
		c.Extractor.FallbackParaChars = 500
	}
	if c.Extractor.FallbackBodyChars <= 0 {
		c.Extractor.FallbackBodyChars = 100
	}
	if c.Extractor.MaxContentChars <= 0 {
		c.Extractor.MaxContentChars = 50000
	}
	if c.Extractor.MinDocumentChars <= 0 {
		c.Extractor.MinDocumentChars = 20
	}
	if c.Chunker.DefaultChunkSize <= 0 {
		c.Chunker.DefaultChunkSize = 1000
	}
	if c.Chunker.DefaultChunkOverlap <= 0 {
		c.Chunker.DefaultChunkOverlap = 200
	}
	if c.Embedding.DefaultModel == "" {
		c.Embedding.DefaultModel = "text-embedding-3-small"
	}
	if c.Embedding.Dimension <= 0 {
		c.Embedding.Dimension = 1536
	}
	if c.Embedding.TimeoutMs <= 0 {
		c.Embedding.TimeoutMs = 30000
	}
	if c.Embedding.MaxConcurrent <= 0 {
		c.Embedding.MaxConcurrent = 4
	}
	if c.Ingest.NavTimeoutMs <= 0 {
		c.Ingest.NavTimeoutMs = 20000
	}
	if c.Ingest.Retries <= 0 {
		c.Ingest.Retries = 2
	}
	if c.Worker.MaxConcurrentJobs <= 0 {
		c.Worker.MaxConcurrentJobs = 4
	}
	if c.Worker.PollIntervalMs <= 0 {
		c.Worker.PollIntervalMs = 2000
	}
}
