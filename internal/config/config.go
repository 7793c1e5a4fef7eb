package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store backends
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Catalog sources
const (
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

type Config struct {
	Archive ArchiveConfig `yaml:"archive"`
	Store   StoreConfig   `yaml:"store"`
	Catalog CatalogConfig `yaml:"catalog"`
	Hints   HintsConfig   `yaml:"hints"`
	Queue   QueueConfig   `yaml:"queue"`
	Cluster ClusterConfig `yaml:"cluster"`
	Matcher MatcherConfig `yaml:"matcher"`
	Web     WebConfig     `yaml:"web"`
	Log     LogConfig     `yaml:"log"`
}

type ArchiveConfig struct {
	DataDir    string `yaml:"data_dir"`    // decision logs, side stores and the lock file
	BucketsDir string `yaml:"buckets_dir"` // bkt_<prefix>/ directories with derived images and sidecars
	// RequireImages drops detections whose bucket has no derived front image.
	RequireImages bool `yaml:"require_images"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // csv or sqlite
}

type CatalogConfig struct {
	Source        string   `yaml:"source"` // sqlite or postgres
	Path          string   `yaml:"path"`   // archive SQLite database
	URL           string   `yaml:"url"`    // PostgreSQL connection URL
	MaxOpenConns  int      `yaml:"max_open_conns"`
	MaxIdleConns  int      `yaml:"max_idle_conns"`
	Variants      []string `yaml:"variants"`
	MinConfidence float64  `yaml:"min_confidence"`
}

type HintsConfig struct {
	Sidecars      bool   `yaml:"sidecars"`
	PhotoPrismDSN string `yaml:"photoprism_dsn"` // MariaDB DSN (e.g., photoprism:photoprism@tcp(mariadb:3306)/photoprism)
}

type QueueConfig struct {
	HistoryLimit   int     `yaml:"history_limit"`
	MinSimilarity  float64 `yaml:"min_similarity"`
	BatchSize      int     `yaml:"batch_size"`
	PageSize       int     `yaml:"page_size"`
	UnlabeledLimit int     `yaml:"unlabeled_limit"`
}

type ClusterConfig struct {
	Similarity    float64 `yaml:"similarity"`
	MinFaces      int     `yaml:"min_faces"`
	MinConfidence float64 `yaml:"min_confidence"`
}

type MatcherConfig struct {
	Dim       int    `yaml:"dim"`
	Workers   int    `yaml:"workers"` // 0 means GOMAXPROCS
	HNSW      bool   `yaml:"hnsw"`
	IndexPath string `yaml:"index_path"` // empty keeps the index in memory only
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Archive: ArchiveConfig{DataDir: "data", BucketsDir: "buckets"},
		Store:   StoreConfig{Backend: BackendCSV},
		Catalog: CatalogConfig{
			Source:       SourceSQLite,
			Path:         "archive.db",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			Variants:     []string{"raw_front", "proxy_front"},
		},
		Hints: HintsConfig{Sidecars: true},
		Queue: QueueConfig{
			HistoryLimit:   200,
			MinSimilarity:  0.35,
			BatchSize:      12,
			PageSize:       60,
			UnlabeledLimit: 200,
		},
		Cluster: ClusterConfig{Similarity: 0.83, MinFaces: 4, MinConfidence: 0.75},
		Matcher: MatcherConfig{Dim: 128},
		Web:     WebConfig{Host: "0.0.0.0", Port: 8085},
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// FACE_QUEUE_CONFIG (if set) and environment variables, in that order.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("FACE_QUEUE_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Archive.DataDir = envString("ARCHIVE_DATA_DIR", c.Archive.DataDir)
	c.Archive.BucketsDir = envString("ARCHIVE_BUCKETS_DIR", c.Archive.BucketsDir)
	c.Archive.RequireImages = envBool("ARCHIVE_REQUIRE_IMAGES", c.Archive.RequireImages)
	c.Store.Backend = envString("STORE_BACKEND", c.Store.Backend)

	c.Catalog.Source = envString("CATALOG_SOURCE", c.Catalog.Source)
	c.Catalog.Path = envString("CATALOG_PATH", c.Catalog.Path)
	c.Catalog.URL = envString("DATABASE_URL", c.Catalog.URL)
	c.Catalog.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Catalog.MaxOpenConns)
	c.Catalog.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Catalog.MaxIdleConns)
	c.Catalog.Variants = envList("CATALOG_VARIANTS", c.Catalog.Variants)
	c.Catalog.MinConfidence = envFloat("CATALOG_MIN_CONFIDENCE", c.Catalog.MinConfidence)

	c.Hints.Sidecars = envBool("HINTS_SIDECARS", c.Hints.Sidecars)
	c.Hints.PhotoPrismDSN = envString("PHOTOPRISM_DATABASE_URL", c.Hints.PhotoPrismDSN)

	c.Queue.HistoryLimit = envInt("QUEUE_HISTORY_LIMIT", c.Queue.HistoryLimit)
	c.Queue.MinSimilarity = envFloat("QUEUE_MIN_SIMILARITY", c.Queue.MinSimilarity)
	c.Queue.BatchSize = envInt("QUEUE_BATCH_SIZE", c.Queue.BatchSize)
	c.Queue.PageSize = envInt("QUEUE_PAGE_SIZE", c.Queue.PageSize)
	c.Queue.UnlabeledLimit = envInt("QUEUE_UNLABELED_LIMIT", c.Queue.UnlabeledLimit)
	c.Cluster.Similarity = envFloat("CLUSTER_SIMILARITY", c.Cluster.Similarity)
	c.Cluster.MinFaces = envInt("CLUSTER_MIN_FACES", c.Cluster.MinFaces)

	c.Matcher.Dim = envInt("EMBEDDING_DIM", c.Matcher.Dim)
	c.Matcher.Workers = envInt("MATCHER_WORKERS", c.Matcher.Workers)
	c.Matcher.HNSW = envBool("HNSW_ENABLED", c.Matcher.HNSW)
	c.Matcher.IndexPath = envString("HNSW_INDEX_PATH", c.Matcher.IndexPath)

	c.Web.Host = envString("WEB_HOST", c.Web.Host)
	c.Web.Port = envInt("WEB_PORT", c.Web.Port)
	c.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS", c.Web.AllowedOrigins)

	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("LOG_FORMAT", c.Log.Format)
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendCSV, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	switch c.Catalog.Source {
	case SourceSQLite:
		if c.Catalog.Path == "" {
			errs = append(errs, errors.New("catalog.path is required for the sqlite source"))
		}
	case SourcePostgres:
		if c.Catalog.URL == "" {
			errs = append(errs, errors.New("catalog.url (DATABASE_URL) is required for the postgres source"))
		}
	default:
		errs = append(errs, fmt.Errorf("catalog.source: unknown source %q", c.Catalog.Source))
	}
	if c.Archive.DataDir == "" {
		errs = append(errs, errors.New("archive.data_dir is required"))
	}
	if c.Queue.MinSimilarity < -1 || c.Queue.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("queue.min_similarity %v out of range [-1, 1]", c.Queue.MinSimilarity))
	}
	if c.Queue.HistoryLimit <= 0 {
		errs = append(errs, errors.New("queue.history_limit must be positive"))
	}
	if c.Cluster.Similarity <= 0 || c.Cluster.Similarity > 1 {
		errs = append(errs, fmt.Errorf("cluster.similarity %v out of range (0, 1]", c.Cluster.Similarity))
	}
	if c.Cluster.MinFaces < 2 {
		errs = append(errs, errors.New("cluster.min_faces must be at least 2"))
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		errs = append(errs, fmt.Errorf("web.port %d out of range", c.Web.Port))
	}
	return errors.Join(errs...)
}

// CatalogPath resolves the archive database path. Relative paths are taken
// from the data directory.
func (c *Config) CatalogPath() string {
	if filepath.IsAbs(c.Catalog.Path) {
		return c.Catalog.Path
	}
	return filepath.Join(c.Archive.DataDir, c.Catalog.Path)
}

// IndexPath resolves the HNSW index path the same way. Empty stays empty.
func (c *Config) IndexPath() string {
	if c.Matcher.IndexPath == "" || filepath.IsAbs(c.Matcher.IndexPath) {
		return c.Matcher.IndexPath
	}
	return filepath.Join(c.Archive.DataDir, c.Matcher.IndexPath)
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
