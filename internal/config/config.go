package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
)

const envPrefix = "WETMCP"

// Specification is the full process configuration, populated from defaults,
// then WETMCP_* environment variables, then command-line flags.
type Specification struct {
	// Storage
	DBPath string `envconfig:"DB_PATH"`

	// Embedding / reranking backends
	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER"` // jina, openai, local; empty auto-detects
	RerankProvider    string `envconfig:"RERANK_PROVIDER"`    // jina, local, off; empty auto-detects
	EmbeddingDim      int    `envconfig:"EMBEDDING_DIM"`      // fixed stored vector width
	EmbeddingCache    int    `envconfig:"EMBEDDING_CACHE"`    // LRU entries

	// Retrieval tuning
	VectorWeight    float64 `envconfig:"VECTOR_WEIGHT"`  // fusion weight for the vector channel
	QualityWeight   float64 `envconfig:"QUALITY_WEIGHT"` // low-weight content-shape bonus
	RerankExpansion int     `envconfig:"RERANK_EXPANSION"`
	MaxPerURL       int     `envconfig:"MAX_PER_URL"` // URL diversity cap in final results

	// Indexing budgets
	MaxPages     int `envconfig:"MAX_PAGES"`  // crawl page budget per reindex
	MaxChunkSize int `envconfig:"CHUNK_SIZE"` // target chunk size in characters
	MinChunkSize int `envconfig:"CHUNK_MIN"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP"`

	// Per-step timeouts
	DiscoveryTimeout time.Duration `envconfig:"DISCOVERY_TIMEOUT"`
	FetchTimeout     time.Duration `envconfig:"FETCH_TIMEOUT"`
	EmbedTimeout     time.Duration `envconfig:"EMBED_TIMEOUT"`
	RerankTimeout    time.Duration `envconfig:"RERANK_TIMEOUT"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL"`

	flags *pflag.FlagSet `ignored:"true"`
}

// Usage prints the flag usage to stderr.
func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load builds configuration with precedence defaults < env < flags.
func Load(fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath()
	}
	if cfg.EmbeddingDim <= 0 {
		return Specification{}, fmt.Errorf("WETMCP_EMBEDDING_DIM must be positive, got %d", cfg.EmbeddingDim)
	}
	if cfg.VectorWeight < 0 || cfg.VectorWeight > 1 {
		return Specification{}, fmt.Errorf("WETMCP_VECTOR_WEIGHT must be in [0,1], got %v", cfg.VectorWeight)
	}
	if cfg.RerankExpansion < 1 {
		cfg.RerankExpansion = 1
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

func setDefaults(c *Specification) {
	c.DBPath = ""
	c.EmbeddingDim = 768
	c.EmbeddingCache = 10000
	c.VectorWeight = 0.65
	c.QualityWeight = 0.005
	c.RerankExpansion = 3
	c.MaxPerURL = 2
	c.MaxPages = 50
	c.MaxChunkSize = 1500
	c.MinChunkSize = 100
	c.ChunkOverlap = 200
	c.DiscoveryTimeout = 30 * time.Second
	c.FetchTimeout = 90 * time.Second
	c.EmbedTimeout = 60 * time.Second
	c.RerankTimeout = 15 * time.Second
	c.LogLevel = "info"
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("db", c.DBPath, "Path to the docs index database")
	fs.String("embedding-provider", c.EmbeddingProvider, "Embedding provider (jina|openai|local)")
	fs.String("rerank-provider", c.RerankProvider, "Rerank provider (jina|local|off)")
	fs.Int("embedding-dim", c.EmbeddingDim, "Fixed stored embedding dimension")
	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")

	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}

	setStr("db", &c.DBPath)
	setStr("embedding-provider", &c.EmbeddingProvider)
	setStr("rerank-provider", &c.RerankProvider)
	setInt("embedding-dim", &c.EmbeddingDim)
	setStr("log-level", &c.LogLevel)
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "wet-mcp.db"
	}
	return filepath.Join(home, ".wet-mcp", "docs.db")
}
