package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	LLMBaseURL     string
	LLMModelName   string
	LLMAPIKey      string
	LLMTemperature float64
	LLMMaxTokens   int

	EmbeddingBaseURL   string
	EmbeddingModelName string

	RerankBaseURL    string
	RerankEnabled    bool
	RerankModel      string
	RerankCandidates int

	DataDir          string
	DBPath           string
	LexicalIndexPath string

	QdrantURL        string
	QdrantCollection string
	QdrantVectorSize int

	TopK        int
	MinScore    float64
	MaxPassages int
	Alpha       float64
	Language    string

	GapThreshold       float64
	MinTokenOverlap    float64
	RequireDocCoverage int
	ClaimCheckMode     string

	ChunkMaxChars     int
	ChunkOverlapChars int
	IngestWorkers     int

	RequestTimeout time.Duration
	APIPort        string
	LogLevel       slog.Level
	LogFormat      string
}

// fileConfig is the optional YAML overlay. Unset keys keep their defaults.
type fileConfig struct {
	Retrieval struct {
		TopK             *int     `yaml:"top_k"`
		MinScore         *float64 `yaml:"min_score"`
		MaxPassages      *int     `yaml:"max_passages"`
		Alpha            *float64 `yaml:"alpha"`
		Language         *string  `yaml:"language"`
		LexicalIndexPath *string  `yaml:"lexical_index_path"`
		ClaimCheck       struct {
			Mode *string `yaml:"mode"`
		} `yaml:"claim_check"`
		Gate struct {
			GapThreshold       *float64 `yaml:"gap_threshold"`
			MinTokenOverlap    *float64 `yaml:"min_token_overlap"`
			RequireDocCoverage *int     `yaml:"require_doc_coverage"`
		} `yaml:"gate"`
	} `yaml:"retrieval"`
	Rerank struct {
		Enabled    *bool   `yaml:"enabled"`
		Model      *string `yaml:"model"`
		Candidates *int    `yaml:"candidates"`
	} `yaml:"rerank"`
	Chunking struct {
		MaxChars     *int `yaml:"max_chars"`
		OverlapChars *int `yaml:"overlap_chars"`
	} `yaml:"chunking"`
}

// defaults returns the configuration used when neither the YAML file nor the environment set a key.
func defaults() *Config {
	return &Config{
		LLMBaseURL:         "http://localhost:8080",
		LLMModelName:       "Llama-3.1-8B-Instruct",
		LLMAPIKey:          "dummy-key",
		LLMTemperature:     0.1,
		LLMMaxTokens:       512,
		EmbeddingBaseURL:   "http://localhost:8081",
		EmbeddingModelName: "granite-embedding-278m-multilingual",
		RerankBaseURL:      "http://localhost:8082",
		RerankModel:        "bge-reranker-v2-m3",
		RerankCandidates:   30,
		DataDir:            "./data",
		QdrantURL:          "http://localhost:6333",
		QdrantCollection:   "books",
		TopK:               8,
		MinScore:           0.2,
		MaxPassages:        5,
		Alpha:              0.5,
		Language:           "auto",
		GapThreshold:       0.15,
		MinTokenOverlap:    0.15,
		RequireDocCoverage: 2,
		ClaimCheckMode:     "refuse",
		ChunkMaxChars:      2500,
		ChunkOverlapChars:  200,
		IngestWorkers:      2,
		RequestTimeout:     120 * time.Second,
		APIPort:            "9000",
		LogLevel:           slog.LevelInfo,
		LogFormat:          "text",
	}
}

// ConfigFileEnv names the environment variable holding the optional YAML config path.
const ConfigFileEnv = "RAGBOOK_CONFIG"

// Load reads configuration from environment variables and returns a Config struct.
// If a .env file exists in the current directory or up to five parent directories, it is
// loaded first; variables already set take precedence over .env values. When
// RAGBOOK_CONFIG names a YAML file, its values override the defaults and are in turn
// overridden by the environment.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := defaults()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	return cfg, nil
}

func loadDotEnv() {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	r := f.Retrieval
	setIf(&c.TopK, r.TopK)
	setIf(&c.MinScore, r.MinScore)
	setIf(&c.MaxPassages, r.MaxPassages)
	setIf(&c.Alpha, r.Alpha)
	setIf(&c.Language, r.Language)
	setIf(&c.LexicalIndexPath, r.LexicalIndexPath)
	setIf(&c.ClaimCheckMode, r.ClaimCheck.Mode)
	setIf(&c.GapThreshold, r.Gate.GapThreshold)
	setIf(&c.MinTokenOverlap, r.Gate.MinTokenOverlap)
	setIf(&c.RequireDocCoverage, r.Gate.RequireDocCoverage)
	setIf(&c.RerankEnabled, f.Rerank.Enabled)
	setIf(&c.RerankModel, f.Rerank.Model)
	setIf(&c.RerankCandidates, f.Rerank.Candidates)
	setIf(&c.ChunkMaxChars, f.Chunking.MaxChars)
	setIf(&c.ChunkOverlapChars, f.Chunking.OverlapChars)
	return nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (c *Config) applyEnv() error {
	c.LLMBaseURL = getEnv("LLM_BASE_URL", c.LLMBaseURL)
	c.LLMModelName = getEnv("LLM_MODEL", c.LLMModelName)
	c.LLMAPIKey = getEnv("LLM_API_KEY", c.LLMAPIKey)
	c.EmbeddingBaseURL = getEnv("EMBEDDING_BASE_URL", c.EmbeddingBaseURL)
	// granite-embedding-278m-multilingual enforces a 512 token context.
	c.EmbeddingModelName = getEnv("EMBEDDING_MODEL_NAME", c.EmbeddingModelName)
	c.RerankBaseURL = getEnv("RERANK_BASE_URL", c.RerankBaseURL)
	c.RerankModel = getEnv("RERANK_MODEL", c.RerankModel)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.LexicalIndexPath = getEnv("LEXICAL_INDEX_PATH", c.LexicalIndexPath)
	c.QdrantURL = getEnv("QDRANT_URL", c.QdrantURL)
	c.QdrantCollection = getEnv("QDRANT_COLLECTION", c.QdrantCollection)
	c.Language = getEnv("RETRIEVAL_LANGUAGE", c.Language)
	c.ClaimCheckMode = strings.ToLower(getEnv("CLAIM_CHECK_MODE", c.ClaimCheckMode))
	c.APIPort = getEnv("API_PORT", c.APIPort)
	c.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", c.LogFormat))

	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "ragbook.db")
	}
	if c.LexicalIndexPath == "" {
		c.LexicalIndexPath = filepath.Join(c.DataDir, "lexical_index.json")
	}

	// QDRANT_VECTOR_SIZE must match the output size of the embeddings model. If it
	// changes, the Qdrant collection must be recreated.
	vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return fmt.Errorf("QDRANT_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
	}
	c.QdrantVectorSize = vectorSize

	ints := []struct {
		key string
		dst *int
	}{
		{"LLM_MAX_TOKENS", &c.LLMMaxTokens},
		{"RERANK_CANDIDATES", &c.RerankCandidates},
		{"RETRIEVAL_TOP_K", &c.TopK},
		{"RETRIEVAL_MAX_PASSAGES", &c.MaxPassages},
		{"GATE_REQUIRE_DOC_COVERAGE", &c.RequireDocCoverage},
		{"CHUNK_MAX_CHARS", &c.ChunkMaxChars},
		{"CHUNK_OVERLAP_CHARS", &c.ChunkOverlapChars},
		{"INGEST_WORKERS", &c.IngestWorkers},
	}
	for _, e := range ints {
		if err := envInt(e.key, e.dst); err != nil {
			return err
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"LLM_TEMPERATURE", &c.LLMTemperature},
		{"RETRIEVAL_MIN_SCORE", &c.MinScore},
		{"RETRIEVAL_ALPHA", &c.Alpha},
		{"GATE_GAP_THRESHOLD", &c.GapThreshold},
		{"GATE_MIN_TOKEN_OVERLAP", &c.MinTokenOverlap},
	}
	for _, e := range floats {
		if err := envFloat(e.key, e.dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("RERANK_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RERANK_ENABLED must be a boolean: %w", err)
		}
		c.RerankEnabled = enabled
	}

	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REQUEST_TIMEOUT must be a duration: %w", err)
		}
		c.RequestTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error: %w", err)
		}
	}

	return nil
}

func (c *Config) validate() error {
	switch {
	case c.QdrantVectorSize <= 0:
		return fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
	case c.Alpha < 0 || c.Alpha > 1:
		return fmt.Errorf("retrieval alpha must be within [0, 1], got %v", c.Alpha)
	case c.ClaimCheckMode != "strip" && c.ClaimCheckMode != "refuse":
		return fmt.Errorf("claim check mode must be strip or refuse, got %q", c.ClaimCheckMode)
	case c.TopK <= 0:
		return fmt.Errorf("retrieval top_k must be positive, got %d", c.TopK)
	case c.MaxPassages <= 0:
		return fmt.Errorf("retrieval max_passages must be positive, got %d", c.MaxPassages)
	case c.RerankCandidates <= 0:
		return fmt.Errorf("rerank candidates must be positive, got %d", c.RerankCandidates)
	case c.ChunkMaxChars <= 0:
		return fmt.Errorf("chunk max_chars must be positive, got %d", c.ChunkMaxChars)
	case c.ChunkOverlapChars < 0 || c.ChunkOverlapChars >= c.ChunkMaxChars:
		return fmt.Errorf("chunk overlap_chars must be within [0, %d), got %d", c.ChunkMaxChars, c.ChunkOverlapChars)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s must be a number: %w", key, err)
	}
	*dst = f
	return nil
}
