// Package config loads vaultmind's layered configuration: hardcoded
// defaults, an optional user config file, an optional project config file,
// and environment variable overrides, in that order of precedence.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete vaultmind configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Vaults     VaultsConfig     `yaml:"vaults" json:"vaults"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Rerank     RerankConfig     `yaml:"rerank" json:"rerank"`
	Classifier ClassifierConfig `yaml:"classifier" json:"classifier"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// VaultsConfig locates the two corpus partitions on disk.
type VaultsConfig struct {
	WorkRoot     string `yaml:"work_root" json:"work_root"`
	PersonalRoot string `yaml:"personal_root" json:"personal_root"`
	DataDir      string `yaml:"data_dir" json:"data_dir"`
}

// SearchConfig configures hybrid search and rank fusion.
//
// BM25Weight and SemanticWeight are validated (each in [0,1], summing to 1)
// but no search stage reads them: the RRF stage takes no weights, only list
// repetition (see internal/search/fusion.go), and the rerank blend uses
// RerankAlpha.
type SearchConfig struct {
	BM25Weight     float64 `yaml:"bm25_weight" json:"bm25_weight"`
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	RRFConstant    int     `yaml:"rrf_constant" json:"rrf_constant"`
	KeywordBackend string  `yaml:"keyword_backend" json:"keyword_backend"` // "sqlite" or "bleve"
	MaxResults     int     `yaml:"max_results" json:"max_results"`
	RerankAlpha    float64 `yaml:"rerank_alpha" json:"rerank_alpha"` // blend weight for rerank_norm vs rrf
}

// EmbeddingsConfig configures the embedding HTTP client.
type EmbeddingsConfig struct {
	Host       string `yaml:"host" json:"host"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	TimeoutMS  int    `yaml:"timeout_ms" json:"timeout_ms"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
	MaxChars   int    `yaml:"max_chars" json:"max_chars"`
}

// RerankConfig configures the LLM-based reranker.
type RerankConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	GatewayURL  string `yaml:"gateway_url" json:"gateway_url"`
	Model       string `yaml:"model" json:"model"`
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
	TimeoutMS   int    `yaml:"timeout_ms" json:"timeout_ms"`
}

// ClassifierConfig configures the query classifier's person-token detection.
// The stopword table is data, not code, so domain-specific tuning (adding a
// project's own jargon or acronyms) never requires a rebuild.
type ClassifierConfig struct {
	Stopwords []string `yaml:"stopwords" json:"stopwords"`
}

// IndexingConfig configures chunking and the indexing orchestrator.
type IndexingConfig struct {
	ChunkSizeTokens    int    `yaml:"chunk_size_tokens" json:"chunk_size_tokens"`
	ChunkOverlapTokens int    `yaml:"chunk_overlap_tokens" json:"chunk_overlap_tokens"`
	Workers            int    `yaml:"workers" json:"workers"`
	YieldEveryMD       int    `yaml:"yield_every_md" json:"yield_every_md"`
	YieldEveryPDF      int    `yaml:"yield_every_pdf" json:"yield_every_pdf"`
	MTimeToleranceMS   int    `yaml:"mtime_tolerance_ms" json:"mtime_tolerance_ms"`
	LockPath           string `yaml:"lock_path" json:"lock_path"`
}

// ServerConfig configures the HTTP and MCP surfaces.
type ServerConfig struct {
	BindAddress  string `yaml:"bind_address" json:"bind_address"`
	BearerToken  string `yaml:"bearer_token" json:"bearer_token"`
	Transport    string `yaml:"transport" json:"transport"` // "stdio" or "http"
	MetricsPath  string `yaml:"metrics_path" json:"metrics_path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level         string `yaml:"level" json:"level"`
	FilePath      string `yaml:"file_path" json:"file_path"`
	MaxSizeMB     int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles      int    `yaml:"max_files" json:"max_files"`
	WriteToStderr bool   `yaml:"write_to_stderr" json:"write_to_stderr"`
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".vaultmind")

	return &Config{
		Version: 1,
		Vaults: VaultsConfig{
			WorkRoot:     filepath.Join(home, "vaults", "work"),
			PersonalRoot: filepath.Join(home, "vaults", "personal"),
			DataDir:      dataDir,
		},
		Search: SearchConfig{
			BM25Weight:     0.5,
			SemanticWeight: 0.5,
			RRFConstant:    60,
			KeywordBackend: "sqlite",
			MaxResults:     20,
			RerankAlpha:    0.5,
		},
		Embeddings: EmbeddingsConfig{
			Host:       "http://localhost:8081",
			Model:      "text-embedding",
			Dimensions: 0, // auto-detect from first response
			TimeoutMS:  30000,
			CacheSize:  2000,
			MaxChars:   8000,
		},
		Rerank: RerankConfig{
			Enabled:     true,
			GatewayURL:  "http://localhost:8082",
			Model:       "",
			Concurrency: 5,
			TimeoutMS:   60000,
		},
		Classifier: ClassifierConfig{
			Stopwords: defaultStopwords(),
		},
		Indexing: IndexingConfig{
			ChunkSizeTokens:    512,
			ChunkOverlapTokens: 64,
			Workers:            2,
			YieldEveryMD:       10,
			YieldEveryPDF:      5,
			MTimeToleranceMS:   1000,
			LockPath:           filepath.Join(dataDir, "index.lock"),
		},
		Server: ServerConfig{
			BindAddress: "127.0.0.1:8090",
			BearerToken: "",
			Transport:   "stdio",
			MetricsPath: "/metrics",
		},
		Logging: LoggingConfig{
			Level:         "info",
			FilePath:      filepath.Join(dataDir, "logs", "vaultmind.log"),
			MaxSizeMB:     10,
			MaxFiles:      5,
			WriteToStderr: true,
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file,
// honoring XDG_CONFIG_HOME when set.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vaultmind", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "vaultmind", "config.yaml")
	}
	return filepath.Join(home, ".config", "vaultmind", "config.yaml")
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if present. A
// missing file is not an error.
func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds the final Config for dir by layering, in increasing order of
// precedence: hardcoded defaults, the user config, the project config
// (.vaultmind.yaml in dir), and VAULTMIND_* environment overrides.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads .vaultmind.yaml or .vaultmind.yml from dir, if present.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".vaultmind.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".vaultmind.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Vaults.WorkRoot != "" {
		c.Vaults.WorkRoot = other.Vaults.WorkRoot
	}
	if other.Vaults.PersonalRoot != "" {
		c.Vaults.PersonalRoot = other.Vaults.PersonalRoot
	}
	if other.Vaults.DataDir != "" {
		c.Vaults.DataDir = other.Vaults.DataDir
	}

	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.KeywordBackend != "" {
		c.Search.KeywordBackend = other.Search.KeywordBackend
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.RerankAlpha != 0 {
		c.Search.RerankAlpha = other.Search.RerankAlpha
	}

	if other.Embeddings.Host != "" {
		c.Embeddings.Host = other.Embeddings.Host
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.TimeoutMS != 0 {
		c.Embeddings.TimeoutMS = other.Embeddings.TimeoutMS
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.MaxChars != 0 {
		c.Embeddings.MaxChars = other.Embeddings.MaxChars
	}

	if other.Rerank.GatewayURL != "" {
		c.Rerank.GatewayURL = other.Rerank.GatewayURL
	}
	if other.Rerank.Model != "" {
		c.Rerank.Model = other.Rerank.Model
	}
	if other.Rerank.Concurrency != 0 {
		c.Rerank.Concurrency = other.Rerank.Concurrency
	}
	if other.Rerank.TimeoutMS != 0 {
		c.Rerank.TimeoutMS = other.Rerank.TimeoutMS
	}

	if len(other.Classifier.Stopwords) > 0 {
		c.Classifier.Stopwords = other.Classifier.Stopwords
	}

	if other.Indexing.ChunkSizeTokens != 0 {
		c.Indexing.ChunkSizeTokens = other.Indexing.ChunkSizeTokens
	}
	if other.Indexing.ChunkOverlapTokens != 0 {
		c.Indexing.ChunkOverlapTokens = other.Indexing.ChunkOverlapTokens
	}
	if other.Indexing.Workers != 0 {
		c.Indexing.Workers = other.Indexing.Workers
	}
	if other.Indexing.YieldEveryMD != 0 {
		c.Indexing.YieldEveryMD = other.Indexing.YieldEveryMD
	}
	if other.Indexing.YieldEveryPDF != 0 {
		c.Indexing.YieldEveryPDF = other.Indexing.YieldEveryPDF
	}
	if other.Indexing.MTimeToleranceMS != 0 {
		c.Indexing.MTimeToleranceMS = other.Indexing.MTimeToleranceMS
	}
	if other.Indexing.LockPath != "" {
		c.Indexing.LockPath = other.Indexing.LockPath
	}

	if other.Server.BindAddress != "" {
		c.Server.BindAddress = other.Server.BindAddress
	}
	if other.Server.BearerToken != "" {
		c.Server.BearerToken = other.Server.BearerToken
	}
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.MetricsPath != "" {
		c.Server.MetricsPath = other.Server.MetricsPath
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies VAULTMIND_* environment variable overrides,
// the highest-precedence configuration layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VAULTMIND_BM25_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.BM25Weight = w
		}
	}
	if v := os.Getenv("VAULTMIND_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("VAULTMIND_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("VAULTMIND_EMBEDDINGS_HOST"); v != "" {
		c.Embeddings.Host = v
	}
	if v := os.Getenv("VAULTMIND_RERANK_GATEWAY_URL"); v != "" {
		c.Rerank.GatewayURL = v
	}
	if v := os.Getenv("VAULTMIND_RERANK_ENABLED"); v != "" {
		c.Rerank.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("VAULTMIND_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VAULTMIND_BIND_ADDRESS"); v != "" {
		c.Server.BindAddress = v
	}
	if v := os.Getenv("VAULTMIND_BEARER_TOKEN"); v != "" {
		c.Server.BearerToken = v
	}
	if v := os.Getenv("VAULTMIND_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("VAULTMIND_DATA_DIR"); v != "" {
		c.Vaults.DataDir = v
	}
}

// defaultStopwords lists capitalized tokens that would otherwise look like
// person-name candidates to the query classifier: common sentence-initial
// English words, month and weekday names, and frequent tech acronyms/
// meeting vocabulary.
func defaultStopwords() []string {
	return []string{
		"The", "This", "That", "These", "Those", "What", "Where", "When", "Why",
		"How", "Who", "Which", "Can", "Could", "Would", "Should", "Will", "Do",
		"Does", "Did", "Is", "Are", "Was", "Were", "I", "Find", "Show", "List",
		"Search", "Notes", "Note", "Meeting", "Meetings", "Today", "Yesterday",
		"Tomorrow", "Week", "Month", "Year", "Last", "Next", "About", "For",
		"January", "February", "March", "April", "May", "June", "July",
		"August", "September", "October", "November", "December",
		"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
		"Prep", "Sync", "Catchup", "Standup", "Recap", "Agenda", "Summary",
	}
}

func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// FindProjectRoot walks up from startDir looking for a .vaultmind.yaml,
// .vaultmind.yml, or .git directory, falling back to startDir if none is
// found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}

	dir := absDir
	for {
		if dirExists(filepath.Join(dir, ".git")) {
			return dir, nil
		}
		if fileExists(filepath.Join(dir, ".vaultmind.yaml")) || fileExists(filepath.Join(dir, ".vaultmind.yml")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return absDir, nil
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Validate checks invariants the search and server stages depend on.
func (c *Config) Validate() error {
	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return fmt.Errorf("bm25_weight must be between 0 and 1, got %f", c.Search.BM25Weight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	if sum := c.Search.BM25Weight + c.Search.SemanticWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("bm25_weight + semantic_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Indexing.ChunkSizeTokens <= 0 {
		return fmt.Errorf("chunk_size_tokens must be positive, got %d", c.Indexing.ChunkSizeTokens)
	}
	if c.Indexing.ChunkOverlapTokens < 0 || c.Indexing.ChunkOverlapTokens >= c.Indexing.ChunkSizeTokens {
		return fmt.Errorf("chunk_overlap_tokens must be non-negative and less than chunk_size_tokens, got %d", c.Indexing.ChunkOverlapTokens)
	}

	validBackends := map[string]bool{"sqlite": true, "bleve": true}
	if !validBackends[strings.ToLower(c.Search.KeywordBackend)] {
		return fmt.Errorf("keyword_backend must be 'sqlite' or 'bleve', got %s", c.Search.KeywordBackend)
	}

	validTransports := map[string]bool{"stdio": true, "http": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'http', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	if c.Indexing.Workers <= 0 {
		c.Indexing.Workers = runtime.NumCPU()
	}

	return nil
}

// WriteYAML writes c to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user/global configuration file, if present.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
