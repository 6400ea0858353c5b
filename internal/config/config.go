// Package config provides configuration management for crossdoc.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/goccy/go-json"
)

const (
	// DefaultWorkerPort is the default HTTP port for the worker service.
	DefaultWorkerPort = 38111

	// DefaultMaxChunksPerDoc caps chunks fed to per-document summarization.
	DefaultMaxChunksPerDoc = 5
)

// Clustering defaults. Tuning constants, not business requirements; all are
// overridable through settings or environment.
const (
	DefaultSimilarityThreshold = 0.45
	DefaultWeakSignalThreshold = 0.30
	DefaultLabelDominance      = 0.5
	DefaultMinClusterSize      = 2
	DefaultEvidenceSnippetLen  = 150
)

// Config holds the application configuration.
type Config struct {
	// Worker settings
	WorkerPort int `json:"worker_port"`

	// Run history database
	DBPath string `json:"db_path"`

	// Summarizer collaborator
	SummarizerBaseURL string `json:"summarizer_base_url"`
	SummarizerAPIKey  string `json:"summarizer_api_key"`

	// Embedding collaborator
	EmbeddingModel      string `json:"embedding_model"` // registry version, e.g. "openai"
	EmbeddingBaseURL    string `json:"embedding_base_url"`
	EmbeddingAPIKey     string `json:"embedding_api_key"`
	EmbeddingModelName  string `json:"embedding_model_name"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`

	// LLM synthesis collaborator (optional)
	LLMEnabled bool   `json:"llm_enabled"`
	LLMBaseURL string `json:"llm_base_url"`
	LLMAPIKey  string `json:"llm_api_key"`
	LLMModel   string `json:"llm_model"`

	// Clustering thresholds
	SimilarityThreshold float64 `json:"similarity_threshold"`
	WeakSignalThreshold float64 `json:"weak_signal_threshold"`
	LabelDominance      float64 `json:"label_dominance"`
	MinClusterSize      int     `json:"min_cluster_size"`
	EvidenceSnippetLen  int     `json:"evidence_snippet_len"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// DataDir returns the data directory path (~/.crossdoc).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".crossdoc")
}

// DBPath returns the run history database file path.
func DBPath() string {
	return filepath.Join(DataDir(), "crossdoc.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		WorkerPort:          DefaultWorkerPort,
		DBPath:              DBPath(),
		EmbeddingModel:      "openai",
		LLMModel:            "gpt-4o-mini",
		SimilarityThreshold: DefaultSimilarityThreshold,
		WeakSignalThreshold: DefaultWeakSignalThreshold,
		LabelDominance:      DefaultLabelDominance,
		MinClusterSize:      DefaultMinClusterSize,
		EvidenceSnippetLen:  DefaultEvidenceSnippetLen,
	}
}

// Load loads configuration from the settings file and environment, merging
// with defaults. Environment variables win over the settings file.
func Load() (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(SettingsPath()); err == nil {
		var settings map[string]interface{}
		if err := json.Unmarshal(data, &settings); err == nil {
			applySettings(cfg, settings)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

func applySettings(cfg *Config, settings map[string]interface{}) {
	if v, ok := settings["CROSSDOC_WORKER_PORT"].(float64); ok && v > 0 {
		cfg.WorkerPort = int(v)
	}
	if v, ok := settings["CROSSDOC_DB_PATH"].(string); ok && v != "" {
		cfg.DBPath = v
	}
	if v, ok := settings["CROSSDOC_SUMMARIZER_BASE_URL"].(string); ok {
		cfg.SummarizerBaseURL = v
	}
	if v, ok := settings["CROSSDOC_SUMMARIZER_API_KEY"].(string); ok {
		cfg.SummarizerAPIKey = v
	}
	if v, ok := settings["CROSSDOC_EMBEDDING_MODEL"].(string); ok && v != "" {
		cfg.EmbeddingModel = v
	}
	if v, ok := settings["CROSSDOC_EMBEDDING_BASE_URL"].(string); ok {
		cfg.EmbeddingBaseURL = v
	}
	if v, ok := settings["CROSSDOC_EMBEDDING_API_KEY"].(string); ok {
		cfg.EmbeddingAPIKey = v
	}
	if v, ok := settings["CROSSDOC_EMBEDDING_MODEL_NAME"].(string); ok {
		cfg.EmbeddingModelName = v
	}
	if v, ok := settings["CROSSDOC_EMBEDDING_DIMENSIONS"].(float64); ok && v > 0 {
		cfg.EmbeddingDimensions = int(v)
	}
	if v, ok := settings["CROSSDOC_LLM_ENABLED"].(bool); ok {
		cfg.LLMEnabled = v
	}
	if v, ok := settings["CROSSDOC_LLM_BASE_URL"].(string); ok {
		cfg.LLMBaseURL = v
	}
	if v, ok := settings["CROSSDOC_LLM_API_KEY"].(string); ok {
		cfg.LLMAPIKey = v
	}
	if v, ok := settings["CROSSDOC_LLM_MODEL"].(string); ok && v != "" {
		cfg.LLMModel = v
	}
	if v, ok := settings["CROSSDOC_SIMILARITY_THRESHOLD"].(float64); ok && v > 0 && v <= 1 {
		cfg.SimilarityThreshold = v
	}
	if v, ok := settings["CROSSDOC_WEAK_SIGNAL_THRESHOLD"].(float64); ok && v >= 0 && v <= 1 {
		cfg.WeakSignalThreshold = v
	}
	if v, ok := settings["CROSSDOC_LABEL_DOMINANCE"].(float64); ok && v > 0 && v <= 1 {
		cfg.LabelDominance = v
	}
	if v, ok := settings["CROSSDOC_MIN_CLUSTER_SIZE"].(float64); ok && v >= 2 {
		cfg.MinClusterSize = int(v)
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CROSSDOC_WORKER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.WorkerPort = p
		}
	}
	if v := os.Getenv("CROSSDOC_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CROSSDOC_SUMMARIZER_BASE_URL"); v != "" {
		cfg.SummarizerBaseURL = v
	}
	if v := os.Getenv("CROSSDOC_SUMMARIZER_API_KEY"); v != "" {
		cfg.SummarizerAPIKey = v
	}
	if v := os.Getenv("CROSSDOC_EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("CROSSDOC_EMBEDDING_BASE_URL"); v != "" {
		cfg.EmbeddingBaseURL = v
	}
	if v := os.Getenv("CROSSDOC_EMBEDDING_API_KEY"); v != "" {
		cfg.EmbeddingAPIKey = v
	}
	if v := os.Getenv("CROSSDOC_EMBEDDING_MODEL_NAME"); v != "" {
		cfg.EmbeddingModelName = v
	}
	if v := os.Getenv("CROSSDOC_EMBEDDING_DIMENSIONS"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			cfg.EmbeddingDimensions = d
		}
	}
	if v := os.Getenv("CROSSDOC_LLM_ENABLED"); v != "" {
		cfg.LLMEnabled = v == "1" || v == "true"
	}
	if v := os.Getenv("CROSSDOC_LLM_BASE_URL"); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := os.Getenv("CROSSDOC_LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv("CROSSDOC_LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("CROSSDOC_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("CROSSDOC_WEAK_SIGNAL_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.WeakSignalThreshold = f
		}
	}
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		var err error
		globalConfig, err = Load()
		if err != nil {
			globalConfig = Default()
		}
	})

	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
