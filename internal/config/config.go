package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete weft configuration (v1 schema)
type Config struct {
	Version  int    `json:"version" mapstructure:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repoRoot"`

	Ingest     IngestConfig     `json:"ingest" mapstructure:"ingest"`
	Tracing    TracingConfig    `json:"tracing" mapstructure:"tracing"`
	Annotation AnnotationConfig `json:"annotation" mapstructure:"annotation"`
	Classifier ClassifierConfig `json:"classifier" mapstructure:"classifier"`
	Export     ExportConfig     `json:"export" mapstructure:"export"`
}

// IngestConfig controls how raw facts enter the store.
type IngestConfig struct {
	// ScipIndexPath is the default SCIP index location, relative to the repo root.
	ScipIndexPath string `json:"scipIndexPath" mapstructure:"scipIndexPath"`
	// ModulePrefix is prepended to derived module paths (e.g. "project").
	ModulePrefix string `json:"modulePrefix" mapstructure:"modulePrefix"`
	// Ignore lists path fragments excluded from module derivation.
	Ignore []string `json:"ignore" mapstructure:"ignore"`
}

// TracingConfig controls flow tracing and synthesis.
type TracingConfig struct {
	// MaxDepth bounds both the tracer walk and flow hierarchy depth.
	MaxDepth int `json:"maxDepth" mapstructure:"maxDepth"`
	// MaxSteps caps the steps emitted per trace.
	MaxSteps int `json:"maxSteps" mapstructure:"maxSteps"`
}

// AnnotationConfig controls the annotation scheduling loop.
type AnnotationConfig struct {
	Aspects       []string `json:"aspects" mapstructure:"aspects"`
	BatchSize     int      `json:"batchSize" mapstructure:"batchSize"`
	MaxIterations int      `json:"maxIterations" mapstructure:"maxIterations"`
	MaxAttempts   int      `json:"maxAttempts" mapstructure:"maxAttempts"`
	Concurrency   int      `json:"concurrency" mapstructure:"concurrency"`
}

// ClassifierConfig selects and tunes the external classifier.
type ClassifierConfig struct {
	// Provider is one of "gemini", "openai", or "fake".
	Provider string `json:"provider" mapstructure:"provider"`
	Model    string `json:"model" mapstructure:"model"`
	// AspectsFile optionally overrides prompt templates (ASPECTS.toml).
	AspectsFile string `json:"aspectsFile" mapstructure:"aspectsFile"`
	// RetryAttempts and RetryBaseMs tune the transport retry middleware.
	RetryAttempts int `json:"retryAttempts" mapstructure:"retryAttempts"`
	RetryBaseMs   int `json:"retryBaseMs" mapstructure:"retryBaseMs"`
}

// ExportConfig controls snapshot exports.
type ExportConfig struct {
	// Dir is the snapshot output directory, relative to the repo root.
	Dir string `json:"dir" mapstructure:"dir"`
	// CompressionLevel maps to zstd levels: 1 fastest, 3 default, 4 better.
	CompressionLevel int `json:"compressionLevel" mapstructure:"compressionLevel"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		RepoRoot: ".",
		Ingest: IngestConfig{
			ScipIndexPath: "index.scip",
			ModulePrefix:  "",
			Ignore:        []string{"node_modules", "vendor", "build", "dist"},
		},
		Tracing: TracingConfig{
			MaxDepth: 5,
			MaxSteps: 64,
		},
		Annotation: AnnotationConfig{
			Aspects:       []string{"purpose", "domain", "role"},
			BatchSize:     40,
			MaxIterations: 10,
			MaxAttempts:   3,
			Concurrency:   4,
		},
		Classifier: ClassifierConfig{
			Provider:      "gemini",
			Model:         "gemini-2.0-flash",
			AspectsFile:   "",
			RetryAttempts: 3,
			RetryBaseMs:   300,
		},
		Export: ExportConfig{
			Dir:              ".weft/exports",
			CompressionLevel: 3,
		},
	}
}

// LoadConfig loads configuration from .weft/config.json.
// Environment variables prefixed WEFT_ override file values
// (e.g. WEFT_CLASSIFIER_PROVIDER=fake).
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)
	v.SetDefault("repoRoot", ".")

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(repoRoot, ".weft"))

	v.SetEnvPrefix("WEFT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// If config doesn't exist, return default config
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to .weft/config.json
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, ".weft")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Tracing.MaxDepth <= 0 {
		return &ConfigError{Field: "tracing.maxDepth", Message: "must be positive"}
	}
	if c.Annotation.BatchSize <= 0 {
		return &ConfigError{Field: "annotation.batchSize", Message: "must be positive"}
	}
	switch c.Classifier.Provider {
	case "gemini", "openai", "fake":
	default:
		return &ConfigError{Field: "classifier.provider", Message: "unknown provider"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
