package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	domdedup "github.com/kailas-cloud/neardup/internal/domain/dedup"
)

// Config holds the neardup configuration shared by the batch job and the API server.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Auth      AuthConfig      `yaml:"auth"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Job       JobConfig       `yaml:"job"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxBodyBytes    int64 `yaml:"max_body_bytes"`
}

// DatabaseConfig holds Redis/Valkey connection settings. An empty Addrs list
// disables the embedding cache and budget persistence.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether a database is configured.
func (d DatabaseConfig) Enabled() bool { return len(d.Addrs) > 0 }

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	Disabled bool `yaml:"disabled"`
	TTLHours int  `yaml:"ttl_hours"` // 0 = keep forever
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	// Vectorizer selects an entry of Vectorizers. May be empty when there is exactly one.
	Vectorizer  string                      `yaml:"vectorizer"`
	Providers   map[string]ProviderConfig   `yaml:"providers"`
	Vectorizers map[string]VectorizerConfig `yaml:"vectorizers"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit      int64   `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit    int64   `yaml:"monthly_token_limit"` // 0 = unlimited
	CostPerMillionTokens float64 `yaml:"cost_per_million_tokens"`
	Action               string  `yaml:"action"` // "reject" | "warn" (default)
}

// Limited reports whether any token limit is set.
func (b BudgetConfig) Limited() bool { return b.DailyTokenLimit > 0 || b.MonthlyTokenLimit > 0 }

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	APIKey     string       `yaml:"api_key"`
	BaseURL    string       `yaml:"base_url"`
	TimeoutSec int          `yaml:"timeout_sec"`
	Budget     BudgetConfig `yaml:"budget"`
}

// VectorizerConfig holds vectorizer settings.
type VectorizerConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"` // texts per provider call, 0 = provider default
	// Instruction is prepended to every text before embedding (e5/bge style models).
	Instruction string `yaml:"instruction"`
}

// DedupConfig holds the fusion parameters and engine tuning.
type DedupConfig struct {
	Weights    *domdedup.Weights `yaml:"weights"`   // nil = reference weights
	Threshold  *float64          `yaml:"threshold"` // nil = reference threshold
	Fallback   string            `yaml:"fallback"`  // fail (default) | renormalize
	Workers    int               `yaml:"workers"`   // 0 = GOMAXPROCS
	BlockRows  int               `yaml:"block_rows"`
	MaxRecords int               `yaml:"max_records"` // 0 = unlimited
}

// Params returns the run parameters with defaults applied.
func (d DedupConfig) Params() domdedup.Params {
	p := domdedup.DefaultParams()
	if d.Weights != nil {
		p.Weights = *d.Weights
	}
	if d.Threshold != nil {
		p.Threshold = *d.Threshold
	}
	if d.Fallback != "" {
		p.Fallback = domdedup.Fallback(d.Fallback)
	}
	return p
}

// JobConfig holds batch job defaults. Command-line flags override them.
type JobConfig struct {
	Input      string `yaml:"input"`
	Output     string `yaml:"output"`
	TextColumn string `yaml:"text_column"`
	HasHeader  bool   `yaml:"has_header"`
	Delimiter  string `yaml:"delimiter"`
	Report     string `yaml:"report"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from the given YAML file.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} and ${VAR:-default}
// from the environment, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 32 << 20
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Dedup.BlockRows <= 0 {
		c.Dedup.BlockRows = 256
	}
	for name, p := range c.Embedding.Providers {
		if p.TimeoutSec <= 0 {
			p.TimeoutSec = 60
		}
		c.Embedding.Providers[name] = p
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	for name, p := range c.Embedding.Providers {
		switch p.Budget.Action {
		case "", "warn", "reject":
			// ok
		default:
			return fmt.Errorf(
				"embedding.providers.%s.budget.action must be \"warn\" or \"reject\", got %q",
				name, p.Budget.Action,
			)
		}
	}
	for name, v := range c.Embedding.Vectorizers {
		if _, ok := c.Embedding.Providers[v.Provider]; !ok {
			return fmt.Errorf("embedding.vectorizers.%s.provider %q is not a configured provider", name, v.Provider)
		}
		if v.Model == "" {
			return fmt.Errorf("embedding.vectorizers.%s.model is required", name)
		}
	}
	if c.Embedding.Vectorizer != "" {
		if _, ok := c.Embedding.Vectorizers[c.Embedding.Vectorizer]; !ok {
			return fmt.Errorf("embedding.vectorizer %q is not a configured vectorizer", c.Embedding.Vectorizer)
		}
	} else if len(c.Embedding.Vectorizers) > 1 {
		return fmt.Errorf("embedding.vectorizer is required when more than one vectorizer is configured")
	}
	if err := c.Dedup.Params().Validate(); err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if c.Dedup.Workers < 0 || c.Dedup.MaxRecords < 0 {
		return fmt.Errorf("dedup.workers and dedup.max_records must not be negative")
	}
	if d := c.Job.Delimiter; d != "" && len([]rune(d)) != 1 {
		return fmt.Errorf("job.delimiter must be a single character, got %q", d)
	}
	return nil
}

// ActiveVectorizer returns the selected vectorizer and its provider.
// ok is false when no vectorizer is configured.
func (c *Config) ActiveVectorizer() (
	name string, vec VectorizerConfig, provider ProviderConfig, ok bool,
) {
	name = c.Embedding.Vectorizer
	if name == "" {
		names := make([]string, 0, len(c.Embedding.Vectorizers))
		for n := range c.Embedding.Vectorizers {
			names = append(names, n)
		}
		if len(names) == 0 {
			return "", VectorizerConfig{}, ProviderConfig{}, false
		}
		sort.Strings(names)
		name = names[0]
	}
	vec, ok = c.Embedding.Vectorizers[name]
	if !ok {
		return "", VectorizerConfig{}, ProviderConfig{}, false
	}
	return name, vec, c.Embedding.Providers[vec.Provider], true
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
