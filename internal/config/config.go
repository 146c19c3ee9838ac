package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all zonegate configuration.
type Config struct {
	Name string `yaml:"name"`

	// Language model profiles
	LLM LLMConfig `yaml:"llm"`

	// Dialogue engine
	Dialogue DialogueConfig `yaml:"dialogue"`

	// Session store
	Session SessionConfig `yaml:"session"`

	// Vehicle, zone and policy data
	Catalog CatalogConfig `yaml:"catalog"`

	// HTTP transport
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DialogueConfig configures the turn router.
type DialogueConfig struct {
	// Hard ceiling on stage transitions per turn.
	MaxStageTransitions int `yaml:"max_stage_transitions"`
	// Language used when detection fails, ISO 639-1.
	DefaultLanguage string `yaml:"default_language"`
	// How a new car reference is compared with the carried-over car: normalized|substring.
	CarMentionPolicy string `yaml:"car_mention_policy"`
	// How references are matched against candidates: normalized|substring.
	ResolverMatchPolicy string `yaml:"resolver_match_policy"`
}

// SessionConfig configures the in-memory session store.
type SessionConfig struct {
	TTL           string `yaml:"ttl"`
	SweepInterval string `yaml:"sweep_interval"`
}

// CatalogConfig configures the collaborator data sources.
type CatalogConfig struct {
	Driver         string `yaml:"driver"` // memory, sqlite
	DatasetPath    string `yaml:"dataset_path"`
	SQLitePath     string `yaml:"sqlite_path"`
	Watch          bool   `yaml:"watch"`
	PolicyCacheTTL string `yaml:"policy_cache_ttl"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Listen       string `yaml:"listen"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
	TraceHistory int    `yaml:"trace_history"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "zonegate",

		LLM: LLMConfig{
			Primary: LLMProfile{
				Provider: ProviderOpenAI,
				Model:    "gpt-4o-mini",
				BaseURL:  "https://api.openai.com/v1",
				Timeout:  "30s",
			},
			Fallback: LLMProfile{
				Provider: ProviderOpenAI,
				Model:    "gpt-4o",
				BaseURL:  "https://api.openai.com/v1",
				Timeout:  "60s",
			},
		},

		Dialogue: DialogueConfig{
			MaxStageTransitions: 50,
			DefaultLanguage:     "en",
			CarMentionPolicy:    "normalized",
			ResolverMatchPolicy: "substring",
		},

		Session: SessionConfig{
			TTL:           "24h",
			SweepInterval: "10m",
		},

		Catalog: CatalogConfig{
			Driver:         "memory",
			SQLitePath:     "data/zonegate.db",
			PolicyCacheTTL: "5m",
		},

		Server: ServerConfig{
			Listen:       ":8000",
			ReadTimeout:  "15s",
			WriteTimeout: "120s",
			TraceHistory: 1000,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Keys only fill profiles of the matching provider.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.setKeyFor(ProviderOpenAI, key)
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.setKeyFor(ProviderGemini, key)
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		if c.LLM.Primary.Provider == ProviderOpenAI {
			c.LLM.Primary.BaseURL = url
		}
		if c.LLM.Fallback.Provider == ProviderOpenAI {
			c.LLM.Fallback.BaseURL = url
		}
	}

	if addr := os.Getenv("ZONEGATE_LISTEN"); addr != "" {
		c.Server.Listen = addr
	}
	if path := os.Getenv("ZONEGATE_DATASET"); path != "" {
		c.Catalog.DatasetPath = path
	}
	if path := os.Getenv("ZONEGATE_DB"); path != "" {
		c.Catalog.Driver = "sqlite"
		c.Catalog.SQLitePath = path
	}
	if level := os.Getenv("ZONEGATE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// GetSessionTTL returns the session TTL as a duration.
func (c *Config) GetSessionTTL() time.Duration {
	return parseDuration(c.Session.TTL, 24*time.Hour)
}

// GetSweepInterval returns how often expired sessions are evicted.
func (c *Config) GetSweepInterval() time.Duration {
	return parseDuration(c.Session.SweepInterval, 10*time.Minute)
}

// GetPolicyCacheTTL returns how long fetched policies are cached.
func (c *Config) GetPolicyCacheTTL() time.Duration {
	return parseDuration(c.Catalog.PolicyCacheTTL, 5*time.Minute)
}

// GetReadTimeout returns the HTTP read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 15*time.Second)
}

// GetWriteTimeout returns the HTTP write timeout. It must cover a full turn,
// which may include up to four model calls per gateway operation.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 120*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ValidMatchPolicies lists the accepted mention and resolver policies.
var ValidMatchPolicies = []string{"normalized", "substring"}

// ValidCatalogDrivers lists the supported catalog backends.
var ValidCatalogDrivers = []string{"memory", "sqlite"}

// Validate validates the configuration. It does not require API keys so
// that offline commands (check, validate) work without credentials; use
// ValidateLLM before building a gateway.
func (c *Config) Validate() error {
	if c.Dialogue.MaxStageTransitions <= 0 {
		return fmt.Errorf("dialogue.max_stage_transitions must be positive, got %d", c.Dialogue.MaxStageTransitions)
	}
	if len(c.Dialogue.DefaultLanguage) != 2 {
		return fmt.Errorf("dialogue.default_language must be an ISO 639-1 code, got %q", c.Dialogue.DefaultLanguage)
	}
	if !contains(ValidMatchPolicies, c.Dialogue.CarMentionPolicy) {
		return fmt.Errorf("invalid dialogue.car_mention_policy: %s (valid: %v)", c.Dialogue.CarMentionPolicy, ValidMatchPolicies)
	}
	if !contains(ValidMatchPolicies, c.Dialogue.ResolverMatchPolicy) {
		return fmt.Errorf("invalid dialogue.resolver_match_policy: %s (valid: %v)", c.Dialogue.ResolverMatchPolicy, ValidMatchPolicies)
	}
	if !contains(ValidCatalogDrivers, c.Catalog.Driver) {
		return fmt.Errorf("invalid catalog.driver: %s (valid: %v)", c.Catalog.Driver, ValidCatalogDrivers)
	}
	if c.Catalog.Driver == "sqlite" && c.Catalog.SQLitePath == "" {
		return fmt.Errorf("catalog.sqlite_path is required for the sqlite driver")
	}
	if c.Server.TraceHistory < 0 {
		return fmt.Errorf("server.trace_history must not be negative")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
