package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"blinkworks/internal/domain"
)

// Config models blinkworks.yml.
type Config struct {
	Platform struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"platform"`
	Tasks struct {
		Types      []string `yaml:"types"`
		Priorities []string `yaml:"priorities"`
	} `yaml:"tasks"`
	Workload  Workload        `yaml:"workload"`
	Engine    EngineConfig    `yaml:"engine"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Webhooks  []WebhookConfig `yaml:"webhooks"`
}

// Workload holds the thresholds used by the overview aggregator.
type Workload struct {
	Designer struct {
		Moderate   int `yaml:"moderate"`
		High       int `yaml:"high"`
		Overloaded int `yaml:"overloaded"`
	} `yaml:"designer"`
	Client struct {
		Medium int `yaml:"medium"`
		High   int `yaml:"high"`
	} `yaml:"client"`
}

type EngineConfig struct {
	// MaxAttempts bounds retries of a transition after a version conflict.
	MaxAttempts int `yaml:"max_attempts"`
}

type StorageConfig struct {
	Driver   string `yaml:"driver"`
	MaxBytes int64  `yaml:"max_bytes"`
	Local    struct {
		Root    string `yaml:"root"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"local"`
	S3 struct {
		Bucket    string `yaml:"bucket"`
		Region    string `yaml:"region"`
		Endpoint  string `yaml:"endpoint"`
		PublicURL string `yaml:"public_url"`
	} `yaml:"s3"`
}

// RedisConfig is shared by the rate limiter and the job queue. An empty Addr disables both.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with bw init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := Load(workspace)
	if err != nil {
		if _, statErr := os.Stat(Path(workspace)); os.IsNotExist(statErr) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Platform.ID == "" {
		return fmt.Errorf("config.platform.id is required")
	}
	if c.Platform.Kind != "creative-marketplace" {
		return fmt.Errorf("config.platform.kind must be 'creative-marketplace'")
	}
	if len(c.Tasks.Types) == 0 {
		return fmt.Errorf("config.tasks.types is required")
	}
	known := make(map[domain.TaskType]bool, len(domain.TaskTypes))
	for _, t := range domain.TaskTypes {
		known[t] = true
	}
	for _, t := range c.Tasks.Types {
		if !known[domain.TaskType(t)] {
			return fmt.Errorf("config.tasks.types contains unknown type %s", t)
		}
	}
	for _, p := range c.Tasks.Priorities {
		switch domain.Priority(p) {
		case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh, domain.PriorityUrgent:
		default:
			return fmt.Errorf("config.tasks.priorities contains unknown priority %s", p)
		}
	}
	d := c.Workload.Designer
	if d.Moderate < 1 || d.High <= d.Moderate || d.Overloaded <= d.High {
		return fmt.Errorf("config.workload.designer thresholds must satisfy 1 <= moderate < high < overloaded")
	}
	cl := c.Workload.Client
	if cl.Medium < 1 || cl.High <= cl.Medium {
		return fmt.Errorf("config.workload.client thresholds must satisfy 1 <= medium < high")
	}
	if c.Engine.MaxAttempts < 1 {
		return fmt.Errorf("config.engine.max_attempts must be at least 1")
	}
	switch c.Storage.Driver {
	case "local":
		if c.Storage.Local.Root == "" {
			return fmt.Errorf("config.storage.local.root is required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("config.storage.s3.bucket is required")
		}
	default:
		return fmt.Errorf("config.storage.driver must be 'local' or 's3'")
	}
	if c.Storage.MaxBytes <= 0 {
		return fmt.Errorf("config.storage.max_bytes must be positive")
	}
	if c.RateLimit.Requests < 0 || (c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0) {
		return fmt.Errorf("config.rate_limit needs a positive window when requests is set")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "blinkworks.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(platformID string) string {
	return fmt.Sprintf(defaultTemplate, platformID)
}

// Default returns the default Config struct.
func Default() *Config {
	cfg, err := FromYAML([]byte(GenerateDefault("blinkworks")))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.Redis.Password = os.Getenv("BLINKWORKS_REDIS_PASSWORD")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `platform:
  id: %s
  kind: creative-marketplace

tasks:
  types: [static_design, video, animation, illustration, branding, web_design, other]
  priorities: [low, medium, high, urgent]

workload:
  designer:
    moderate: 1
    high: 3
    overloaded: 5
  client:
    medium: 1
    high: 3

engine:
  max_attempts: 3

storage:
  driver: local
  max_bytes: 52428800
  local:
    root: .blinkworks/files
    base_url: /files

redis:
  addr: ""

rate_limit:
  requests: 120
  window: 1m
`
