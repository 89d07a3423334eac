package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServerAddress   = ":8090"
	DefaultDatabase        = "sqlite3"
	DefaultForgetThreshold = 20
	DefaultModelTimeout    = 30
	DefaultTurnTimeout     = 120
	DefaultConcurrency     = 4
	DefaultQueueSize       = 16
	DefaultWorkerIdle      = 300
	DefaultRedisTTL        = 1800
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config" envPrefix:"STORYCHAT_"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis       RedisConfig               `json:"redis" yaml:"redis" envPrefix:"STORYCHAT_REDIS_"`
	Providers   map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Game        GameConfig                `json:"game" yaml:"game" envPrefix:"STORYCHAT_"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address" yaml:"server_address" env:"ADDR"`
	Database      string `json:"database" yaml:"database" env:"DB"`
	Debug         bool   `json:"debug" yaml:"debug" env:"DEBUG"`
	SeedDemo      bool   `json:"seed_demo" yaml:"seed_demo" env:"SEED_DEMO"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"dbname" yaml:"dbname"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Host       string `json:"host" yaml:"host" env:"HOST"`
	Port       int    `json:"port" yaml:"port" env:"PORT"`
	Username   string `json:"username" yaml:"username" env:"USERNAME"`
	Password   string `json:"password" yaml:"password" env:"PASSWORD"`
	DB         int    `json:"db" yaml:"db" env:"DB"`
	TTLSeconds int    `json:"ttl_seconds" yaml:"ttl_seconds" env:"TTL_SECONDS"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

// GameConfig tunes the turn pipeline.
type GameConfig struct {
	Provider          string `json:"provider" yaml:"provider" env:"PROVIDER"`
	Model             string `json:"model" yaml:"model" env:"MODEL"`
	APIKey            string `json:"-" yaml:"-" env:"API_KEY"`
	ForgetThreshold   int    `json:"forget_threshold" yaml:"forget_threshold" env:"FORGET_THRESHOLD"`
	ModelTimeout      int    `json:"model_timeout_seconds" yaml:"model_timeout_seconds" env:"MODEL_TIMEOUT_SECONDS"`
	MemoryConcurrency int    `json:"memory_concurrency" yaml:"memory_concurrency" env:"MEMORY_CONCURRENCY"`
	TurnTimeout       int    `json:"turn_timeout_seconds" yaml:"turn_timeout_seconds" env:"TURN_TIMEOUT_SECONDS"`
	QueueSize         int    `json:"queue_size" yaml:"queue_size" env:"QUEUE_SIZE"`
	WorkerIdle        int    `json:"worker_idle_seconds" yaml:"worker_idle_seconds" env:"WORKER_IDLE_SECONDS"`
}

// Load reads configuration from the provided path (defaults to config.json),
// then applies STORYCHAT_* environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg, err := Parse(data, filepath.Ext(absPath))
	if err != nil {
		return nil, err
	}

	// relative sqlite paths are resolved next to the config file
	for name, db := range cfg.Databases {
		if isSQLite(name) && db.DSN != "" && db.DSN != ":memory:" && !strings.HasPrefix(db.DSN, "file:") && !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}
	return cfg, nil
}

// Parse decodes raw config bytes. ext selects the format: ".yaml"/".yml" for
// YAML, anything else for JSON.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = DefaultServerAddress
	}
	if c.BasicConfig.Database == "" {
		c.BasicConfig.Database = DefaultDatabase
	}
	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	if c.Redis.TTLSeconds == 0 {
		c.Redis.TTLSeconds = DefaultRedisTTL
	}

	g := &c.Game
	if g.ForgetThreshold == 0 {
		g.ForgetThreshold = DefaultForgetThreshold
	}
	if g.ModelTimeout == 0 {
		g.ModelTimeout = DefaultModelTimeout
	}
	if g.TurnTimeout == 0 {
		g.TurnTimeout = DefaultTurnTimeout
	}
	if g.MemoryConcurrency == 0 {
		g.MemoryConcurrency = DefaultConcurrency
	}
	if g.QueueSize == 0 {
		g.QueueSize = DefaultQueueSize
	}
	if g.WorkerIdle == 0 {
		g.WorkerIdle = DefaultWorkerIdle
	}
	// an env-provided key or model fills in the selected provider entry
	if g.Provider != "" && (g.APIKey != "" || g.Model != "") {
		p := c.Providers[g.Provider]
		if g.APIKey != "" {
			p.APIKey = g.APIKey
		}
		if g.Model != "" && p.Model == "" {
			p.Model = g.Model
		}
		c.Providers[g.Provider] = p
	}
}

// Validate checks that the selected database and provider are configured and
// the numeric game settings are usable.
func (c *Config) Validate() error {
	if _, ok := c.Databases[c.BasicConfig.Database]; !ok {
		return fmt.Errorf("database config for %s not found", c.BasicConfig.Database)
	}
	if c.Game.Provider != "" {
		if _, ok := c.Providers[c.Game.Provider]; !ok {
			return fmt.Errorf("provider %s not configured", c.Game.Provider)
		}
	}
	g := c.Game
	switch {
	case g.ForgetThreshold < 2:
		return fmt.Errorf("forget_threshold must be at least 2, got %d", g.ForgetThreshold)
	case g.ModelTimeout < 0, g.TurnTimeout < 0, g.WorkerIdle < 0:
		return fmt.Errorf("timeouts must not be negative")
	case g.MemoryConcurrency < 1:
		return fmt.Errorf("memory_concurrency must be positive")
	case g.QueueSize < 1:
		return fmt.Errorf("queue_size must be positive")
	}
	return nil
}

func isSQLite(name string) bool {
	name = strings.ToLower(name)
	return name == "sqlite" || name == "sqlite3"
}
