// Package config loads service settings from an optional .env file, an
// optional YAML file and the environment, in that order of precedence
// (environment wins).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/providers"
	"gopkg.in/yaml.v3"
)

const (
	DispatcherTemporal = "temporal"
	DispatcherLocal    = "local"
)

type Config struct {
	LogLevel string `yaml:"log_level"`

	HTTP     HTTPConfig     `yaml:"http"`
	Database db.Options     `yaml:"database"`
	Temporal TemporalConfig `yaml:"temporal"`

	// Dispatcher selects how finalized configurations are processed:
	// "temporal" or "local" (in-process goroutines).
	Dispatcher   string `yaml:"dispatcher"`
	LocalWorkers int    `yaml:"local_workers"`
	LocalQueue   int    `yaml:"local_queue"`

	Vault         providers.VaultConfig `yaml:"vault"`
	EncryptionKey string                `yaml:"encryption_key"`

	AWS         AWSConfig     `yaml:"aws"`
	TaskTimeout time.Duration `yaml:"task_timeout"`

	RequireAdmin bool   `yaml:"require_admin"`
	AdminToken   string `yaml:"admin_token"`

	Redis  RedisConfig  `yaml:"redis"`
	GitHub GitHubConfig `yaml:"github"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// RateLimit is requests per second per client IP; zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type TemporalConfig struct {
	HostPort  string `yaml:"host_port"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`
}

type AWSConfig struct {
	DefaultRegion string   `yaml:"default_region"`
	Regions       []string `yaml:"regions"`
}

// RedisConfig enables the distributed wizard lock when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// GitHubConfig enables publishing instructions as issues when Token and
// Repository ("owner/name") are set.
type GitHubConfig struct {
	Token      string   `yaml:"token"`
	Repository string   `yaml:"repository"`
	Labels     []string `yaml:"labels"`
	BaseURL    string   `yaml:"base_url"`
}

func (g GitHubConfig) Enabled() bool {
	return g.Token != "" && g.Repository != ""
}

// OwnerRepo splits Repository into its owner and name.
func (g GitHubConfig) OwnerRepo() (string, string, error) {
	owner, repo, ok := strings.Cut(g.Repository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("github repository %q must look like owner/name", g.Repository)
	}
	return owner, repo, nil
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTP:     HTTPConfig{Addr: ":8080", RateLimit: 20, RateBurst: 40},
		Database: db.Options{Host: "localhost", Port: "5432", Name: "deploy_assist", SSLMode: "disable"},
		Temporal: TemporalConfig{
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: "deploy-assist",
		},
		Dispatcher:   DispatcherTemporal,
		LocalWorkers: 2,
		LocalQueue:   64,
		Vault: providers.VaultConfig{
			AuthMount:  "approle",
			MountPath:  "secret",
			SecretPath: "deploy-assist/master-key",
			Field:      "key",
			Timeout:    30 * time.Second,
			CacheTTL:   5 * time.Minute,
		},
		AWS: AWSConfig{
			DefaultRegion: "us-east-1",
			Regions:       []string{"us-east-1", "us-east-2", "us-west-1", "us-west-2", "eu-west-1", "eu-central-1", "ap-southeast-1", "ap-northeast-1"},
		},
		TaskTimeout: 5 * time.Minute,
		Redis:       RedisConfig{LockTTL: 30 * time.Second},
		GitHub:      GitHubConfig{Labels: []string{"deploy-assist"}},
	}
}

// Load reads envFile (when it exists), then the YAML file at path (when
// path is not empty), then applies environment overrides and validates.
func Load(envFile, path string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("DEPLOY_ASSIST_LOG_LEVEL", &cfg.LogLevel)
	str("DEPLOY_ASSIST_HTTP_ADDR", &cfg.HTTP.Addr)

	str("POSTGRES_DB_HOST", &cfg.Database.Host)
	str("POSTGRES_DB_PORT", &cfg.Database.Port)
	str("POSTGRES_DB_USER", &cfg.Database.User)
	str("POSTGRES_DB_PASSWORD", &cfg.Database.Password)
	str("POSTGRES_DB_NAME", &cfg.Database.Name)
	str("POSTGRES_DB_SSLMODE", &cfg.Database.SSLMode)

	str("TEMPORAL_HOST", &cfg.Temporal.HostPort)
	str("TEMPORAL_NAMESPACE", &cfg.Temporal.Namespace)
	str("DEPLOY_ASSIST_TASK_QUEUE", &cfg.Temporal.TaskQueue)
	str("DEPLOY_ASSIST_DISPATCHER", &cfg.Dispatcher)

	str("VAULT_ADDR", &cfg.Vault.Address)
	str("ROLE_ID", &cfg.Vault.RoleID)
	str("SECRET_ID", &cfg.Vault.SecretID)
	str("DEPLOY_ASSIST_ENCRYPTION_KEY", &cfg.EncryptionKey)

	str("AWS_REGION", &cfg.AWS.DefaultRegion)
	str("DEPLOY_ASSIST_DEFAULT_REGION", &cfg.AWS.DefaultRegion)

	str("DEPLOY_ASSIST_ADMIN_TOKEN", &cfg.AdminToken)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("GITHUB_TOKEN", &cfg.GitHub.Token)
	str("DEPLOY_ASSIST_GITHUB_REPO", &cfg.GitHub.Repository)

	if v := os.Getenv("DEPLOY_ASSIST_REQUIRE_ADMIN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEPLOY_ASSIST_REQUIRE_ADMIN: %w", err)
		}
		cfg.RequireAdmin = b
	}
	if v := os.Getenv("DEPLOY_ASSIST_TASK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DEPLOY_ASSIST_TASK_TIMEOUT: %w", err)
		}
		cfg.TaskTimeout = d
	}
	if v := os.Getenv("DEPLOY_ASSIST_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DEPLOY_ASSIST_RATE_LIMIT: %w", err)
		}
		cfg.HTTP.RateLimit = f
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Dispatcher {
	case DispatcherTemporal, DispatcherLocal:
	default:
		return fmt.Errorf("dispatcher must be %q or %q, got %q", DispatcherTemporal, DispatcherLocal, c.Dispatcher)
	}
	if c.TaskTimeout <= 0 {
		return fmt.Errorf("task_timeout must be positive")
	}
	if c.RequireAdmin && c.AdminToken == "" {
		return fmt.Errorf("admin_token is required when require_admin is set")
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http.rate_limit must not be negative")
	}
	if c.GitHub.Enabled() {
		if _, _, err := c.GitHub.OwnerRepo(); err != nil {
			return err
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	return nil
}

// SupportedRegion reports whether region is in the configured region list.
// An empty list accepts every region.
func (c *Config) SupportedRegion(region string) bool {
	if len(c.AWS.Regions) == 0 {
		return true
	}
	for _, r := range c.AWS.Regions {
		if r == region {
			return true
		}
	}
	return false
}
