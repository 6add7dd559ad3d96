// Package config loads ResumeVault settings from an optional .env file, an
// optional resumevault.yaml and RESUMEVAULT_* environment variables.
package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/dharsanguruparan/ResumeVault/internal/extract"
	"github.com/dharsanguruparan/ResumeVault/internal/scheduler"
)

const (
	EnvPrefix = "RESUMEVAULT"
	FileName  = "resumevault"
)

const (
	DispatchInline = "inline"
	DispatchQueue  = "queue"

	StorageMemory = "memory"
	StorageMinIO  = "minio"
	StorageS3     = "s3"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config is the full runtime configuration.
type Config struct {
	HTTP     HTTPConfig             `mapstructure:"http"`
	Database DatabaseConfig         `mapstructure:"database"`
	Redis    RedisConfig            `mapstructure:"redis"`
	Dispatch DispatchConfig         `mapstructure:"dispatch"`
	Storage  StorageConfig          `mapstructure:"storage"`
	LLM      LLMConfig              `mapstructure:"llm"`
	Pipeline scheduler.Options      `mapstructure:"pipeline"`
	Extract  ExtractConfig          `mapstructure:"extract"`
	Portrait extract.PortraitConfig `mapstructure:"portrait"`
	Tier     TierConfig             `mapstructure:"tier"`
	Log      LogConfig              `mapstructure:"log"`
}

type HTTPConfig struct {
	Address        string        `mapstructure:"address"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	PublicBaseURL  string        `mapstructure:"public_base_url"`
	SigningSecret  string        `mapstructure:"signing_secret"`
	SignedURLTTL   time.Duration `mapstructure:"signed_url_ttl"`
}

// DatabaseConfig selects Postgres. An empty URL runs on the in-memory store.
type DatabaseConfig struct {
	URL         string `mapstructure:"url"`
	MaxConns    int32  `mapstructure:"max_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DispatchConfig chooses between the in-process pool and the asynq queue.
type DispatchConfig struct {
	Mode string `mapstructure:"mode"`
}

type StorageConfig struct {
	Driver        string `mapstructure:"driver"`
	Endpoint      string `mapstructure:"endpoint"`
	Region        string `mapstructure:"region"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	Bucket        string `mapstructure:"bucket"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

type TierConfig struct {
	// TablesFile replaces the built-in institution tables when set.
	TablesFile string `mapstructure:"tables_file"`
}

type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

type ExtractConfig struct {
	// UnidocLicense is the metered key for PDF image extraction.
	UnidocLicense string `mapstructure:"unidoc_license"`
}

func setDefaults(v *viper.Viper) error {
	v.SetDefault("http.address", ":8080")
	v.SetDefault("http.max_upload_bytes", 20<<20)
	v.SetDefault("http.public_base_url", "")
	v.SetDefault("http.signing_secret", "")
	v.SetDefault("http.signed_url_ttl", 15*time.Minute)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("dispatch.mode", DispatchInline)

	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "resumes")
	v.SetDefault("storage.public_base_url", "")

	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.backoff", 2*time.Second)

	v.SetDefault("tier.tables_file", "")

	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)
	v.SetDefault("extract.unidoc_license", "")

	// Struct defaults are flattened key by key so AutomaticEnv can see them.
	for prefix, value := range map[string]any{
		"pipeline": scheduler.DefaultOptions(),
		"portrait": extract.DefaultPortraitConfig(),
	} {
		flat := map[string]any{}
		if err := mapstructure.Decode(value, &flat); err != nil {
			return fmt.Errorf("flatten %s defaults: %w", prefix, err)
		}
		for key, val := range flat {
			if key == "-" || key == "Bucket" {
				continue
			}
			v.SetDefault(prefix+"."+key, val)
		}
	}
	return nil
}

// Load reads the configuration. path names an explicit config file; when
// empty, resumevault.yaml in the working directory is used if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := setDefaults(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Pipeline.Bucket = cfg.Storage.Bucket
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Dispatch.Mode {
	case DispatchInline, DispatchQueue:
	default:
		return fmt.Errorf("dispatch.mode: unknown mode %q", c.Dispatch.Mode)
	}
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageMinIO, StorageS3:
		if c.Storage.Endpoint == "" && c.Storage.Driver == StorageMinIO {
			return fmt.Errorf("storage.endpoint is required for %s", c.Storage.Driver)
		}
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for %s", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider)
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		return fmt.Errorf("http.max_upload_bytes must be positive")
	}
	return nil
}

// SigningKey returns the configured HMAC secret, or a random one that is only
// valid for the lifetime of the process.
func (c *Config) SigningKey() []byte {
	if c.HTTP.SigningSecret != "" {
		return []byte(c.HTTP.SigningSecret)
	}
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return buf
}
