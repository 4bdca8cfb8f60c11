package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendLocal  = "local"
	BackendS3     = "s3"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Inference providers.
const (
	ProviderBedrock = "bedrock"
	ProviderOpenAI  = "openai"
	ProviderMock    = "mock"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Storage StorageConfig `mapstructure:"storage"`
	AWS     AWSConfig     `mapstructure:"aws"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	CORSOrigins    string        `mapstructure:"cors_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LLMConfig holds the inference configuration
type LLMConfig struct {
	Provider         string `mapstructure:"provider"`
	ModelID          string `mapstructure:"model_id"`
	Region           string `mapstructure:"region"`
	BaseURL          string `mapstructure:"base_url"`
	APIKey           string `mapstructure:"api_key"`
	SystemPrompt     string `mapstructure:"system_prompt"`
	SystemPromptFile string `mapstructure:"system_prompt_file"`
}

// StorageConfig selects and configures the conversation store
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	UseS3       bool   `mapstructure:"use_s3"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Prefix    string `mapstructure:"s3_prefix"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	MemoryDir   string `mapstructure:"memory_dir"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

// AWSConfig holds optional static credentials. When empty the SDK default
// credential chain is used.
type AWSConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
}

// LogConfig holds the logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envBindings maps config keys to the environment variables that set them.
// The first variable found wins.
var envBindings = map[string][]string{
	"server.host":            {"HOST"},
	"server.port":            {"PORT"},
	"server.cors_origins":    {"CORS_ORIGINS"},
	"server.request_timeout": {"REQUEST_TIMEOUT"},

	"llm.provider":           {"LLM_PROVIDER"},
	"llm.model_id":           {"BEDROCK_MODEL_ID", "MODEL_ID"},
	"llm.region":             {"DEFAULT_AWS_REGION", "AWS_REGION"},
	"llm.base_url":           {"OPENAI_BASE_URL"},
	"llm.api_key":            {"OPENAI_API_KEY"},
	"llm.system_prompt":      {"SYSTEM_PROMPT"},
	"llm.system_prompt_file": {"SYSTEM_PROMPT_FILE"},

	"storage.backend":      {"STORAGE_BACKEND"},
	"storage.use_s3":       {"USE_S3"},
	"storage.s3_bucket":    {"S3_BUCKET"},
	"storage.s3_prefix":    {"S3_PREFIX"},
	"storage.s3_endpoint":  {"S3_ENDPOINT"},
	"storage.memory_dir":   {"MEMORY_DIR"},
	"storage.sqlite_path":  {"HISTORY_DB_PATH"},
	"storage.redis_addr":   {"REDIS_ADDR"},
	"storage.redis_prefix": {"REDIS_PREFIX"},

	"aws.access_key_id":     {"AWS_ACCESS_KEY_ID"},
	"aws.secret_access_key": {"AWS_SECRET_ACCESS_KEY"},
	"aws.session_token":     {"AWS_SESSION_TOKEN"},

	"log.level":  {"LOG_LEVEL"},
	"log.format": {"LOG_FORMAT"},
}

// NewViper returns a viper instance with defaults and environment bindings
// registered. A .env file in the working directory is loaded first; it never
// overrides variables that are already set.
func NewViper() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.cors_origins", "http://localhost:3000")
	v.SetDefault("server.request_timeout", 60*time.Second)

	v.SetDefault("llm.provider", ProviderBedrock)
	v.SetDefault("llm.model_id", "amazon.nova-lite-v1:0")
	v.SetDefault("llm.region", "us-east-1")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("llm.system_prompt_file", "")

	v.SetDefault("storage.backend", "")
	v.SetDefault("storage.use_s3", false)
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_prefix", "")
	v.SetDefault("storage.s3_endpoint", "")
	v.SetDefault("storage.memory_dir", "../memory")
	v.SetDefault("storage.sqlite_path", "history.db")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_prefix", "twin:")

	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")
	v.SetDefault("aws.session_token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	for key, envs := range envBindings {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
	return v
}

// Load loads the configuration from the environment and, when present, a
// config.yaml in the working directory or the file named by CONFIG_PATH.
func Load() (*Config, error) {
	return FromViper(NewViper())
}

// FromViper reads the optional config file into v and decodes the result.
func FromViper(v *viper.Viper) (*Config, error) {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// USE_S3 is on only for a literal "true", in any case.
	v.Set("storage.use_s3", strings.EqualFold(strings.TrimSpace(v.GetString("storage.use_s3")), "true"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration that cannot produce a working service.
func (c *Config) Validate() error {
	switch c.Storage.BackendName() {
	case BackendLocal:
		if c.Storage.MemoryDir == "" {
			return errors.New("config: MEMORY_DIR must not be empty")
		}
	case BackendS3:
		if c.Storage.S3Bucket == "" {
			return errors.New("config: S3_BUCKET is required when using the s3 backend")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("config: HISTORY_DB_PATH must not be empty")
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR is required when using the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	switch strings.ToLower(c.LLM.Provider) {
	case ProviderBedrock, ProviderOpenAI, ProviderMock:
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.ModelID == "" {
		return errors.New("config: BEDROCK_MODEL_ID must not be empty")
	}
	return nil
}

// BackendName resolves the active storage backend. An explicit backend wins;
// otherwise USE_S3 chooses between s3 and the local filesystem.
func (s StorageConfig) BackendName() string {
	if b := strings.ToLower(strings.TrimSpace(s.Backend)); b != "" {
		return b
	}
	if s.UseS3 {
		return BackendS3
	}
	return BackendLocal
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (s ServerConfig) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(s.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
