package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	AI      AIConfig      `yaml:"ai"`
	Memory  MemoryConfig  `yaml:"memory"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StorageConfig selects the save-slot backend.
type StorageConfig struct {
	Driver string      `yaml:"driver"` // "redis" or "mysql"
	Redis  RedisConfig `yaml:"redis"`
	MySQL  MySQLConfig `yaml:"mysql"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AIConfig selects and configures the narrative provider.
type AIConfig struct {
	Provider string       `yaml:"provider"` // "openai" or "gemini"
	OpenAI   OpenAIConfig `yaml:"openai"`
	Gemini   GeminiConfig `yaml:"gemini"`
}

type OpenAIConfig struct {
	BaseURL    string `yaml:"base_url"` // any OpenAI-compatible endpoint
	APIKey     string `yaml:"api_key"`
	TextModel  string `yaml:"text_model"` // turns and opening scenes
	FastModel  string `yaml:"fast_model"` // hooks and NPCs
	ImageModel string `yaml:"image_model"`
	EmbedModel string `yaml:"embed_model"`
	MaxTokens  int    `yaml:"max_tokens"`
}

type GeminiConfig struct {
	APIKey     string `yaml:"api_key"`
	TextModel  string `yaml:"text_model"`
	FastModel  string `yaml:"fast_model"`
	ImageModel string `yaml:"image_model"`
}

// MemoryConfig configures optional scene recall.
type MemoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	APIKey      string `yaml:"api_key"`
	UseTLS      bool   `yaml:"use_tls"`
	Collection  string `yaml:"collection"`
	VectorSize  int    `yaml:"vector_size"`
	RecallLimit int    `yaml:"recall_limit"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides for credentials.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.AI.OpenAI.APIKey = apiKey
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		cfg.AI.Gemini.APIKey = apiKey
	}
	if apiKey := os.Getenv("QDRANT_API_KEY"); apiKey != "" {
		cfg.Memory.APIKey = apiKey
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "redis"
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "gemini"
	}
	if c.AI.OpenAI.TextModel == "" {
		c.AI.OpenAI.TextModel = "gpt-4o"
	}
	if c.AI.OpenAI.FastModel == "" {
		c.AI.OpenAI.FastModel = "gpt-4o-mini"
	}
	if c.AI.OpenAI.ImageModel == "" {
		c.AI.OpenAI.ImageModel = "dall-e-3"
	}
	if c.AI.OpenAI.EmbedModel == "" {
		c.AI.OpenAI.EmbedModel = "text-embedding-3-small"
	}
	if c.AI.Gemini.TextModel == "" {
		c.AI.Gemini.TextModel = "gemini-1.5-pro"
	}
	if c.AI.Gemini.FastModel == "" {
		c.AI.Gemini.FastModel = "gemini-1.5-flash"
	}
	if c.AI.Gemini.ImageModel == "" {
		c.AI.Gemini.ImageModel = "gemini-2.0-flash-exp"
	}
	if c.Memory.VectorSize == 0 {
		c.Memory.VectorSize = 1536
	}
	if c.Memory.RecallLimit == 0 {
		c.Memory.RecallLimit = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
