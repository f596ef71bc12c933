package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	LLM       LLMConfig
	Server    ServerConfig
	Agent     AgentConfig
	Providers ProvidersConfig
	Database  DatabaseConfig
	LogLevel  string `mapstructure:"log_level"`
}

// DatabaseConfig holds the conversation store configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LLMConfig holds the LLM gateway configuration
type LLMConfig struct {
	BaseURL       string   `mapstructure:"base_url"`
	APIKey        string   `mapstructure:"api_key"`
	DefaultModel  string   `mapstructure:"default_model"`
	AllowedModels []string `mapstructure:"allowed_models"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// AgentConfig holds the reasoning loop tunables. The bounds are
// configuration, not law: the loop enforces whatever is set here.
type AgentConfig struct {
	MaxSteps      int           `mapstructure:"max_steps"`
	ModelRetries  int           `mapstructure:"model_retries"`
	HistoryWindow int           `mapstructure:"history_window"`
	TurnTimeout   time.Duration `mapstructure:"turn_timeout"`
}

// ProvidersConfig holds the review provider configuration
type ProvidersConfig struct {
	GooglePlaces ProviderConfig `mapstructure:"google_places"`
	TripAdvisor  ProviderConfig `mapstructure:"tripadvisor"`
	Timeout      time.Duration  `mapstructure:"timeout"`
	ReviewLimit  int            `mapstructure:"review_limit"`
}

// ProviderConfig holds a single review provider's credentials
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// AllowsModel reports whether the model identifier is in the allow-list.
func (c LLMConfig) AllowsModel(model string) bool {
	for _, m := range c.AllowedModels {
		if m == model {
			return true
		}
	}
	return false
}

// Load loads the configuration from config.yaml (or the file pointed at by
// CONFIG_PATH) and applies defaults for every tunable.
func Load() (*Config, error) {
	v := viper.New()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("database.path", "chat_sessions.db")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")
	v.SetDefault("llm.default_model", "gpt-4o-mini")
	v.SetDefault("llm.allowed_models", []string{"gpt-4o-mini", "gpt-4o"})
	v.SetDefault("agent.max_steps", 5)
	v.SetDefault("agent.model_retries", 2)
	v.SetDefault("agent.history_window", 20)
	v.SetDefault("agent.turn_timeout", "120s")
	v.SetDefault("providers.timeout", "10s")
	v.SetDefault("providers.review_limit", 5)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine when everything needed has a
		// default or comes from the environment.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
