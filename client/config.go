package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config configures a client. Zero values fall back to the defaults below;
// Token, GatewayURL and APIBaseURL are required.
type Config struct {
	Token      string `mapstructure:"token"`
	GatewayURL string `mapstructure:"gateway_url"`
	APIBaseURL string `mapstructure:"api_base_url"`

	ShardCount int `mapstructure:"shard_count"`
	Intents    int `mapstructure:"intents"`

	// MaxConcurrency and IdentifySpacing mirror the remote service's
	// identify-pacing contract.
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	IdentifySpacing time.Duration `mapstructure:"identify_spacing"`

	MaxRetries      int `mapstructure:"max_retries"`
	GlobalPerSecond int `mapstructure:"global_per_second"`

	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	Logger *zap.Logger `mapstructure:"-"`
}

// DefaultConfig returns the default client configuration. Credentials and
// endpoints must still be filled in.
func DefaultConfig() *Config {
	return &Config{
		ShardCount:      1,
		MaxConcurrency:  1,
		IdentifySpacing: 5 * time.Second,
		MaxRetries:      3,
		GlobalPerSecond: 50,
		SweepInterval:   5 * time.Minute,
	}
}

// LoadConfig reads a config file (YAML, TOML or JSON by extension) and
// merges GATEWIRE_* environment variables over it, e.g. GATEWIRE_TOKEN.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("gatewire")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultConfig()
	v.SetDefault("shard_count", defaults.ShardCount)
	v.SetDefault("max_concurrency", defaults.MaxConcurrency)
	v.SetDefault("identify_spacing", defaults.IdentifySpacing)
	v.SetDefault("max_retries", defaults.MaxRetries)
	v.SetDefault("global_per_second", defaults.GlobalPerSecond)
	v.SetDefault("sweep_interval", defaults.SweepInterval)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Token == "" {
		return fmt.Errorf("token is required")
	}
	if cfg.GatewayURL == "" {
		return fmt.Errorf("gateway_url is required")
	}
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required")
	}
	return nil
}
