package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL        string
	TelegramToken string
	PostgresDSN   string

	PositionManager string
	Factory         string
	Staking         string
	ExplorerURL     string

	Pools   []string
	Wallets []string

	RateLimit       int
	MinEditInterval time.Duration
	PoolStateTTL    time.Duration
	WalletPoll      time.Duration
	DustThreshold   float64
	MaxRetries      int
	RetryBackoff    time.Duration
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LPBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rate-limit", 30)
	v.SetDefault("min-edit-interval", 3*time.Second)
	v.SetDefault("pool-state-ttl", 5*time.Second)
	v.SetDefault("wallet-poll", time.Minute)
	v.SetDefault("dust-threshold", 0.1)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		TelegramToken:   v.GetString("telegram-token"),
		PostgresDSN:     v.GetString("pg-dsn"),
		PositionManager: v.GetString("position-manager"),
		Factory:         v.GetString("factory"),
		Staking:         v.GetString("staking"),
		ExplorerURL:     v.GetString("explorer-url"),
		Pools:           getStringSlice(v, "pool"),
		Wallets:         getStringSlice(v, "wallet"),
		RateLimit:       v.GetInt("rate-limit"),
		MinEditInterval: v.GetDuration("min-edit-interval"),
		PoolStateTTL:    v.GetDuration("pool-state-ttl"),
		WalletPoll:      v.GetDuration("wallet-poll"),
		DustThreshold:   v.GetFloat64("dust-threshold"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		LogLevel:        v.GetString("log-level"),
	}

	if cfg.RPCURL == "" {
		return Config{}, fmt.Errorf("rpc url is required")
	}
	if cfg.TelegramToken == "" {
		return Config{}, fmt.Errorf("telegram token is required")
	}

	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
