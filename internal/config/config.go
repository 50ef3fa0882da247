// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

type Config struct {
	RPCList            []string `mapstructure:"rpc_list"`
	CasinoProgram      string   `mapstructure:"casino_program"`
	AuthorityKey       string   `mapstructure:"authority_key"`
	PostgresURL        string   `mapstructure:"postgres_url"`
	APIListen          string   `mapstructure:"api_listen"`
	OperatorKeys       []string `mapstructure:"operator_keys"`
	FastIntervalSec    int      `mapstructure:"fast_interval_seconds"`
	AggregatorCronSpec string   `mapstructure:"aggregator_cron"`
	JupiterQuoteURL    string   `mapstructure:"jupiter_quote_url"`
	JupiterSwapURL     string   `mapstructure:"jupiter_swap_url"`
	PumpPortalURL      string   `mapstructure:"pumpportal_url"`
	PriorityFeeSOL     float64  `mapstructure:"priority_fee_sol"`
	DebugLogging       bool     `mapstructure:"debug_logging"`
	LogFile            string   `mapstructure:"log_file"`
}

const (
	DefaultFastIntervalSec    = 10
	DefaultAggregatorCronSpec = "0 * * * *"
	DefaultAPIListen          = ":8080"
	DefaultJupiterQuoteURL    = "https://quote-api.jup.ag/v6/quote"
	DefaultJupiterSwapURL     = "https://quote-api.jup.ag/v6/swap"
	DefaultPumpPortalURL      = "https://pumpportal.fun/api/trade-local"
	DefaultPriorityFeeSOL     = 0.0005
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"fast_interval_seconds": DefaultFastIntervalSec,
		"aggregator_cron":       DefaultAggregatorCronSpec,
		"api_listen":            DefaultAPIListen,
		"jupiter_quote_url":     DefaultJupiterQuoteURL,
		"jupiter_swap_url":      DefaultJupiterSwapURL,
		"pumpportal_url":        DefaultPumpPortalURL,
		"priority_fee_sol":      DefaultPriorityFeeSOL,
		"log_file":              "buyback.log",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	if cfg.CasinoProgram == "" {
		return errors.New("missing casino_program in configuration")
	}
	if cfg.PostgresURL == "" {
		return errors.New("missing postgres_url in configuration")
	}
	if cfg.FastIntervalSec <= 0 {
		return errors.New("invalid fast_interval_seconds")
	}
	if cfg.PriorityFeeSOL < 0 {
		return errors.New("invalid priority_fee_sol")
	}
	for _, apiURL := range []string{cfg.JupiterQuoteURL, cfg.JupiterSwapURL, cfg.PumpPortalURL} {
		if err := validateURLWithCache(apiURL, "http"); err != nil {
			return errors.New("invalid external API URL protocol")
		}
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("BUYBACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if envKey := v.GetString("AUTHORITY_KEY"); envKey != "" {
		cfg.AuthorityKey = envKey
	}
	if envDSN := v.GetString("POSTGRES_URL"); envDSN != "" {
		cfg.PostgresURL = envDSN
	}

	envRPCList := v.GetString("RPC_LIST")
	if envRPCList != "" {
		rpcs := strings.Split(envRPCList, ",")
		var cleanRPCs []string
		for _, rpc := range rpcs {
			clean := strings.TrimSpace(rpc)
			if clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}
	return nil
}
