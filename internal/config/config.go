package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	PoolAddress     string
	PositionManager string
	Factory         string
	PositionID      uint64

	WidthBps    uint32
	SlippageBps uint32

	HedgeSymbol     string
	HedgeThreshold  decimal.Decimal
	InitialAmount0  decimal.Decimal
	InitialAmount1  decimal.Decimal

	Interval         time.Duration
	CallTimeout      time.Duration
	PriceMaxAge      time.Duration
	PriceMaxAgeLoose time.Duration

	MarkFeedURL    string
	MarkFeedSymbol string
	DeviationBps   uint32

	PostgresDSN      string
	DecisionLog      string
	StateFile        string
	StateFileEnabled bool

	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("width-bps", uint32(500))
	v.SetDefault("slippage-bps", uint32(50))
	v.SetDefault("hedge-threshold", "0.01")
	v.SetDefault("interval", 30*time.Second)
	v.SetDefault("call-timeout", 10*time.Second)
	v.SetDefault("price-max-age", 2*time.Minute)
	v.SetDefault("price-max-age-loose", 15*time.Minute)
	v.SetDefault("deviation-bps", uint32(25))
	v.SetDefault("decision-log", "./data/decisions.jsonl")
	v.SetDefault("state-file", "./data/state.json")
	v.SetDefault("state-file-enabled", true)
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

	threshold, err := getDecimal(v, "hedge-threshold")
	if err != nil {
		return Config{}, err
	}
	amount0, err := getDecimal(v, "initial-amount0")
	if err != nil {
		return Config{}, err
	}
	amount1, err := getDecimal(v, "initial-amount1")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:           v.GetString("rpc"),
		PoolAddress:      v.GetString("pool"),
		PositionManager:  v.GetString("position-manager"),
		Factory:          v.GetString("factory"),
		PositionID:       v.GetUint64("position-id"),
		WidthBps:         v.GetUint32("width-bps"),
		SlippageBps:      v.GetUint32("slippage-bps"),
		HedgeSymbol:      v.GetString("hedge-symbol"),
		HedgeThreshold:   threshold,
		InitialAmount0:   amount0,
		InitialAmount1:   amount1,
		Interval:         v.GetDuration("interval"),
		CallTimeout:      v.GetDuration("call-timeout"),
		PriceMaxAge:      v.GetDuration("price-max-age"),
		PriceMaxAgeLoose: v.GetDuration("price-max-age-loose"),
		MarkFeedURL:      v.GetString("mark-feed-url"),
		MarkFeedSymbol:   v.GetString("mark-feed-symbol"),
		DeviationBps:     v.GetUint32("deviation-bps"),
		PostgresDSN:      v.GetString("pg-dsn"),
		DecisionLog:      v.GetString("decision-log"),
		StateFile:        v.GetString("state-file"),
		StateFileEnabled: v.GetBool("state-file-enabled"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, nil
}

func getDecimal(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
