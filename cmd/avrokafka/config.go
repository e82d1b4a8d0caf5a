// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// envPrefix is the prefix of every environment override, for example
// AVROKAFKA_PRODUCER_ACKS for producer.acks.
const envPrefix = "AVROKAFKA"

// Config is the command line configuration.  Values come from, in order of
// precedence: flags, AVROKAFKA_* environment variables, the config file and
// the defaults below.
type Config struct {
	Brokers  []string       `mapstructure:"brokers"`
	ClientID string         `mapstructure:"client_id"`
	SASL     SASLConfig     `mapstructure:"sasl"`
	Registry RegistryConfig `mapstructure:"registry"`
	Log      LogConfig      `mapstructure:"log"`
	Producer ProducerConfig `mapstructure:"producer"`
	Loader   LoaderConfig   `mapstructure:"loader"`
	Startup  RetryConfig    `mapstructure:"startup"`
}

// SASLConfig enables SASL/PLAIN when User is set.
type SASLConfig struct {
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`
}

// RegistryConfig locates the schema registry.  User enables basic auth.
type RegistryConfig struct {
	URLs []string `mapstructure:"urls"`
	User string   `mapstructure:"user"`
	Pass string   `mapstructure:"pass"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Dev   bool   `mapstructure:"dev"`
}

type ProducerConfig struct {
	Acks           string        `mapstructure:"acks"`
	Compression    string        `mapstructure:"compression"`
	Linger         time.Duration `mapstructure:"linger"`
	StatsInterval  time.Duration `mapstructure:"stats_interval"`
	CleanupTimeout time.Duration `mapstructure:"cleanup_timeout"`
	AutoRegister   bool          `mapstructure:"auto_register"`
	KeyStrategy    string        `mapstructure:"key_strategy"`
	ValueStrategy  string        `mapstructure:"value_strategy"`
	Sync           bool          `mapstructure:"sync"`
}

type LoaderConfig struct {
	NumPartitions    int           `mapstructure:"num_partitions"`
	PollTimeout      time.Duration `mapstructure:"poll_timeout"`
	WatermarkTimeout time.Duration `mapstructure:"watermark_timeout"`
	MaxPollRecords   int           `mapstructure:"max_poll_records"`
}

// RetryConfig bounds the exponential back-off used while starting clients.
type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

func defaults() map[string]any {
	return map[string]any{
		"brokers":                  []string{"localhost:9092"},
		"client_id":                "",
		"sasl.user":                "",
		"sasl.pass":                "",
		"registry.urls":            []string{"http://localhost:8081"},
		"registry.user":            "",
		"registry.pass":            "",
		"log.level":                "info",
		"log.dev":                  false,
		"producer.acks":            "all",
		"producer.compression":     "none",
		"producer.linger":          100 * time.Millisecond,
		"producer.stats_interval":  15 * time.Second,
		"producer.cleanup_timeout": 10 * time.Second,
		"producer.auto_register":   false,
		"producer.key_strategy":    "topic",
		"producer.value_strategy":  "topic",
		"producer.sync":            false,
		"loader.num_partitions":    0,
		"loader.poll_timeout":      100 * time.Millisecond,
		"loader.watermark_timeout": 500 * time.Millisecond,
		"loader.max_poll_records":  500,
		"startup.initial_interval": 500 * time.Millisecond,
		"startup.max_interval":     5 * time.Second,
		"startup.max_elapsed_time": 30 * time.Second,
	}
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"brokers":        "brokers",
	"client-id":      "client_id",
	"sasl-user":      "sasl.user",
	"sasl-pass":      "sasl.pass",
	"registry":       "registry.urls",
	"registry-user":  "registry.user",
	"registry-pass":  "registry.pass",
	"log-level":      "log.level",
	"dev":            "log.dev",
	"acks":           "producer.acks",
	"compression":    "producer.compression",
	"auto-register":  "producer.auto_register",
	"key-strategy":   "producer.key_strategy",
	"value-strategy": "producer.value_strategy",
	"sync":           "producer.sync",
	"partitions":     "loader.num_partitions",
}

// loadConfig reads the configuration for cmd.  path may be empty.
func loadConfig(path string, cmd *cobra.Command) (Config, error) {
	v := viper.New()

	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %q: %w", path, err)
		}
	}

	if cmd != nil {
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("binding flag %q: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate checks what the command line owns.  Producer and loader settings
// are validated by the library on Start.
func (c Config) validate() error {
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("at least one broker is required"))
	}
	if len(c.Registry.URLs) == 0 {
		errs = append(errs, errors.New("at least one schema registry url is required"))
	}
	if c.SASL.User != "" && c.SASL.Pass == "" {
		errs = append(errs, errors.New("sasl.pass is required with sasl.user"))
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Log.Level))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
