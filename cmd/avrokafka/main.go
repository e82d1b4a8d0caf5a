// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Command avrokafka produces JSON input as Avro records and replays the
// records written under a key.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sr"
	"github.com/twmb/franz-go/plugin/kzap"
	"go.uber.org/zap"

	"github.com/xmidt-org/avrokafka"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgFile string
	cfg     Config
	log     *zap.Logger
	level   zap.AtomicLevel
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "avrokafka",
		Short:        "Produce and replay Avro encoded Kafka records",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.StringSlice("brokers", nil, "seed brokers (default localhost:9092)")
	pf.String("client-id", "", "client id sent to the brokers (default hostname)")
	pf.String("sasl-user", "", "SASL/PLAIN user")
	pf.String("sasl-pass", "", "SASL/PLAIN password")
	pf.StringSlice("registry", nil, "schema registry urls (default http://localhost:8081)")
	pf.String("registry-user", "", "schema registry basic auth user")
	pf.String("registry-pass", "", "schema registry basic auth password")
	pf.String("log-level", "", "debug, info, warn or error (default info)")
	pf.Bool("dev", false, "human readable logs")

	root.AddCommand(
		newProduceCommand(a),
		newReplayCommand(a),
		newBindingsCommand(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.cfgFile, cmd)
	if err != nil {
		return err
	}

	log, level, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	a.level = level

	a.log.Debug("Config loaded",
		zap.Strings("brokers", cfg.Brokers),
		zap.Strings("registry", cfg.Registry.URLs),
		zap.Bool("sasl", cfg.SASL.User != ""),
	)
	return nil
}

func newLogger(cfg LogConfig) (*zap.Logger, zap.AtomicLevel, error) {
	zc := zap.NewProductionConfig()
	if cfg.Dev {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc.Level = level

	log, err := zc.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("building logger: %w", err)
	}
	return log, level, nil
}

// kafkaLogger routes library and franz-go logs through the zap logger.
func (a *app) kafkaLogger() kgo.Logger {
	return kzap.New(a.log, kzap.AtomicLevel(a.level))
}

func (a *app) mechanism() sasl.Mechanism {
	if a.cfg.SASL.User == "" {
		return nil
	}
	return plain.Auth{
		User: a.cfg.SASL.User,
		Pass: a.cfg.SASL.Pass,
	}.AsMechanism()
}

func (a *app) resolver() (*avrokafka.Resolver, error) {
	var opts []sr.ClientOpt
	if a.cfg.Registry.User != "" {
		opts = append(opts, sr.BasicAuth(a.cfg.Registry.User, a.cfg.Registry.Pass))
	}
	return avrokafka.NewResolver(a.cfg.Registry.URLs, opts...)
}

func (a *app) retry(ctx context.Context, what string, fn func(context.Context) error) error {
	return retry(ctx, a.cfg.Startup, a.log, what, fn)
}
