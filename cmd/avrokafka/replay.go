// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hamba/avro/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xmidt-org/avrokafka"
)

// replayed is one output line of the replay command.
type replayed struct {
	Partition int32     `json:"partition"`
	Offset    int64     `json:"offset"`
	Timestamp time.Time `json:"timestamp"`
	Value     any       `json:"value"`
}

func newReplayCommand(a *app) *cobra.Command {
	var topic, subject string

	cmd := &cobra.Command{
		Use:   "replay KEY",
		Short: "Print every record written under a key",
		Long: `Reads the partition KEY hashes to from the beginning up to its high watermark
and prints the records whose key matches, one JSON object per line.  KEY is
taken literally for string key schemas and parsed as JSON otherwise.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.replay(cmd.Context(), topic, subject, args[0], cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&topic, "topic", "t", "", "topic to replay")
	f.StringVar(&subject, "key-subject", "", "registry subject of the key schema (default <topic>-key)")
	f.Int("partitions", 0, "partition count of the topic (default: ask the brokers)")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

func (a *app) replay(ctx context.Context, topic, subject, arg string, out io.Writer) error {
	resolver, err := a.resolver()
	if err != nil {
		return err
	}

	if subject == "" {
		subject = topic + avrokafka.FieldKey.Suffix()
	}

	var keySchema *avrokafka.Schema
	err = a.retry(ctx, "registry", func(ctx context.Context) error {
		var err error
		keySchema, err = resolver.Latest(ctx, subject)
		return err
	})
	if err != nil {
		return err
	}

	key, err := keyFromArg(keySchema, arg)
	if err != nil {
		return err
	}

	lc := a.cfg.Loader
	l := &avrokafka.Loader{
		Brokers:          a.cfg.Brokers,
		SASL:             a.mechanism(),
		Topic:            topic,
		NumPartitions:    lc.NumPartitions,
		KeySchema:        keySchema,
		Resolver:         resolver,
		PollTimeout:      lc.PollTimeout,
		WatermarkTimeout: lc.WatermarkTimeout,
		MaxPollRecords:   lc.MaxPollRecords,
		Logger:           a.kafkaLogger(),
		InitialReplayEventListeners: []func(*avrokafka.ReplayEvent){
			func(e *avrokafka.ReplayEvent) {
				a.log.Info("Replay finished",
					zap.String("topic", e.Topic),
					zap.Int32("partition", e.Partition),
					zap.Stringer("state", e.State),
					zap.Int64("high_watermark", e.HighWatermark),
					zap.Int("consumed", e.Consumed),
					zap.Int("matched", e.Matched),
					zap.Bool("interrupted", e.Interrupted),
					zap.Duration("duration", e.Duration),
				)
			},
		},
	}

	if err := a.retry(ctx, "loader", l.Start); err != nil {
		return err
	}
	defer l.Stop()

	records, err := l.LoadRecords(ctx, key)
	if err != nil {
		return err
	}

	// An interrupted replay still prints what it found.
	decodeCtx := context.WithoutCancel(ctx)
	serializer := avrokafka.NewSerializer(resolver)
	enc := json.NewEncoder(out)
	for _, r := range records {
		line := replayed{
			Partition: r.Partition,
			Offset:    r.Offset,
			Timestamp: r.Timestamp,
		}
		if r.Value != nil {
			line.Value, err = serializer.Deserialize(decodeCtx, r.Value)
			if err != nil {
				return fmt.Errorf("decoding offset %d: %w", r.Offset, err)
			}
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

// keyFromArg converts the command line key to the native value for schema.
func keyFromArg(schema *avrokafka.Schema, arg string) (any, error) {
	if schema.Avro().Type() == avro.String {
		return arg, nil
	}
	key, err := fromJSON(schema.Avro(), []byte(arg))
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	return key, nil
}
