// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xmidt-org/avrokafka"
)

const maxLineSize = 4 << 20

// inputLine is one line of produce input.  A missing or null value produces a
// tombstone.
type inputLine struct {
	Key   json.RawMessage `json:"key"`
	Value json.RawMessage `json:"value"`
}

func newProduceCommand(a *app) *cobra.Command {
	var topic, file string

	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Produce JSON lines as Avro records",
		Long: `Reads one JSON object per line, {"key": ..., "value": ...}, encodes key and
value with the schemas registered for the topic and produces them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, closeIn, err := openInput(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer closeIn()
			return a.produce(cmd.Context(), topic, in)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&topic, "topic", "t", "", "destination topic")
	f.StringVarP(&file, "file", "f", "-", "input file, - for stdin")
	f.String("acks", "", "all, leader or none (default all)")
	f.String("compression", "", "snappy, gzip, lz4, zstd or none (default none)")
	f.Bool("auto-register", false, "register schemas instead of looking them up")
	f.String("key-strategy", "", "topic, record or topic_record (default topic)")
	f.String("value-strategy", "", "topic, record or topic_record (default topic)")
	f.Bool("sync", false, "wait for every record to be acknowledged")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

func openInput(file string, stdin io.Reader) (io.Reader, func(), error) {
	if file == "" || file == "-" {
		return stdin, func() {}, nil
	}
	fh, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	return fh, func() { _ = fh.Close() }, nil
}

func (a *app) produce(ctx context.Context, topic string, in io.Reader) error {
	resolver, err := a.resolver()
	if err != nil {
		return err
	}

	var counts produceCounts
	pc := a.cfg.Producer
	p := &avrokafka.Producer{
		Brokers:                  a.cfg.Brokers,
		SASL:                     a.mechanism(),
		Resolver:                 resolver,
		Topics:                   []string{topic},
		ClientID:                 a.cfg.ClientID,
		Acks:                     avrokafka.Acks(pc.Acks),
		CompressionCodec:         avrokafka.Compression(pc.Compression),
		Linger:                   pc.Linger,
		StatsInterval:            pc.StatsInterval,
		CleanupTimeout:           pc.CleanupTimeout,
		AutoRegisterSchemas:      pc.AutoRegister,
		KeySubjectNameStrategy:   avrokafka.SubjectNameStrategy(pc.KeyStrategy),
		ValueSubjectNameStrategy: avrokafka.SubjectNameStrategy(pc.ValueStrategy),
		Logger:                   a.kafkaLogger(),
		OnDelivery: func(e *avrokafka.PublishEvent) {
			if !counts.delivery(e) {
				a.log.Warn("Delivery failed",
					zap.String("topic", e.Topic),
					zap.String("error_type", e.ErrorType),
					zap.Error(e.Error),
				)
			}
		},
		OnStats: func(s *avrokafka.Stats) {
			a.log.Info("Producer stats",
				zap.Int64("buffered_records", s.BufferedRecords),
				zap.Int64("records_written", s.RecordsWritten),
				zap.Int64("bytes_written", s.BytesWritten),
			)
		},
	}

	if err := a.retry(ctx, "producer", p.Start); err != nil {
		return err
	}

	binding := p.Bindings()[topic]
	send := p.Produce
	if pc.Sync {
		send = p.ProduceSync
	}

	var lines int
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		lines++

		msg, err := decodeLine(scanner.Bytes(), binding)
		if err == nil {
			_, err = send(ctx, msg)
		}
		if counts.sendFailed(err) {
			a.log.Error("Record rejected", zap.Int("line", lines), zap.Error(err))
		}
	}

	// Stop flushes, so the delivery counters are final afterwards.
	p.Stop(context.WithoutCancel(ctx))

	a.log.Info("Produce complete",
		zap.String("topic", topic),
		zap.Int("lines", lines),
		zap.Int64("rejected", counts.rejected.Load()),
		zap.Int64("delivered", counts.delivered.Load()),
		zap.Int64("undelivered", counts.undelivered.Load()),
	)

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	if failed := counts.failed(); failed > 0 {
		return fmt.Errorf("%d of %d records failed", failed, lines)
	}
	return ctx.Err()
}

// produceCounts tallies the outcome of each input line.  A line is counted
// exactly once: as delivered or undelivered by the delivery callback, or as
// rejected when it never reached Kafka.
type produceCounts struct {
	delivered   atomic.Int64
	undelivered atomic.Int64
	rejected    atomic.Int64
}

// delivery records a delivery result and reports whether it succeeded.
func (c *produceCounts) delivery(e *avrokafka.PublishEvent) bool {
	if e.Error != nil {
		c.undelivered.Add(1)
		return false
	}
	c.delivered.Add(1)
	return true
}

// sendFailed records an error returned while producing a line and reports
// whether it was counted as a rejection.  Broker errors come from a delivery
// that the callback has already counted.
func (c *produceCounts) sendFailed(err error) bool {
	if err == nil || errors.Is(err, avrokafka.ErrBroker) {
		return false
	}
	c.rejected.Add(1)
	return true
}

func (c *produceCounts) failed() int64 {
	return c.rejected.Load() + c.undelivered.Load()
}

// decodeLine converts one input line with the schemas bound to the topic.
func decodeLine(line []byte, binding *avrokafka.TopicBinding) (*avrokafka.Message, error) {
	var in inputLine
	if err := json.Unmarshal(line, &in); err != nil {
		return nil, fmt.Errorf("invalid input line: %w", err)
	}

	msg := &avrokafka.Message{Topic: binding.Topic}

	if present(in.Key) {
		if binding.Key == nil {
			return nil, errors.Join(avrokafka.ErrSchemaNotFound,
				fmt.Errorf("topic %q has no key schema", binding.Topic))
		}
		key, err := fromJSON(binding.Key.Avro(), in.Key)
		if err != nil {
			return nil, fmt.Errorf("key: %w", err)
		}
		msg.Key = key
	}

	if present(in.Value) {
		value, err := fromJSON(binding.Value.Avro(), in.Value)
		if err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		msg.Value = value
	}

	return msg, nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
