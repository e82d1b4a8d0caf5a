// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// PublishEvent represents an event when a record has been published or failed
// to publish.
type PublishEvent struct {
	// Topic is the Kafka topic the record was published to (or attempted to
	// publish to).
	Topic string

	// Partition and Offset locate the record.  Both are -1 when the record
	// never reached a broker.
	Partition int32
	Offset    int64

	// KeySchemaID and ValueSchemaID are the registry IDs embedded in the
	// record (0 when the key or value was absent).
	KeySchemaID   int
	ValueSchemaID int

	// Error is the error that occurred during publishing (nil for successful publishes).
	Error error

	// ErrorType is the error classification (empty for successful publishes).
	// Values: "schema_not_found", "topic_not_registered", "encoding_error", "broker_error", etc.
	ErrorType string

	// Duration is the time taken from Produce() call to completion (success or failure).
	Duration time.Duration
}

// Stats is a periodic snapshot of producer activity.  Counters are totals
// since Start.
type Stats struct {
	// Time is when the snapshot was taken.
	Time time.Time

	// BufferedRecords and BufferedBytes are waiting to be sent.
	BufferedRecords int64
	BufferedBytes   int64

	// RecordsWritten and BytesWritten count what brokers acknowledged.
	// BytesWritten is the uncompressed size.
	RecordsWritten         int64
	BytesWritten           int64
	CompressedBytesWritten int64

	// Connects, ConnectErrors and Disconnects count broker connections.
	Connects      int64
	ConnectErrors int64
	Disconnects   int64
}

// pick returns the caller's callback if set, otherwise the fallback.  Exactly
// one of the two is ever used.
func pick[T any](user, fallback func(T)) func(T) {
	if user != nil {
		return user
	}
	return fallback
}

func logDelivery(logger kgo.Logger) func(*PublishEvent) {
	return func(e *PublishEvent) {
		if e.Error != nil {
			logger.Log(kgo.LogLevelWarn, "Message delivery failed",
				"topic", e.Topic,
				"error_type", e.ErrorType,
				"error", e.Error.Error(),
			)
			return
		}
		logger.Log(kgo.LogLevelDebug, "Message delivered",
			"topic", e.Topic,
			"partition", e.Partition,
			"offset", e.Offset,
			"duration", e.Duration,
		)
	}
}

func logError(logger kgo.Logger) func(error) {
	return func(err error) {
		logger.Log(kgo.LogLevelError, "Kafka client error",
			"error_type", errorType(err),
			"error", err.Error(),
		)
	}
}

func logStats(logger kgo.Logger) func(*Stats) {
	return func(s *Stats) {
		logger.Log(kgo.LogLevelInfo, "Producer stats",
			"buffered_records", s.BufferedRecords,
			"buffered_bytes", s.BufferedBytes,
			"records_written", s.RecordsWritten,
			"bytes_written", s.BytesWritten,
			"compressed_bytes_written", s.CompressedBytesWritten,
			"connects", s.Connects,
			"connect_errors", s.ConnectErrors,
			"disconnects", s.Disconnects,
		)
	}
}

// producerHooks collects Stats counters and reports connection failures.
type producerHooks struct {
	logger             kgo.Logger
	logConnectionClose bool
	onError            func(error)

	recordsWritten  atomic.Int64
	bytesWritten    atomic.Int64
	compressedBytes atomic.Int64
	connects        atomic.Int64
	connectErrors   atomic.Int64
	disconnects     atomic.Int64
}

var (
	_ kgo.HookBrokerConnect       = (*producerHooks)(nil)
	_ kgo.HookBrokerDisconnect    = (*producerHooks)(nil)
	_ kgo.HookProduceBatchWritten = (*producerHooks)(nil)
)

func (h *producerHooks) OnBrokerConnect(meta kgo.BrokerMetadata, _ time.Duration, _ net.Conn, err error) {
	if err == nil {
		h.connects.Add(1)
		return
	}

	h.connectErrors.Add(1)
	h.onError(errors.Join(ErrBroker,
		fmt.Errorf("connecting to broker %d at %s:%d: %w", meta.NodeID, meta.Host, meta.Port, err)))
}

func (h *producerHooks) OnBrokerDisconnect(meta kgo.BrokerMetadata, _ net.Conn) {
	h.disconnects.Add(1)
	if h.logConnectionClose {
		h.logger.Log(kgo.LogLevelInfo, "Broker connection closed",
			"broker", meta.NodeID,
			"host", meta.Host,
			"port", meta.Port,
		)
	}
}

func (h *producerHooks) OnProduceBatchWritten(_ kgo.BrokerMetadata, _ string, _ int32, m kgo.ProduceBatchMetrics) {
	h.recordsWritten.Add(int64(m.NumRecords))
	h.bytesWritten.Add(int64(m.UncompressedBytes))
	h.compressedBytes.Add(int64(m.CompressedBytes))
}

func (h *producerHooks) snapshot(client producerClient) *Stats {
	return &Stats{
		Time:                   time.Now(),
		BufferedRecords:        client.BufferedProduceRecords(),
		BufferedBytes:          client.BufferedProduceBytes(),
		RecordsWritten:         h.recordsWritten.Load(),
		BytesWritten:           h.bytesWritten.Load(),
		CompressedBytesWritten: h.compressedBytes.Load(),
		Connects:               h.connects.Load(),
		ConnectErrors:          h.connectErrors.Load(),
		Disconnects:            h.disconnects.Load(),
	}
}
