// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

import (
	"context"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sr"
)

// producerClient is the subset of the franz-go client the Producer needs.
// This allows us to mock the client for testing while using the real
// kgo.Client in production.
type producerClient interface {
	// Produce produces a record asynchronously, blocking if the buffer is full.
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))

	// ProduceSync produces records synchronously and waits for broker acknowledgment.
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults

	// Flush flushes all buffered records and waits for them to be sent.
	Flush(ctx context.Context) error

	// Close closes the Kafka client and releases resources.
	Close()

	// BufferedProduceRecords returns the current number of buffered records.
	BufferedProduceRecords() int64

	// BufferedProduceBytes returns the current number of buffered bytes.
	BufferedProduceBytes() int64
}

// consumerClient is the subset of the franz-go client the Loader needs to
// consume exactly one partition at a time.
type consumerClient interface {
	// AddConsumePartitions starts consuming the given partitions at the given offsets.
	AddConsumePartitions(partitions map[string]map[int32]kgo.Offset)

	// RemoveConsumePartitions stops consuming the given partitions and drops
	// anything buffered for them.
	RemoveConsumePartitions(partitions map[string][]int32)

	// PollRecords waits for fetched records until ctx is done.
	PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches

	// Close closes the Kafka client and releases resources.
	Close()
}

// adminClient is the subset of the franz-go admin client the Loader needs.
type adminClient interface {
	// ListEndOffsets queries the current high watermark of every partition.
	ListEndOffsets(ctx context.Context, topics ...string) (kadm.ListedOffsets, error)

	// ListTopics describes the topics, including their partitions.
	ListTopics(ctx context.Context, topics ...string) (kadm.TopicDetails, error)
}

// registryClient is the subset of the franz-go schema registry client the
// Resolver needs.
type registryClient interface {
	// SchemaByVersion returns the schema for a subject version; -1 is latest.
	SchemaByVersion(ctx context.Context, subject string, version int) (sr.SubjectSchema, error)

	// CreateSchema registers a schema under a subject, returning the existing
	// version when an identical schema is already registered.
	CreateSchema(ctx context.Context, subject string, s sr.Schema) (sr.SubjectSchema, error)

	// SchemaByID returns the schema registered under a global ID.
	SchemaByID(ctx context.Context, id int) (sr.Schema, error)
}

// Verify that the franz-go clients implement the interfaces at compile time.
var (
	_ producerClient = (*kgo.Client)(nil)
	_ consumerClient = (*kgo.Client)(nil)
	_ adminClient    = (*kadm.Client)(nil)
	_ registryClient = (*sr.Client)(nil)
)

// producerClientFactory creates the Producer's Kafka client from options.
// This allows dependency injection for testing.
type producerClientFactory func(opts ...kgo.Opt) (producerClient, error)

func defaultProducerClientFactory(opts ...kgo.Opt) (producerClient, error) {
	return kgo.NewClient(opts...)
}

// loaderClientFactory creates the Loader's consumer and admin clients, which
// share one connection pool.
type loaderClientFactory func(opts ...kgo.Opt) (consumerClient, adminClient, error)

func defaultLoaderClientFactory(opts ...kgo.Opt) (consumerClient, adminClient, error) {
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, nil, err
	}
	return cl, kadm.NewClient(cl), nil
}
