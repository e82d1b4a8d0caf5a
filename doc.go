// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package avrokafka produces and replays Avro encoded Kafka records that are
// framed in the Confluent Schema Registry wire format.
//
// # Overview
//
// A Producer encodes native Go values with schemas held by a Schema Registry
// and writes them to Kafka.  Keyed records are placed with a CRC32 partitioner
// so that a Loader can later compute the same partition for a key, read that
// partition from the beginning up to its high watermark, and return every
// record written under the key.
//
// # Quick Start
//
// Create a Resolver for the registry, then a Producer by setting fields
// directly:
//
//	resolver, err := avrokafka.NewResolver([]string{"http://localhost:8081"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	producer := &avrokafka.Producer{
//	    Brokers:  []string{"localhost:9092"},
//	    Resolver: resolver,
//	    Topics:   []string{"orders"},
//	}
//	if err := producer.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer producer.Stop(ctx)
//
//	outcome, err := producer.ProduceSync(ctx, &avrokafka.Message{
//	    Key:   "order-42",
//	    Value: map[string]any{"id": "order-42", "amount": int64(1500)},
//	})
//
// Start resolves the latest key and value schema of every topic in Topics.
// A topic without a value schema fails Start; a missing key schema is allowed
// as long as records for that topic carry no key.
//
// Replay the history of a key with a Loader:
//
//	loader := &avrokafka.Loader{
//	    Brokers:   []string{"localhost:9092"},
//	    Topic:     "orders",
//	    KeySchema: keySchema,
//	    Resolver:  resolver,
//	}
//	if err := loader.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer loader.Stop()
//
//	values, err := loader.Load(ctx, "order-42")
//
// # Wire Format
//
// Keys and values are written as a zero magic byte, the 4 byte big endian
// schema ID, then the Avro binary body.  The partitioner hashes those exact
// key bytes, so the Loader must use the same key schema as the Producer.
//
// # Subject Naming
//
// The registry subject for a key or value is chosen per field with a
// SubjectNameStrategy:
//
//   - TopicNameStrategy: "<topic>-key" or "<topic>-value"
//   - RecordNameStrategy: "<record full name>-key" or "<record full name>-value"
//   - TopicRecordNameStrategy: "<topic>-<record full name>-key" or "-value"
//
// With AutoRegisterSchemas the schemas carried by a Message are registered
// under the derived subject.  Without it they are only used to derive the
// subject and the registered schema is looked up instead.
//
// # Callbacks and Observability
//
// The Producer has three callback slots.  OnDelivery receives a PublishEvent
// for every record handed to Kafka, OnError receives client and delivery
// errors, and OnStats receives a Stats snapshot every StatsInterval.  A nil
// slot falls back to logging through the configured kgo.Logger.
//
// Event listeners add framework-agnostic instrumentation on top of that:
//
//	producer.InitialPublishEventListeners = []func(*avrokafka.PublishEvent){
//	    func(e *avrokafka.PublishEvent) {
//	        if e.Error != nil {
//	            metrics.ErrorCounter.WithLabelValues(e.Topic, e.ErrorType).Inc()
//	        }
//	        metrics.LatencyHistogram.WithLabelValues(e.Topic).Observe(e.Duration.Seconds())
//	    },
//	}
//
// Loaders emit one ReplayEvent per replay with the terminal state, the high
// watermark reached and the number of records consumed and matched.
//
// # Thread Safety
//
// Producer is safe for concurrent use by multiple goroutines.  Loader is safe
// for concurrent use as well, but replays run one at a time since each one
// assigns a single partition to the shared consumer.  Resolver caches are
// shared by everything built on the same Resolver.
package avrokafka
