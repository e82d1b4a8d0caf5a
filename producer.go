// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/xmidt-org/eventor"
)

const (
	defaultMaxInFlight   = 1
	defaultLinger        = 100 * time.Millisecond
	defaultStatsInterval = 15 * time.Second
	defaultClientID      = "avrokafka"

	// maxIdempotentInFlight is the broker limit for idempotent producers.
	maxIdempotentInFlight = 5
)

// Message is a record to produce.  Key and Value are native Go values that
// are Avro encoded with the resolved schemas.
type Message struct {
	// Topic is the destination topic.
	// Optional. If empty, the first of Producer.Topics is used.
	Topic string

	// Key is the record key.
	// Optional. A nil key produces a record without a key.
	Key any

	// Value is the record value.
	// Optional. A nil value produces a tombstone.
	Value any

	// KeySchema and ValueSchema override the schemas bound to the topic.
	// With AutoRegisterSchemas they are registered; otherwise they only name
	// the subject to look up.
	// Optional.
	KeySchema   *Schema
	ValueSchema *Schema

	// Headers are copied to the record.
	Headers []kgo.RecordHeader

	// Timestamp is the record timestamp.
	// Optional. If zero, the time of the produce call is used.
	Timestamp time.Time
}

// Producer produces Avro encoded records in the Confluent wire format.
//
// The schemas of every topic in Topics are resolved once in Start and kept
// until the Producer is stopped.  Keyed records are partitioned with
// Partition, so a Loader can replay any key from a single partition.
//
// Thread Safety: All methods are safe for concurrent use by multiple goroutines.
type Producer struct {
	// --- STATIC CONFIGURATION (set before Start, immutable after) ---

	// Brokers is the list of Kafka broker addresses.
	// Required. Each address must be in "host:port" format.
	Brokers []string

	// SASL configures SASL authentication.
	// Optional. If nil, no authentication is used.
	SASL sasl.Mechanism

	// TLS configures TLS encryption.
	// Optional. If nil, plaintext connections are used.
	TLS *tls.Config

	// Resolver resolves and registers schemas.
	// Required.
	Resolver *Resolver

	// Topics are the topics whose schemas are bound on Start.  Producing to
	// any other topic fails with ErrTopicNotRegistered.
	// Required. The first topic is the default topic.
	Topics []string

	// ClientID identifies the producer to the brokers.
	// Default: the hostname.
	ClientID string

	// Acks controls broker acknowledgments.
	// Valid: "all", "leader", "none".
	// Default: "all".
	Acks Acks

	// MaxInFlight caps the produce requests in flight per broker.  With
	// Acks "all" it may not exceed 5.
	// Default: 1.
	MaxInFlight int

	// Linger sets the batching delay.
	// Negative values disable lingering.
	// Default: 100ms.
	Linger time.Duration

	// StatsInterval is how often OnStats is called.
	// Negative values disable stats.
	// Default: 15s.
	StatsInterval time.Duration

	// LogConnectionClose logs every closed broker connection.
	// Default: false.
	LogConnectionClose bool

	// AutoRegisterSchemas registers the schemas given on each Message (or
	// bound to its topic) instead of looking up the latest registered ones.
	// Default: false.
	AutoRegisterSchemas bool

	// KeySubjectNameStrategy and ValueSubjectNameStrategy select how subjects
	// are derived.
	// Valid: "topic", "record", "topic_record".
	// Default: "topic".
	KeySubjectNameStrategy   SubjectNameStrategy
	ValueSubjectNameStrategy SubjectNameStrategy

	// Headers are added to every record after the Message's own headers.
	// Multiple values per key produce multiple headers with the same key.
	// Optional.
	Headers map[string][]string

	// ValueTransform converts a non-nil Message.Value before it is encoded.
	// Optional.
	ValueTransform func(any) (any, error)

	// OnDelivery is called once per buffered record with its delivery result.
	// Optional. If nil, deliveries are logged.
	OnDelivery func(*PublishEvent)

	// OnError is called for broker connection failures and failed deliveries.
	// Optional. If nil, errors are logged.
	OnError func(error)

	// OnStats is called every StatsInterval.
	// Optional. If nil, stats are logged.
	OnStats func(*Stats)

	// CompressionCodec specifies the compression algorithm.
	// Valid: "snappy", "gzip", "lz4", "zstd", "none".
	// Default: "none".
	CompressionCodec Compression

	// MaxBufferedRecords sets the maximum number of records to buffer.
	// Zero or negative values disable this limit.
	// Default: 0 (no limit on record count).
	MaxBufferedRecords int

	// MaxBufferedBytes sets the maximum bytes of records to buffer.
	// Zero or negative values disable this limit.
	// Default: 0 (no limit on bytes).
	MaxBufferedBytes int

	// RequestTimeout sets the maximum time to wait for broker responses.
	// Zero or negative values mean no timeout.
	// Default: 0 (no timeout).
	RequestTimeout time.Duration

	// CleanupTimeout sets the maximum time to wait for buffered messages
	// to flush on shutdown. Zero or negative values mean no timeout.
	// Default: 0 (no timeout).
	CleanupTimeout time.Duration

	// MaxRetries sets how many times the Kafka client retries a failed
	// request.  Values <= 0 keep the franz-go default of 20 retries.
	// Default: 0 (franz-go default).
	MaxRetries int

	// AllowAutoTopicCreation enables automatic topic creation when publishing to non-existent topics.
	// Default: false (safer for production - prevents typos from creating topics).
	AllowAutoTopicCreation bool

	// Opts are extra franz-go options appended after the ones derived from
	// the fields above, for tuning this type does not name.
	// Optional.
	Opts []kgo.Opt

	// Logger is the logger instance (same interface as franz-go).
	// Optional. If nil, a no-op logger will be used.
	Logger kgo.Logger

	// InitialPublishEventListeners are event listeners registered when Start() is called.
	// These listeners receive PublishEvent notifications for all produced records.
	// For dynamic listener management after Start(), use AddPublishEventListener().
	// Optional.
	InitialPublishEventListeners []func(*PublishEvent)

	// --- INTERNAL FIELDS (not for user configuration) ---

	// logger is the actively used logger instance (never nil).
	logger kgo.Logger

	// clientFactory is a testing hook.
	clientFactory producerClientFactory

	// clientMu protects client, bindings and stopStats.
	clientMu  sync.Mutex
	client    producerClient
	bindings  map[string]*TopicBinding
	stopStats chan struct{}

	// policy, onDelivery, onError and onStats are fixed by Start.
	policy     NamingPolicy
	serializer *Serializer
	hooks      *producerHooks
	onDelivery func(*PublishEvent)
	onError    func(error)
	onStats    func(*Stats)

	publishEventListeners        eventor.Eventor[func(*PublishEvent)]
	registerInitialListenersOnce sync.Once
}

// AddPublishEventListener adds a listener for when a record has been either
// published or failed to be published.  The returned function removes the
// listener.
//
// Listeners are called from internal goroutines and must be thread-safe.
func (p *Producer) AddPublishEventListener(fn func(*PublishEvent)) func() {
	return p.publishEventListeners.Add(fn)
}

// Start validates the configuration, binds the schemas of every topic in
// Topics and connects to Kafka.
//
// Returns an error if:
//   - Configuration is invalid
//   - A topic has no value schema (ErrSchemaNotFound)
//   - The registry cannot be reached (ErrRegistryUnavailable)
//   - Already started
func (p *Producer) Start(ctx context.Context) error {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()

	if p.client != nil {
		return ErrAlreadyStarted
	}

	if p.clientFactory == nil {
		p.clientFactory = defaultProducerClientFactory
	}
	p.logger = loggerOrNop(p.Logger)
	p.applyDefaults()

	p.registerInitialListenersOnce.Do(func() {
		for _, listener := range p.InitialPublishEventListeners {
			p.publishEventListeners.Add(listener)
		}
	})

	if err := p.validate(); err != nil {
		return err
	}

	bindings, err := p.Resolver.ResolveTopicBindings(ctx, p.Topics)
	if err != nil {
		return err
	}

	p.policy = NamingPolicy{
		Key:          p.KeySubjectNameStrategy,
		Value:        p.ValueSubjectNameStrategy,
		AutoRegister: p.AutoRegisterSchemas,
	}
	p.serializer = NewSerializer(p.Resolver)
	p.onDelivery = pick(p.OnDelivery, logDelivery(p.logger))
	p.onError = pick(p.OnError, logError(p.logger))
	p.onStats = pick(p.OnStats, logStats(p.logger))
	p.hooks = &producerHooks{
		logger:             p.logger,
		logConnectionClose: p.LogConnectionClose,
		onError:            p.onError,
	}

	client, err := p.clientFactory(p.toKgoOpts()...)
	if err != nil {
		return fmt.Errorf("failed to create Kafka client: %w", err)
	}

	p.client = client
	p.bindings = bindings
	if p.StatsInterval > 0 {
		p.stopStats = make(chan struct{})
		go p.emitStats(client, p.stopStats)
	}

	for _, b := range bindings {
		p.logger.Log(kgo.LogLevelDebug, "Bound topic schemas",
			"topic", b.Topic,
			"key_schema_id", schemaID(b.Key),
			"value_schema_id", schemaID(b.Value),
		)
	}
	p.logger.Log(kgo.LogLevelInfo, "Producer started successfully", "client_id", p.ClientID)

	return nil
}

// Stop gracefully shuts down and flushes buffered records.
// Blocks until records are sent or timeout occurs.  Flush failures are
// logged, not returned.
// Safe to call multiple times (idempotent).
func (p *Producer) Stop(ctx context.Context) {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()

	if p.client == nil {
		return
	}

	p.logger.Log(kgo.LogLevelInfo, "Stopping producer, flushing buffered records")

	if p.stopStats != nil {
		close(p.stopStats)
		p.stopStats = nil
	}

	// Apply CleanupTimeout only if the context doesn't already have a deadline.
	if p.CleanupTimeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.CleanupTimeout)
			defer cancel()
		}
	}

	if err := p.client.Flush(ctx); err != nil {
		p.logger.Log(kgo.LogLevelWarn, "flush incomplete during shutdown", "error", err.Error())
	}

	p.client.Close()
	p.client = nil
	p.bindings = nil

	p.logger.Log(kgo.LogLevelInfo, "Producer stopped successfully")
}

// Produce encodes msg and buffers it for delivery.  It returns Queued once the
// record is buffered; the delivery result is passed to OnDelivery (and OnError
// on failure) later.
//
// Schema, topic and encoding problems are returned synchronously with Failed.
func (p *Producer) Produce(ctx context.Context, msg *Message) (Outcome, error) {
	startTime := time.Now()

	client, record, event, err := p.prepare(ctx, msg)
	if err != nil {
		p.dispatchEvent(event, startTime, err)
		return Failed, err
	}

	client.Produce(ctx, record, func(r *kgo.Record, err error) {
		p.delivered(r, *event, startTime, err)
	})

	return Queued, nil
}

// ProduceSync encodes msg and blocks until the broker acknowledges it.  It
// returns Accepted on success and Failed with the error otherwise.
func (p *Producer) ProduceSync(ctx context.Context, msg *Message) (Outcome, error) {
	startTime := time.Now()

	client, record, event, err := p.prepare(ctx, msg)
	if err != nil {
		p.dispatchEvent(event, startTime, err)
		return Failed, err
	}

	r, err := client.ProduceSync(ctx, record).First()
	if r == nil {
		r = record
	}
	if err = p.delivered(r, *event, startTime, err); err != nil {
		return Failed, err
	}
	return Accepted, nil
}

// BufferedRecords returns the current and maximum buffer counts and bytes.
// Returns zeros if the producer is not started.
func (p *Producer) BufferedRecords() (currentRecords, maxRecords int, currentBytes, maxBytes int64) {
	maxRecords = p.MaxBufferedRecords
	maxBytes = int64(p.MaxBufferedBytes)

	p.clientMu.Lock()
	client := p.client
	p.clientMu.Unlock()

	if client == nil {
		return 0, 0, 0, 0
	}

	currentRecords = int(client.BufferedProduceRecords())
	currentBytes = client.BufferedProduceBytes()

	return currentRecords, maxRecords, currentBytes, maxBytes
}

// Bindings returns the schemas bound to each topic, or nil if the producer is
// not started.
func (p *Producer) Bindings() map[string]*TopicBinding {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()

	if p.bindings == nil {
		return nil
	}

	out := make(map[string]*TopicBinding, len(p.bindings))
	for k, v := range p.bindings {
		b := *v
		out[k] = &b
	}
	return out
}

// prepare builds the record for msg.  The returned event is never nil.
func (p *Producer) prepare(ctx context.Context, msg *Message) (producerClient, *kgo.Record, *PublishEvent, error) {
	event := &PublishEvent{
		Partition: -1,
		Offset:    -1,
	}

	if ctx.Err() != nil {
		return nil, nil, event, ctx.Err()
	}

	p.clientMu.Lock()
	client := p.client
	bindings := p.bindings
	p.clientMu.Unlock()

	if client == nil {
		return nil, nil, event, ErrNotStarted
	}

	if msg == nil {
		return nil, nil, event, errors.Join(ErrValidation, fmt.Errorf("message is nil"))
	}

	topic := msg.Topic
	if topic == "" {
		topic = p.Topics[0]
	}
	event.Topic = topic

	binding, ok := bindings[topic]
	if !ok {
		return nil, nil, event, errors.Join(ErrTopicNotRegistered,
			fmt.Errorf("topic %q was not bound when the producer started", topic))
	}

	keyHint := msg.KeySchema
	if keyHint == nil {
		keyHint = binding.Key
	}
	valueHint := msg.ValueSchema
	if valueHint == nil {
		valueHint = binding.Value
	}

	keySchema, valueSchema, err := p.Resolver.EnsureSchemas(ctx, topic, keyHint, valueHint, p.policy)
	if err != nil {
		return nil, nil, event, err
	}

	record := &kgo.Record{
		Topic:     topic,
		Headers:   recordHeaders(msg.Headers, p.Headers),
		Timestamp: msg.Timestamp,
	}

	if msg.Key != nil {
		if keySchema == nil {
			return nil, nil, event, errors.Join(ErrSchemaNotFound,
				fmt.Errorf("topic %q has no key schema but the message has a key", topic))
		}
		record.Key, err = p.serializer.Serialize(ctx, topic, keySchema, msg.Key, FieldKey)
		if err != nil {
			return nil, nil, event, err
		}
		event.KeySchemaID = keySchema.ID
	}

	if value := msg.Value; value != nil {
		if p.ValueTransform != nil {
			value, err = p.ValueTransform(value)
			if err != nil {
				return nil, nil, event, errors.Join(ErrEncoding,
					fmt.Errorf("transforming value for topic %q", topic), err)
			}
		}

		record.Value, err = p.serializer.Serialize(ctx, topic, valueSchema, value, FieldValue)
		if err != nil {
			return nil, nil, event, err
		}
		event.ValueSchemaID = valueSchema.ID
	}

	p.logger.Log(kgo.LogLevelDebug, "Producing record",
		"topic", topic,
		"key_schema_id", event.KeySchemaID,
		"value_schema_id", event.ValueSchemaID,
	)

	return client, record, event, nil
}

// delivered reports the delivery result of a buffered record and returns the
// classified error.
func (p *Producer) delivered(r *kgo.Record, event PublishEvent, since time.Time, err error) error {
	if err != nil {
		err = errors.Join(ErrBroker, fmt.Errorf("delivering to topic %q: %w", r.Topic, err))
	} else {
		event.Partition = r.Partition
		event.Offset = r.Offset
	}

	p.dispatchEvent(&event, since, err)
	p.onDelivery(&event)
	if err != nil {
		p.onError(err)
	}
	return err
}

// dispatchEvent dispatches a PublishEvent to all registered listeners.
func (p *Producer) dispatchEvent(event *PublishEvent, since time.Time, err error) {
	if err != nil {
		event.Error = err
		event.ErrorType = errorType(err)
	}
	event.Duration = time.Since(since)

	p.publishEventListeners.Visit(func(listener func(*PublishEvent)) {
		listener(event)
	})
}

func (p *Producer) emitStats(client producerClient, done <-chan struct{}) {
	ticker := time.NewTicker(p.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.onStats(p.hooks.snapshot(client))
		}
	}
}

func (p *Producer) applyDefaults() {
	if p.ClientID == "" {
		p.ClientID = defaultClientID
		if host, err := os.Hostname(); err == nil && host != "" {
			p.ClientID = host
		}
	}
	if p.Acks == "" {
		p.Acks = AcksAll
	}
	if p.MaxInFlight <= 0 {
		p.MaxInFlight = defaultMaxInFlight
	}
	if p.Linger == 0 {
		p.Linger = defaultLinger
	}
	if p.StatsInterval == 0 {
		p.StatsInterval = defaultStatsInterval
	}
	if p.KeySubjectNameStrategy == "" {
		p.KeySubjectNameStrategy = TopicNameStrategy
	}
	if p.ValueSubjectNameStrategy == "" {
		p.ValueSubjectNameStrategy = TopicNameStrategy
	}
}

// validate validates the Producer's configuration.
func (p *Producer) validate() error {
	if len(p.Brokers) == 0 {
		return errors.Join(ErrValidation, fmt.Errorf("brokers list is required"))
	}

	for i, broker := range p.Brokers {
		if broker == "" {
			return errors.Join(ErrValidation, fmt.Errorf("broker %d is empty", i))
		}
	}

	if len(p.Topics) == 0 {
		return errors.Join(ErrValidation, fmt.Errorf("at least one topic is required"))
	}
	for i, topic := range p.Topics {
		if topic == "" {
			return errors.Join(ErrValidation, fmt.Errorf("topic %d is empty", i))
		}
	}

	if p.Resolver == nil {
		return errors.Join(ErrValidation, fmt.Errorf("resolver is required"))
	}

	if err := validateAcks(p.Acks); err != nil {
		return err
	}
	if err := validateCompression(p.CompressionCodec); err != nil {
		return err
	}
	if err := validateHeaders(p.Headers); err != nil {
		return err
	}

	if p.Acks == AcksAll && p.MaxInFlight > maxIdempotentInFlight {
		return errors.Join(ErrValidation,
			fmt.Errorf("max in flight %d exceeds %d, the limit with acks '%s'",
				p.MaxInFlight, maxIdempotentInFlight, AcksAll))
	}

	policy := NamingPolicy{
		Key:   p.KeySubjectNameStrategy,
		Value: p.ValueSubjectNameStrategy,
	}
	return policy.validate()
}

// toKgoOpts converts the Producer's configuration to franz-go client options.
func (p *Producer) toKgoOpts() []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(p.Brokers...),
		kgo.WithLogger(p.logger),
		kgo.ClientID(p.ClientID),
		kgo.RecordPartitioner(newPartitioner()),
		kgo.MaxProduceRequestsInflightPerBroker(p.MaxInFlight),
		kgo.WithHooks(p.hooks),
		p.CompressionCodec.kgo(),
	}
	opts = append(opts, p.Acks.kgo()...)

	if p.Linger > 0 {
		opts = append(opts, kgo.ProducerLinger(p.Linger))
	}

	if p.AllowAutoTopicCreation {
		opts = append(opts, kgo.AllowAutoTopicCreation())
	}

	if p.SASL != nil {
		opts = append(opts, kgo.SASL(p.SASL))
	}

	if p.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(p.TLS))
	}

	if p.MaxBufferedRecords > 0 {
		opts = append(opts, kgo.MaxBufferedRecords(p.MaxBufferedRecords))
	}

	if p.MaxBufferedBytes > 0 {
		opts = append(opts, kgo.MaxBufferedBytes(p.MaxBufferedBytes))
	}

	if p.RequestTimeout > 0 {
		opts = append(opts, kgo.RequestTimeoutOverhead(p.RequestTimeout))
	}

	// <=0 leaves the franz-go default in place
	if p.MaxRetries > 0 {
		opts = append(opts, kgo.RequestRetries(p.MaxRetries))
	}

	return append(opts, p.Opts...)
}

func schemaID(s *Schema) int {
	if s == nil {
		return 0
	}
	return s.ID
}
