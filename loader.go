// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/xmidt-org/eventor"
)

const (
	defaultPollTimeout      = 100 * time.Millisecond
	defaultWatermarkTimeout = 500 * time.Millisecond
	defaultMaxPollRecords   = 500
)

// KeyFilter decides whether a consumed record belongs to the replayed key.
// Both keys are in wire format (as produced by the Serializer).
type KeyFilter func(query, candidate []byte) bool

// LoadOption customizes a single replay.
type LoadOption func(*loadOptions)

type loadOptions struct {
	filter      KeyFilter
	partitioner PartitionerFunc
}

// WithKeyFilter replaces the default filter, which keeps records whose key is
// byte-for-byte equal to the serialized query key.
func WithKeyFilter(f KeyFilter) LoadOption {
	return func(o *loadOptions) {
		if f != nil {
			o.filter = f
		}
	}
}

// WithPartitioner replaces Partition for locating the key's partition.  Use it
// only when the topic was written with a different partitioner.
func WithPartitioner(p PartitionerFunc) LoadOption {
	return func(o *loadOptions) {
		if p != nil {
			o.partitioner = p
		}
	}
}

// ReplayEvent describes a finished replay.
type ReplayEvent struct {
	// Topic and Partition identify the partition that was read.
	Topic     string
	Partition int32

	// State is the final state: LoadDone or LoadError, or an earlier state
	// when the replay failed before polling.
	State LoadState

	// HighWatermark is the last termination bound observed.
	HighWatermark int64

	// Consumed is the number of records read; Matched passed the key filter.
	Consumed int
	Matched  int

	// Interrupted is true when the caller's context ended the replay early.
	Interrupted bool

	// Error and ErrorType are set for failed replays.
	Error     error
	ErrorType string

	// Duration is the time taken by the replay.
	Duration time.Duration
}

// Loader replays every record ever written under one key.
//
// Records with equal serialized keys are always written to the same partition,
// so the Loader reads only that partition, from offset 0 up to its high
// watermark.  The underlying client stays open between replays.
//
// Replays are serialized; concurrent calls wait for each other.
type Loader struct {
	// Brokers is the list of Kafka broker addresses.
	// Required. Each address must be in "host:port" format.
	Brokers []string

	// SASL configures SASL authentication.
	// Optional. If nil, no authentication is used.
	SASL sasl.Mechanism

	// TLS configures TLS encryption.
	// Optional. If nil, plaintext connections are used.
	TLS *tls.Config

	// Topic is the topic to replay from.
	// Required.
	Topic string

	// NumPartitions is the partition count of Topic.
	// Optional. If zero, it is read from the cluster on Start.
	NumPartitions int

	// KeySchema is the schema keys are serialized with.
	// Required.
	KeySchema *Schema

	// Resolver resolves schemas for key serialization and value decoding.
	// Required. Usually shared with a Producer.
	Resolver *Resolver

	// PollTimeout bounds each poll.
	// Default: 100ms.
	PollTimeout time.Duration

	// WatermarkTimeout bounds each high watermark query.
	// Default: 500ms.
	WatermarkTimeout time.Duration

	// MaxPollRecords caps the records returned by one poll.
	// Default: 500.
	MaxPollRecords int

	// Opts are extra franz-go options appended after the ones derived from
	// the fields above.
	// Optional.
	Opts []kgo.Opt

	// Logger is the logger instance (same interface as franz-go).
	// Optional. If nil, a no-op logger will be used.
	Logger kgo.Logger

	// InitialReplayEventListeners are registered when Start is called.
	// Optional.
	InitialReplayEventListeners []func(*ReplayEvent)

	// --- INTERNAL FIELDS (not for user configuration) ---

	logger        kgo.Logger
	clientFactory loaderClientFactory
	serializer    *Serializer
	numPartitions int

	replayEventListeners         eventor.Eventor[func(*ReplayEvent)]
	registerInitialListenersOnce sync.Once

	// mu guards the clients and serializes replays.
	mu       sync.Mutex
	consumer consumerClient
	admin    adminClient
}

// AddReplayEventListener adds a listener called after every replay.  The
// returned function removes the listener.
func (l *Loader) AddReplayEventListener(fn func(*ReplayEvent)) func() {
	return l.replayEventListeners.Add(fn)
}

// Start validates the configuration, connects to Kafka and, when NumPartitions
// is zero, reads the partition count of Topic.
func (l *Loader) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.consumer != nil {
		return ErrAlreadyStarted
	}

	if l.clientFactory == nil {
		l.clientFactory = defaultLoaderClientFactory
	}
	l.logger = loggerOrNop(l.Logger)
	l.applyDefaults()

	l.registerInitialListenersOnce.Do(func() {
		for _, listener := range l.InitialReplayEventListeners {
			l.replayEventListeners.Add(listener)
		}
	})

	if err := l.validate(); err != nil {
		return err
	}

	consumer, admin, err := l.clientFactory(l.toKgoOpts()...)
	if err != nil {
		return fmt.Errorf("failed to create Kafka client: %w", err)
	}

	n := l.NumPartitions
	if n == 0 {
		n, err = partitionCount(ctx, admin, l.Topic)
		if err != nil {
			consumer.Close()
			return err
		}
	}

	l.consumer = consumer
	l.admin = admin
	l.numPartitions = n
	l.serializer = NewSerializer(l.Resolver)
	l.logger.Log(kgo.LogLevelInfo, "Loader started successfully",
		"topic", l.Topic, "partitions", n)

	return nil
}

// Stop closes the underlying client.  Safe to call multiple times.
func (l *Loader) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.consumer == nil {
		return
	}

	l.consumer.Close()
	l.consumer = nil
	l.admin = nil
	l.logger.Log(kgo.LogLevelInfo, "Loader stopped successfully")
}

// Load replays key and returns the decoded values of its records in offset
// order.  See LoadRecords.
func (l *Loader) Load(ctx context.Context, key any, opts ...LoadOption) ([]any, error) {
	records, err := l.LoadRecords(ctx, key, opts...)
	if err != nil {
		return nil, err
	}

	values := make([]any, 0, len(records))
	for _, r := range records {
		if r.Value == nil {
			values = append(values, nil)
			continue
		}

		v, err := l.serializer.Deserialize(ctx, r.Value)
		if err != nil {
			return nil, fmt.Errorf("%s[%d] offset %d: %w", r.Topic, r.Partition, r.Offset, err)
		}
		values = append(values, v)
	}

	return values, nil
}

// LoadRecords replays key and returns the matching records in offset order.
//
// Only the partition the key hashes to is read, from offset 0 until a record
// at the partition's high watermark minus one has been consumed.  The
// watermark is re-read while consuming, so records appended during the
// replay are included.  An empty partition returns immediately.
//
// Cancelling ctx while polling returns the records matched so far and no
// error.  Broker errors abort the replay.
func (l *Loader) LoadRecords(ctx context.Context, key any, opts ...LoadOption) ([]*kgo.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.consumer == nil {
		return nil, ErrNotStarted
	}

	o := loadOptions{
		filter:      bytes.Equal,
		partitioner: Partition,
	}
	for _, opt := range opts {
		opt(&o)
	}

	rp := &replay{
		loader:  l,
		opts:    o,
		started: time.Now(),
	}

	records, err := rp.run(ctx, key)
	l.dispatchEvent(rp, err)
	return records, err
}

func (l *Loader) dispatchEvent(rp *replay, err error) {
	event := ReplayEvent{
		Topic:         l.Topic,
		Partition:     rp.partition,
		State:         rp.state,
		HighWatermark: rp.high,
		Consumed:      rp.consumed,
		Matched:       len(rp.records),
		Interrupted:   rp.interrupted,
		Duration:      time.Since(rp.started),
	}
	if err != nil {
		event.Error = err
		event.ErrorType = errorType(err)
	}

	l.replayEventListeners.Visit(func(listener func(*ReplayEvent)) {
		listener(&event)
	})
}

func (l *Loader) applyDefaults() {
	if l.PollTimeout <= 0 {
		l.PollTimeout = defaultPollTimeout
	}
	if l.WatermarkTimeout <= 0 {
		l.WatermarkTimeout = defaultWatermarkTimeout
	}
	if l.MaxPollRecords <= 0 {
		l.MaxPollRecords = defaultMaxPollRecords
	}
}

func (l *Loader) validate() error {
	if len(l.Brokers) == 0 {
		return errors.Join(ErrValidation, fmt.Errorf("brokers list is required"))
	}
	for i, broker := range l.Brokers {
		if broker == "" {
			return errors.Join(ErrValidation, fmt.Errorf("broker %d is empty", i))
		}
	}
	if l.Topic == "" {
		return errors.Join(ErrValidation, fmt.Errorf("topic is required"))
	}
	if l.NumPartitions < 0 {
		return errors.Join(ErrValidation, fmt.Errorf("partition count %d is negative", l.NumPartitions))
	}
	if l.KeySchema == nil {
		return errors.Join(ErrValidation, fmt.Errorf("key schema is required"))
	}
	if _, err := l.KeySchema.avroSchema(); err != nil {
		return fmt.Errorf("key schema: %w", err)
	}
	if l.Resolver == nil {
		return errors.Join(ErrValidation, fmt.Errorf("resolver is required"))
	}
	return nil
}

func (l *Loader) toKgoOpts() []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(l.Brokers...),
		kgo.WithLogger(l.logger),
		// Offset 0 may have been removed by retention.
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}

	if l.SASL != nil {
		opts = append(opts, kgo.SASL(l.SASL))
	}
	if l.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(l.TLS))
	}

	return append(opts, l.Opts...)
}

func partitionCount(ctx context.Context, admin adminClient, topic string) (int, error) {
	details, err := admin.ListTopics(ctx, topic)
	if err != nil {
		return 0, errors.Join(ErrBroker, fmt.Errorf("describing topic %q: %w", topic, err))
	}

	detail, ok := details[topic]
	if !ok {
		return 0, errors.Join(ErrBroker, fmt.Errorf("topic %q does not exist", topic))
	}
	if detail.Err != nil {
		return 0, errors.Join(ErrBroker, fmt.Errorf("describing topic %q: %w", topic, detail.Err))
	}
	if len(detail.Partitions) == 0 {
		return 0, errors.Join(ErrBroker, fmt.Errorf("topic %q has no partitions", topic))
	}
	return len(detail.Partitions), nil
}

// replay is the state of one LoadRecords call.
type replay struct {
	loader  *Loader
	opts    loadOptions
	started time.Time

	state     LoadState
	query     []byte
	partition int32

	// high is the termination bound; it only moves forward.
	high int64

	// next is the offset after the last consumed record.
	next int64

	consumed    int
	interrupted bool
	records     []*kgo.Record
}

func (rp *replay) run(ctx context.Context, key any) ([]*kgo.Record, error) {
	l := rp.loader

	if err := rp.assign(ctx, key); err != nil {
		return nil, err
	}
	defer l.consumer.RemoveConsumePartitions(map[string][]int32{
		l.Topic: {rp.partition},
	})

	high, err := rp.watermark(ctx)
	if err != nil {
		return nil, err
	}
	rp.raise(high)
	rp.transition(LoadWatermarkFetched)

	if rp.high == 0 {
		// Polling an empty partition would never see a record to stop on.
		rp.transition(LoadDone)
		return rp.records, nil
	}

	rp.transition(LoadPolling)
	if err := rp.poll(ctx); err != nil {
		rp.transition(LoadError)
		return nil, err
	}

	rp.transition(LoadDone)
	return rp.records, nil
}

func (rp *replay) assign(ctx context.Context, key any) error {
	l := rp.loader

	serialized, err := l.serializer.Serialize(ctx, l.Topic, l.KeySchema, key, FieldKey)
	if err != nil {
		return err
	}

	p := rp.opts.partitioner(serialized, l.numPartitions)
	if p < 0 || p >= l.numPartitions {
		return errors.Join(ErrValidation,
			fmt.Errorf("partitioner returned %d for %d partitions", p, l.numPartitions))
	}

	rp.query = serialized
	//nolint:gosec // G115: bounded by the partition count
	rp.partition = int32(p)

	l.consumer.AddConsumePartitions(map[string]map[int32]kgo.Offset{
		l.Topic: {rp.partition: kgo.NewOffset().At(0)},
	})
	rp.transition(LoadAssigned)
	return nil
}

// watermark queries the current high watermark of the assigned partition,
// bypassing anything the client has cached.
func (rp *replay) watermark(ctx context.Context) (int64, error) {
	l := rp.loader

	ctx, cancel := context.WithTimeout(ctx, l.WatermarkTimeout)
	defer cancel()

	offsets, err := l.admin.ListEndOffsets(ctx, l.Topic)
	if err != nil {
		return 0, errors.Join(ErrBroker,
			fmt.Errorf("listing end offsets of %s[%d]: %w", l.Topic, rp.partition, err))
	}

	o, ok := offsets[l.Topic][rp.partition]
	if !ok {
		return 0, errors.Join(ErrBroker,
			fmt.Errorf("no end offset returned for %s[%d]", l.Topic, rp.partition))
	}
	if o.Err != nil {
		return 0, errors.Join(ErrBroker,
			fmt.Errorf("listing end offsets of %s[%d]: %w", l.Topic, rp.partition, o.Err))
	}

	return o.Offset, nil
}

func (rp *replay) raise(high int64) {
	if high > rp.high {
		rp.high = high
	}
}

func (rp *replay) transition(next LoadState) {
	rp.state = next
	rp.loader.logger.Log(kgo.LogLevelDebug, "replay state changed",
		"topic", rp.loader.Topic,
		"partition", rp.partition,
		"state", next.String(),
		"high_watermark", rp.high,
	)
}

func (rp *replay) poll(ctx context.Context) error {
	l := rp.loader

	l.logger.Log(kgo.LogLevelInfo, "Loading key history",
		"topic", l.Topic, "partition", rp.partition, "high_watermark", rp.high)

	for {
		if ctx.Err() != nil {
			rp.interrupt()
			return nil
		}

		pollCtx, cancel := context.WithTimeout(ctx, l.PollTimeout)
		fetches := l.consumer.PollRecords(pollCtx, l.MaxPollRecords)
		cancel()

		if ctx.Err() != nil {
			rp.interrupt()
			return nil
		}

		done, err := rp.consume(ctx, fetches)
		if err != nil {
			return err
		}
		if rp.interrupted {
			return nil
		}
		if done {
			l.logger.Log(kgo.LogLevelInfo, "Reached high watermark",
				"topic", l.Topic, "partition", rp.partition,
				"high_watermark", rp.high, "matched", len(rp.records))
			return nil
		}
	}
}

func (rp *replay) interrupt() {
	rp.interrupted = true
	rp.loader.logger.Log(kgo.LogLevelWarn, "Replay interrupted, returning partial result",
		"topic", rp.loader.Topic, "partition", rp.partition,
		"next_offset", rp.next, "matched", len(rp.records))
}

// consume processes one poll result and reports whether the high watermark
// has been reached.  When ctx ends during the watermark refresh the records
// already polled are kept and the replay is marked interrupted.
func (rp *replay) consume(ctx context.Context, fetches kgo.Fetches) (bool, error) {
	l := rp.loader

	if fetches.IsClientClosed() {
		return false, errors.Join(ErrBroker, kgo.ErrClientClosed)
	}

	var (
		batch     []*kgo.Record
		fetchHigh int64
		caughtUp  bool
	)

	for _, f := range fetches {
		for _, t := range f.Topics {
			for _, p := range t.Partitions {
				if p.Err != nil {
					if errors.Is(p.Err, context.DeadlineExceeded) || errors.Is(p.Err, context.Canceled) {
						// The poll timed out without a record.
						continue
					}
					return false, errors.Join(ErrBroker,
						fmt.Errorf("consuming %s[%d]: %w", t.Topic, p.Partition, p.Err))
				}

				if t.Topic != l.Topic || p.Partition != rp.partition {
					continue
				}

				fetchHigh = max(fetchHigh, p.HighWatermark)
				if len(p.Records) == 0 && p.HighWatermark <= rp.next {
					caughtUp = true
				}
				batch = append(batch, p.Records...)
			}
		}
	}

	if len(batch) == 0 {
		if !caughtUp {
			return false, nil
		}

		// The broker says we are at the end.  That is only a hint; the
		// watermark decides.
		high, err := rp.watermark(ctx)
		if err != nil {
			if ctx.Err() != nil {
				rp.interrupt()
				return true, nil
			}
			return false, err
		}
		rp.raise(high)
		return rp.next >= rp.high, nil
	}

	rp.raise(fetchHigh)
	high, err := rp.watermark(ctx)
	if err != nil {
		if ctx.Err() == nil {
			return false, err
		}
		// Keep what this poll already returned, up to the bound known so far.
		rp.take(batch)
		rp.interrupt()
		return true, nil
	}
	rp.raise(high)

	return rp.take(batch), nil
}

// take runs the key filter over batch and reports whether the high watermark
// has been reached.
func (rp *replay) take(batch []*kgo.Record) bool {
	l := rp.loader

	for _, r := range batch {
		rp.consumed++
		rp.next = r.Offset + 1

		if rp.opts.filter(rp.query, r.Key) {
			rp.records = append(rp.records, r)
			l.logger.Log(kgo.LogLevelDebug, "Loaded record",
				"topic", l.Topic, "partition", rp.partition, "offset", r.Offset)
		}

		if rp.next >= rp.high {
			return true
		}
	}

	return false
}
