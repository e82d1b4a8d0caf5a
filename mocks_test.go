// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sr"
)

// mockProducerClient is a mock implementation of producerClient for testing.
type mockProducerClient struct {
	mock.Mock
}

func (m *mockProducerClient) Produce(ctx context.Context, r *kgo.Record, cb func(*kgo.Record, error)) {
	m.Called(ctx, r, cb)
}

func (m *mockProducerClient) Flush(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockProducerClient) Close() {
	m.Called()
}

func (m *mockProducerClient) BufferedProduceRecords() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

func (m *mockProducerClient) BufferedProduceBytes() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

func (m *mockProducerClient) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	args := m.Called(ctx, rs)
	return args.Get(0).(kgo.ProduceResults)
}

// memRegistry is an in-memory schema registry.  Unknown subjects and IDs are
// answered with 404 like the real registry.
type memRegistry struct {
	mu       sync.Mutex
	nextID   int
	subjects map[string][]sr.SubjectSchema
	byID     map[int]sr.Schema
	calls    map[string]int

	// fail, when set, is returned by every call.
	fail error
}

func newMemRegistry() *memRegistry {
	return &memRegistry{
		nextID:   1,
		subjects: make(map[string][]sr.SubjectSchema),
		byID:     make(map[int]sr.Schema),
		calls:    make(map[string]int),
	}
}

// add registers text under subject and returns the registered form.
func (r *memRegistry) add(subject, text string) sr.SubjectSchema {
	ss, err := r.CreateSchema(context.Background(), subject, sr.Schema{Schema: text, Type: sr.TypeAvro})
	if err != nil {
		panic(err)
	}
	return ss
}

func (r *memRegistry) count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func (r *memRegistry) SchemaByVersion(_ context.Context, subject string, version int) (sr.SubjectSchema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["SchemaByVersion"]++

	if r.fail != nil {
		return sr.SubjectSchema{}, r.fail
	}

	versions := r.subjects[subject]
	if len(versions) == 0 {
		return sr.SubjectSchema{}, notFound(40401, "Subject '"+subject+"' not found.")
	}
	if version == -1 {
		return versions[len(versions)-1], nil
	}
	for _, ss := range versions {
		if ss.Version == version {
			return ss, nil
		}
	}
	return sr.SubjectSchema{}, notFound(40402, "Version not found.")
}

func (r *memRegistry) CreateSchema(_ context.Context, subject string, s sr.Schema) (sr.SubjectSchema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["CreateSchema"]++

	if r.fail != nil {
		return sr.SubjectSchema{}, r.fail
	}

	for _, ss := range r.subjects[subject] {
		if ss.Schema.Schema == s.Schema {
			return ss, nil
		}
	}

	id := 0
	for existing, schema := range r.byID {
		if schema.Schema == s.Schema {
			id = existing
		}
	}
	if id == 0 {
		id = r.nextID
		r.nextID++
		r.byID[id] = s
	}

	ss := sr.SubjectSchema{
		Subject: subject,
		Version: len(r.subjects[subject]) + 1,
		ID:      id,
		Schema:  s,
	}
	r.subjects[subject] = append(r.subjects[subject], ss)
	return ss, nil
}

func (r *memRegistry) SchemaByID(_ context.Context, id int) (sr.Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["SchemaByID"]++

	if r.fail != nil {
		return sr.Schema{}, r.fail
	}

	s, ok := r.byID[id]
	if !ok {
		return sr.Schema{}, notFound(40403, "Schema not found")
	}
	return s, nil
}

func notFound(code int, msg string) error {
	return &sr.ResponseError{
		StatusCode: http.StatusNotFound,
		ErrorCode:  code,
		Message:    msg,
	}
}

// scriptedConsumer returns the scripted poll results in order.  Once the
// script is exhausted every poll fails, so a replay that does not stop when
// it should ends with an error instead of hanging.
type scriptedConsumer struct {
	mu      sync.Mutex
	polls   []kgo.Fetches
	polled  int
	added   []map[string]map[int32]kgo.Offset
	removed []map[string][]int32
	closed  bool

	// onPoll, when set, is called with the 1-based poll number before the
	// scripted result is returned.
	onPoll func(n int)
}

var errScriptExhausted = errors.New("poll script exhausted")

func (c *scriptedConsumer) AddConsumePartitions(p map[string]map[int32]kgo.Offset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = append(c.added, p)
}

func (c *scriptedConsumer) RemoveConsumePartitions(p map[string][]int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = append(c.removed, p)
}

func (c *scriptedConsumer) PollRecords(context.Context, int) kgo.Fetches {
	c.mu.Lock()
	n := c.polled
	c.polled++
	onPoll := c.onPoll
	c.mu.Unlock()

	if onPoll != nil {
		onPoll(n + 1)
	}

	if n < len(c.polls) {
		return c.polls[n]
	}
	return kgo.NewErrFetch(errScriptExhausted)
}

func (c *scriptedConsumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *scriptedConsumer) pollCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polled
}

// fakeAdmin answers watermark queries from a list of successive high
// watermarks; the last one repeats.
type fakeAdmin struct {
	mu        sync.Mutex
	topic     string
	partition int32
	highs     []int64
	calls     int
	err       error

	// onCall, when set, is called with the 1-based query number; a non-nil
	// result fails that query.
	onCall func(n int) error

	partitions int
}

func (a *fakeAdmin) ListEndOffsets(_ context.Context, topics ...string) (kadm.ListedOffsets, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := min(a.calls, len(a.highs)-1)
	a.calls++

	if a.err != nil {
		return nil, a.err
	}
	if a.onCall != nil {
		if err := a.onCall(a.calls); err != nil {
			return nil, err
		}
	}

	out := make(kadm.ListedOffsets)
	for _, topic := range topics {
		out[topic] = map[int32]kadm.ListedOffset{
			a.partition: {
				Topic:     topic,
				Partition: a.partition,
				Offset:    a.highs[i],
			},
		}
	}
	return out, nil
}

func (a *fakeAdmin) ListTopics(_ context.Context, topics ...string) (kadm.TopicDetails, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(kadm.TopicDetails)
	for _, topic := range topics {
		if topic != a.topic {
			continue
		}
		partitions := make(kadm.PartitionDetails, a.partitions)
		for i := 0; i < a.partitions; i++ {
			//nolint:gosec // G115: small test counts
			partitions[int32(i)] = kadm.PartitionDetail{Topic: topic, Partition: int32(i)}
		}
		out[topic] = kadm.TopicDetail{Topic: topic, Partitions: partitions}
	}
	return out, nil
}

func (a *fakeAdmin) watermarkCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// fetchOf builds a poll result for one partition.
func fetchOf(topic string, partition int32, high int64, records ...*kgo.Record) kgo.Fetches {
	return kgo.Fetches{{
		Topics: []kgo.FetchTopic{{
			Topic: topic,
			Partitions: []kgo.FetchPartition{{
				Partition:     partition,
				HighWatermark: high,
				Records:       records,
			}},
		}},
	}}
}
