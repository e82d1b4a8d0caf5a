// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/sr"
	"golang.org/x/sync/singleflight"
)

// registryTimeout bounds a registry request shared by concurrent callers.
// Shared requests run detached from any single caller's context.
const registryTimeout = 10 * time.Second

// TopicBinding holds the schemas bound to a topic when a Producer starts.
type TopicBinding struct {
	// Topic is the Kafka topic name.
	Topic string

	// Key is the latest "{topic}-key" schema, or nil when the topic has no
	// key subject (pub/sub topics that never set a key).
	Key *Schema

	// Value is the latest "{topic}-value" schema.  Never nil.
	Value *Schema
}

// Resolver resolves, caches and optionally registers schemas against a
// schema registry.
//
// One Resolver is meant to be shared by every Producer, Loader and Serializer
// in a process.  It is safe for concurrent use.  Cached entries are never
// refreshed; a schema registered after a subject was first looked up is only
// seen by a new Resolver.
type Resolver struct {
	client registryClient
	group  singleflight.Group

	mu         sync.RWMutex
	latest     map[string]*Schema
	registered map[string]*Schema
	byID       map[int]*Schema
}

// NewResolver creates a Resolver talking to the registry at the given URLs.
// Additional sr options (basic auth, TLS, user agent, ...) are passed through.
func NewResolver(urls []string, opts ...sr.ClientOpt) (*Resolver, error) {
	if len(urls) == 0 {
		return nil, errors.Join(ErrValidation, fmt.Errorf("schema registry urls are required"))
	}

	cl, err := sr.NewClient(append([]sr.ClientOpt{sr.URLs(urls...)}, opts...)...)
	if err != nil {
		return nil, errors.Join(ErrValidation, fmt.Errorf("failed to create schema registry client: %w", err))
	}

	return newResolver(cl), nil
}

func newResolver(client registryClient) *Resolver {
	return &Resolver{
		client:     client,
		latest:     make(map[string]*Schema),
		registered: make(map[string]*Schema),
		byID:       make(map[int]*Schema),
	}
}

// Latest returns the latest schema registered under subject.
func (r *Resolver) Latest(ctx context.Context, subject string) (*Schema, error) {
	r.mu.RLock()
	s, ok := r.latest[subject]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	v, err := r.shared(ctx, "latest/"+subject, func(ctx context.Context) (any, error) {
		ss, err := r.client.SchemaByVersion(ctx, subject, -1)
		if err != nil {
			return nil, registryError("subject "+strconv.Quote(subject), err)
		}

		s, err := schemaFromSubject(ss)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.latest[subject] = s
		r.byID[s.ID] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Schema), nil
}

// Register registers schema under subject and returns the registered form.
// Registering an identical definition again returns the same version.
func (r *Resolver) Register(ctx context.Context, subject string, schema *Schema) (*Schema, error) {
	if schema == nil {
		return nil, errors.Join(ErrValidation, fmt.Errorf("cannot register a nil schema under %q", subject))
	}
	parsed, err := schema.avroSchema()
	if err != nil {
		return nil, fmt.Errorf("register subject %q: %w", subject, err)
	}

	key := subject + "\x00" + schema.Text

	r.mu.RLock()
	s, ok := r.registered[key]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	v, err := r.shared(ctx, "register/"+key, func(ctx context.Context) (any, error) {
		ss, err := r.client.CreateSchema(ctx, subject, schema.registryForm())
		if err != nil {
			return nil, registryError("register subject "+strconv.Quote(subject), err)
		}

		s := &Schema{
			Subject: subject,
			ID:      ss.ID,
			Version: ss.Version,
			Text:    schema.Text,
			parsed:  parsed,
		}

		r.mu.Lock()
		r.registered[key] = s
		r.byID[s.ID] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Schema), nil
}

// SchemaByID returns the schema with the given registry-wide ID.
func (r *Resolver) SchemaByID(ctx context.Context, id int) (*Schema, error) {
	r.mu.RLock()
	s, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	v, err := r.shared(ctx, "id/"+strconv.Itoa(id), func(ctx context.Context) (any, error) {
		raw, err := r.client.SchemaByID(ctx, id)
		if err != nil {
			return nil, registryError("schema id "+strconv.Itoa(id), err)
		}

		s, err := ParseSchema(raw.Schema)
		if err != nil {
			return nil, fmt.Errorf("schema id %d: %w", id, err)
		}
		s.ID = id

		r.mu.Lock()
		r.byID[id] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Schema), nil
}

// shared runs fn once for all concurrent callers with the same key.  fn gets
// a context that keeps ctx's values but not its cancellation, so one caller
// giving up does not fail the others.  Each caller still returns as soon as
// its own ctx ends.
func (r *Resolver) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := r.group.DoChan(key, func() (any, error) {
		detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), registryTimeout)
		defer cancel()
		return fn(detached)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, errors.Join(ErrRegistryUnavailable, ctx.Err())
	}
}

// ResolveTopicBindings looks up the "{topic}-key" and "{topic}-value" subjects
// for every topic.  A missing key subject leaves TopicBinding.Key nil; a
// missing value subject fails with ErrSchemaNotFound.
func (r *Resolver) ResolveTopicBindings(ctx context.Context, topics []string) (map[string]*TopicBinding, error) {
	bindings := make(map[string]*TopicBinding, len(topics))

	for _, topic := range topics {
		if _, ok := bindings[topic]; ok {
			continue
		}

		key, err := r.Latest(ctx, topic+FieldKey.Suffix())
		if err != nil {
			if !errors.Is(err, ErrSchemaNotFound) {
				return nil, err
			}
			key = nil
		}

		value, err := r.Latest(ctx, topic+FieldValue.Suffix())
		if err != nil {
			return nil, fmt.Errorf("topic %q: %w", topic, err)
		}

		bindings[topic] = &TopicBinding{
			Topic: topic,
			Key:   key,
			Value: value,
		}
	}

	return bindings, nil
}

// Subject returns the subject name for a topic and schema under strategy,
// including the field suffix.
func (r *Resolver) Subject(topic string, schema *Schema, strategy SubjectNameStrategy, f Field) (string, error) {
	base, err := strategy.subject(topic, schema)
	if err != nil {
		return "", err
	}
	return base + f.Suffix(), nil
}

// EnsureSchemas returns the authoritative key and value schemas to produce
// with.
//
// Subjects are derived with the policy's strategies.  With AutoRegister set
// the given schemas are registered under those subjects; otherwise the latest
// registered schema of each subject is returned and the given schemas are
// only used to derive subject names.  The key schema is nil when no key schema
// was given and the registry has none for the key subject.
func (r *Resolver) EnsureSchemas(ctx context.Context, topic string, key, value *Schema, policy NamingPolicy) (*Schema, *Schema, error) {
	resolvedKey, err := r.ensure(ctx, topic, key, FieldKey, policy)
	if err != nil {
		return nil, nil, err
	}

	resolvedValue, err := r.ensure(ctx, topic, value, FieldValue, policy)
	if err != nil {
		return nil, nil, err
	}

	return resolvedKey, resolvedValue, nil
}

func (r *Resolver) ensure(ctx context.Context, topic string, hint *Schema, f Field, policy NamingPolicy) (*Schema, error) {
	strategy := policy.strategy(f)
	if err := validateSubjectNameStrategy(strategy); err != nil {
		return nil, err
	}

	optionalKey := f == FieldKey && hint == nil
	if optionalKey && strategy != TopicNameStrategy {
		// No schema to take a record name from, and no key to encode.
		return nil, nil
	}

	subject, err := r.Subject(topic, hint, strategy, f)
	if err != nil {
		return nil, err
	}

	if policy.AutoRegister {
		if hint == nil {
			if optionalKey {
				return nil, nil
			}
			return nil, errors.Join(ErrValidation,
				fmt.Errorf("auto registration of %q requires a %s schema", subject, f))
		}
		return r.Register(ctx, subject, hint)
	}

	s, err := r.Latest(ctx, subject)
	if err != nil {
		if optionalKey && errors.Is(err, ErrSchemaNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// registryError classifies a registry failure: 404 answers become
// ErrSchemaNotFound, everything else ErrRegistryUnavailable.
func registryError(what string, err error) error {
	var re *sr.ResponseError
	if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
		return errors.Join(ErrSchemaNotFound, fmt.Errorf("%s: %w", what, err))
	}
	return errors.Join(ErrRegistryUnavailable, fmt.Errorf("%s: %w", what, err))
}
