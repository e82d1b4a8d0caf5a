// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/hamba/avro/v2"
	"github.com/twmb/franz-go/pkg/sr"
)

// Serializer encodes values in the Confluent wire format: a magic byte and the
// big-endian registry schema ID, followed by the Avro binary encoding.
// Consumers decode it without any out-of-band schema knowledge.
type Serializer struct {
	resolver *Resolver
}

// NewSerializer returns a Serializer backed by resolver.
func NewSerializer(resolver *Resolver) *Serializer {
	return &Serializer{resolver: resolver}
}

// Serialize encodes value with schema for the given topic and field.
//
// A schema without a registry ID is registered under "{topic}-key" or
// "{topic}-value" the first time it is used.  Registry errors are returned as
// ErrSchemaNotFound or ErrRegistryUnavailable and are not retried.
func (s *Serializer) Serialize(ctx context.Context, topic string, schema *Schema, value any, f Field) ([]byte, error) {
	if schema == nil {
		return nil, errors.Join(ErrSchemaNotFound,
			fmt.Errorf("no %s schema for topic %q", f, topic))
	}

	parsed, err := schema.avroSchema()
	if err != nil {
		return nil, fmt.Errorf("%s schema for topic %q: %w", f, topic, err)
	}

	if schema.ID == 0 {
		registered, err := s.resolver.Register(ctx, topic+f.Suffix(), schema)
		if err != nil {
			return nil, err
		}
		schema = registered
	}

	var header sr.ConfluentHeader
	b, err := header.AppendEncode(nil, schema.ID, nil)
	if err != nil {
		return nil, errors.Join(ErrEncoding, err)
	}

	body, err := avro.Marshal(parsed, value)
	if err != nil {
		return nil, errors.Join(ErrEncoding,
			fmt.Errorf("%s for topic %q does not match schema id %d", f, topic, schema.ID),
			err,
		)
	}

	return append(b, body...), nil
}

// Deserialize decodes a wire-format payload into its native Go form
// (map[string]any for records), fetching the writer schema by ID.
func (s *Serializer) Deserialize(ctx context.Context, b []byte) (any, error) {
	var header sr.ConfluentHeader
	id, body, err := header.DecodeID(b)
	if err != nil {
		return nil, errors.Join(ErrEncoding, err)
	}

	schema, err := s.resolver.SchemaByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var v any
	if err := avro.Unmarshal(schema.Avro(), body, &v); err != nil {
		return nil, errors.Join(ErrEncoding,
			fmt.Errorf("payload does not match schema id %d", id),
			err,
		)
	}
	return v, nil
}
