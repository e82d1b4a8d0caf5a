// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

import (
	"errors"
	"fmt"

	"github.com/hamba/avro/v2"
	"github.com/twmb/franz-go/pkg/sr"
)

// Field selects which half of a record a schema describes.
type Field int

const (
	// FieldKey is the record key.
	FieldKey Field = iota

	// FieldValue is the record value.
	FieldValue
)

// Suffix returns the registry subject suffix for the field.
func (f Field) Suffix() string {
	if f == FieldKey {
		return "-key"
	}
	return "-value"
}

// String returns "key" or "value".
func (f Field) String() string {
	if f == FieldKey {
		return "key"
	}
	return "value"
}

// Schema is an Avro schema, optionally tied to a registry subject.
//
// A Schema built with ParseSchema has no ID.  It can be passed to the producer
// as a naming hint or registered; schemas returned by the Resolver carry the
// registry's subject, ID and version.
type Schema struct {
	// Subject is the registry subject the schema was resolved under.
	Subject string

	// ID is the registry-wide schema ID (0 when unregistered).
	ID int

	// Version is the version of the schema within Subject.
	Version int

	// Text is the schema definition as registered.
	Text string

	parsed avro.Schema
}

// ParseSchema parses an Avro schema definition.
func ParseSchema(text string) (*Schema, error) {
	parsed, err := avro.Parse(text)
	if err != nil {
		return nil, errors.Join(ErrValidation, fmt.Errorf("invalid avro schema: %w", err))
	}

	return &Schema{
		Text:   text,
		parsed: parsed,
	}, nil
}

// MustParseSchema is like ParseSchema but panics on error.
func MustParseSchema(text string) *Schema {
	s, err := ParseSchema(text)
	if err != nil {
		panic(err)
	}
	return s
}

// schemaFromSubject builds a Schema from a registry answer.
func schemaFromSubject(ss sr.SubjectSchema) (*Schema, error) {
	s, err := ParseSchema(ss.Schema.Schema)
	if err != nil {
		return nil, fmt.Errorf("subject %q version %d: %w", ss.Subject, ss.Version, err)
	}

	s.Subject = ss.Subject
	s.ID = ss.ID
	s.Version = ss.Version
	return s, nil
}

// Avro returns the parsed Avro schema.  A Schema built as a literal is parsed
// from Text on each call; nil is returned when Text is not a valid schema.
func (s *Schema) Avro() avro.Schema {
	parsed, _ := s.avroSchema()
	return parsed
}

func (s *Schema) avroSchema() (avro.Schema, error) {
	if s.parsed != nil {
		return s.parsed, nil
	}
	parsed, err := avro.Parse(s.Text)
	if err != nil {
		return nil, errors.Join(ErrValidation, fmt.Errorf("invalid avro schema: %w", err))
	}
	return parsed, nil
}

// FullName returns the fully-qualified name of a named schema (record, enum or
// fixed), or "" for primitive and complex unnamed schemas.
func (s *Schema) FullName() string {
	if s == nil {
		return ""
	}
	if named, ok := s.Avro().(avro.NamedSchema); ok {
		return named.FullName()
	}
	return ""
}

func (s *Schema) registryForm() sr.Schema {
	return sr.Schema{
		Schema: s.Text,
		Type:   sr.TypeAvro,
	}
}
