// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

import (
	"errors"
	"fmt"
)

// SubjectNameStrategy specifies how a registry subject is derived from a topic
// and a schema.  The field suffix ("-key" / "-value") is appended afterwards.
type SubjectNameStrategy string

const (
	// TopicNameStrategy uses the topic name: "orders" -> "orders-value".
	TopicNameStrategy SubjectNameStrategy = "topic"

	// RecordNameStrategy uses the schema's fully-qualified record name:
	// "com.example.Order" -> "com.example.Order-value".
	RecordNameStrategy SubjectNameStrategy = "record"

	// TopicRecordNameStrategy joins both with a dash:
	// "orders-com.example.Order-value".
	TopicRecordNameStrategy SubjectNameStrategy = "topic_record"
)

var subjectNameStrategyTypes map[SubjectNameStrategy]struct{}
var subjectNameStrategyList []string

func init() {
	list := []SubjectNameStrategy{
		TopicNameStrategy,
		RecordNameStrategy,
		TopicRecordNameStrategy,
	}

	subjectNameStrategyTypes = make(map[SubjectNameStrategy]struct{})
	for _, s := range list {
		subjectNameStrategyTypes[s] = struct{}{}
		subjectNameStrategyList = append(subjectNameStrategyList, string(s))
	}
}

// NamingPolicy is the pair of strategies plus the registration mode applied
// by Resolver.EnsureSchemas.
type NamingPolicy struct {
	// Key is the strategy for key subjects.  Empty means TopicNameStrategy.
	Key SubjectNameStrategy

	// Value is the strategy for value subjects.  Empty means TopicNameStrategy.
	Value SubjectNameStrategy

	// AutoRegister registers the supplied schemas instead of looking up the
	// latest registered version.
	AutoRegister bool
}

func (np NamingPolicy) strategy(f Field) SubjectNameStrategy {
	s := np.Value
	if f == FieldKey {
		s = np.Key
	}
	if s == "" {
		return TopicNameStrategy
	}
	return s
}

func (np NamingPolicy) validate() error {
	if err := validateSubjectNameStrategy(np.strategy(FieldKey)); err != nil {
		return fmt.Errorf("key: %w", err)
	}
	if err := validateSubjectNameStrategy(np.strategy(FieldValue)); err != nil {
		return fmt.Errorf("value: %w", err)
	}
	return nil
}

// subject derives the subject name, without the field suffix.
func (s SubjectNameStrategy) subject(topic string, schema *Schema) (string, error) {
	switch s {
	case TopicNameStrategy:
		return topic, nil

	case RecordNameStrategy, TopicRecordNameStrategy:
		name := schema.FullName()
		if name == "" {
			return "", errors.Join(ErrValidation,
				fmt.Errorf("subject name strategy '%s' requires a named schema", s))
		}
		if s == RecordNameStrategy {
			return name, nil
		}
		return topic + "-" + name, nil
	}

	return "", unknownStrategyError(s)
}

// validateSubjectNameStrategy validates the SubjectNameStrategy enum value.
func validateSubjectNameStrategy(s SubjectNameStrategy) error {
	if _, ok := subjectNameStrategyTypes[s]; ok {
		return nil
	}
	return unknownStrategyError(s)
}

func unknownStrategyError(s SubjectNameStrategy) error {
	return errors.Join(ErrValidation, ErrUnknownSubjectNameStrategy,
		fmt.Errorf("subject name strategy '%s' is invalid: must be %s", s, quoteList(subjectNameStrategyList)))
}
