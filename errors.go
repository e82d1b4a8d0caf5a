// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

import "errors"

var (
	// ErrSchemaNotFound indicates the registry has no schema for a subject (or ID).
	ErrSchemaNotFound = &metricError{
		metric:  "schema_not_found",
		message: "schema not found",
	}

	// ErrRegistryUnavailable indicates the schema registry could not answer.
	ErrRegistryUnavailable = &metricError{
		metric:  "registry_unavailable",
		message: "schema registry unavailable",
	}

	// ErrUnknownSubjectNameStrategy indicates a subject naming strategy that is
	// not one of the known values.  Always fatal.
	ErrUnknownSubjectNameStrategy = &metricError{
		metric:  "unknown_subject_name_strategy",
		message: "unknown subject name strategy",
	}

	// ErrTopicNotRegistered indicates a produce to a topic whose schemas were
	// not bound when the producer started.
	ErrTopicNotRegistered = &metricError{
		metric:  "topic_not_registered",
		message: "topic not registered",
	}

	// ErrEncoding indicates Avro encoding or decoding failed.
	ErrEncoding = &metricError{
		metric:  "encoding_error",
		message: "encoding failed",
	}

	// ErrBroker indicates Kafka reported an error while producing or consuming.
	ErrBroker = &metricError{
		metric:  "broker_error",
		message: "broker error",
	}

	// ErrValidation indicates configuration validation failed.
	ErrValidation = &metricError{
		metric:  "validation_error",
		message: "validation error",
	}

	// ErrNotStarted indicates the producer or loader has not been started.
	ErrNotStarted = &metricError{
		metric:  "not_started",
		message: "not started",
	}

	// ErrAlreadyStarted indicates the producer or loader has already been started.
	ErrAlreadyStarted = &metricError{
		metric:  "already_started",
		message: "already started",
	}
)

// metricError is a sentinel error carrying a label for metrics and
// observability.  The metric field groups errors in metrics systems.
type metricError struct {
	metric  string // Label for metrics (e.g., "schema_not_found")
	message string // Human-readable message
}

// Error implements the error interface.
func (e *metricError) Error() string {
	return e.message
}

func (e *metricError) Metric() string {
	return e.metric
}

func (e *metricError) Is(target error) bool {
	if t, ok := target.(*metricError); ok {
		return e.message == t.message
	}
	return false
}

// errorType extracts the metric label from the first metricError in the chain.
func errorType(err error) string {
	if err == nil {
		return ""
	}

	var me *metricError
	if errors.As(err, &me) {
		return me.Metric()
	}

	return "unknown"
}
