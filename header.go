// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/twmb/franz-go/pkg/kgo"
)

// recordHeaders builds the headers of a record: the message's own headers
// followed by the producer's static headers, in key order.  Multiple values
// per key produce multiple headers with the same key.
func recordHeaders(own []kgo.RecordHeader, static map[string][]string) []kgo.RecordHeader {
	if len(static) == 0 {
		return own
	}

	// Estimate 2 values per key on average
	headers := make([]kgo.RecordHeader, 0, len(own)+len(static)*2)
	headers = append(headers, own...)

	for _, key := range slices.Sorted(maps.Keys(static)) {
		for _, value := range static[key] {
			headers = append(headers, kgo.RecordHeader{
				Key:   key,
				Value: []byte(value),
			})
		}
	}

	return headers
}

// validateHeaders rejects empty header keys.
func validateHeaders(static map[string][]string) error {
	for key := range static {
		if key == "" {
			return errors.Join(ErrValidation, fmt.Errorf("header key is empty"))
		}
	}
	return nil
}
