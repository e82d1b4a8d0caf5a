// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

// LoadState is a step of a single replay.
//
//	LoadInit -> LoadAssigned -> LoadWatermarkFetched -> LoadPolling -> LoadDone
//	                                     |                   |
//	                                     +--> LoadDone       +--> LoadError
type LoadState int

const (
	// LoadInit is the state before the key has been serialized.
	LoadInit LoadState = iota

	// LoadAssigned indicates the consumer is assigned to the key's partition.
	LoadAssigned

	// LoadWatermarkFetched indicates the termination bound is known.
	LoadWatermarkFetched

	// LoadPolling indicates records are being consumed.
	LoadPolling

	// LoadDone indicates the replay finished, completely or by interrupt.
	LoadDone

	// LoadError indicates polling failed with a broker error.
	LoadError
)

// String returns the string representation of the LoadState.
func (s LoadState) String() string {
	switch s {
	case LoadInit:
		return "Init"
	case LoadAssigned:
		return "Assigned"
	case LoadWatermarkFetched:
		return "WatermarkFetched"
	case LoadPolling:
		return "Polling"
	case LoadDone:
		return "Done"
	case LoadError:
		return "Error"
	default:
		return "Unknown"
	}
}
