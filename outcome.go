// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

// Outcome represents the result of a Produce or ProduceSync call.
type Outcome int

const (
	// Accepted indicates the record was delivered AND confirmed by Kafka.
	// Only returned by ProduceSync.
	Accepted Outcome = iota

	// Queued indicates the record was locally buffered but NOT confirmed with
	// the target Kafka broker.  The delivery result arrives through the
	// OnDelivery or OnError callback.
	Queued

	// Failed indicates the record was rejected before it was buffered, or
	// that synchronous delivery failed.
	Failed
)

// String returns the string representation of the Outcome.
func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "Accepted"
	case Queued:
		return "Queued"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}
