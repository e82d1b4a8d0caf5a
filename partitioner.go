// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

import (
	"hash/crc32"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"
)

// PartitionerFunc maps a serialized key to a partition index in [0, n).
type PartitionerFunc func(key []byte, n int) int

// Partition returns the partition a serialized key is written to: the IEEE
// CRC-32 of the key with the sign bit masked off, modulo n.
//
// The producer in this package uses the same function, so a replay of a key
// only has to read this one partition.  Returns 0 if n <= 0.
func Partition(key []byte, n int) int {
	if n <= 0 {
		return 0
	}

	sum := crc32.ChecksumIEEE(key) & 0x7fffffff

	//nolint:gosec // G115: Modulo ensures result fits in int range
	return int(sum % uint32(n))
}

// crcPartitioner is the kgo.Partitioner installed on every Producer.  Keyed
// records go through Partition; records without a key are spread round-robin.
type crcPartitioner struct{}

func newPartitioner() kgo.Partitioner {
	return crcPartitioner{}
}

func (crcPartitioner) ForTopic(string) kgo.TopicPartitioner {
	return &crcTopicPartitioner{}
}

type crcTopicPartitioner struct {
	counter atomic.Uint64
}

// RequiresConsistency reports true for keyed records: a key must always hash to
// the same partition, even while that partition is unavailable.
func (*crcTopicPartitioner) RequiresConsistency(r *kgo.Record) bool {
	return r.Key != nil
}

func (tp *crcTopicPartitioner) Partition(r *kgo.Record, n int) int {
	if r.Key != nil {
		return Partition(r.Key, n)
	}

	count := tp.counter.Add(1) - 1
	//nolint:gosec // G115: Modulo ensures result fits in int range
	return int(count % uint64(n))
}
