// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package avrokafka

import (
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Acks specifies the broker acknowledgment requirements.
type Acks string

const (
	// AcksAll requires all ISR replicas to acknowledge (strongest durability).
	AcksAll Acks = "all"

	// AcksLeader requires only the leader replica to acknowledge.
	AcksLeader Acks = "leader"

	// AcksNone requires no acknowledgment (fire-and-forget).
	AcksNone Acks = "none"
)

// Compression specifies the message compression algorithm.
type Compression string

const (
	// CompressionSnappy uses Snappy compression (good balance, recommended).
	CompressionSnappy Compression = "snappy"

	// CompressionGzip uses Gzip compression.
	CompressionGzip Compression = "gzip"

	// CompressionLz4 uses LZ4 compression.
	CompressionLz4 Compression = "lz4"

	// CompressionZstd uses Zstandard compression.
	CompressionZstd Compression = "zstd"

	// CompressionNone disables compression.
	CompressionNone Compression = "none"
)

var (
	acksTypes map[Acks]kgo.Acks
	acksList  []string

	compressionTypes map[Compression]kgo.CompressionCodec
	compressionList  []string
)

func init() {
	acksTypes = map[Acks]kgo.Acks{
		AcksAll:    kgo.AllISRAcks(),
		AcksLeader: kgo.LeaderAck(),
		AcksNone:   kgo.NoAck(),
	}
	for _, a := range []Acks{AcksAll, AcksLeader, AcksNone} {
		acksList = append(acksList, string(a))
	}

	compressionTypes = map[Compression]kgo.CompressionCodec{
		CompressionSnappy: kgo.SnappyCompression(),
		CompressionGzip:   kgo.GzipCompression(),
		CompressionLz4:    kgo.Lz4Compression(),
		CompressionZstd:   kgo.ZstdCompression(),
		CompressionNone:   kgo.NoCompression(),
	}
	for _, c := range []Compression{
		CompressionSnappy,
		CompressionGzip,
		CompressionLz4,
		CompressionZstd,
		CompressionNone,
	} {
		compressionList = append(compressionList, string(c))
	}
}

// validateAcks validates the Acks enum value.
func validateAcks(acks Acks) error {
	if acks == "" {
		return nil
	}

	if _, ok := acksTypes[acks]; ok {
		return nil
	}

	return errors.Join(ErrValidation,
		fmt.Errorf("acks '%s' is invalid: must be %s or empty", acks, quoteList(acksList)))
}

// kgo returns the franz-go option for acks.  Only AcksAll keeps idempotent
// writes, which franz-go requires to be disabled for weaker acks.
func (a Acks) kgo() []kgo.Opt {
	if a == "" {
		a = AcksAll
	}

	opts := []kgo.Opt{kgo.RequiredAcks(acksTypes[a])}
	if a != AcksAll {
		opts = append(opts, kgo.DisableIdempotentWrite())
	}
	return opts
}

// validateCompression validates the Compression enum value.
func validateCompression(codec Compression) error {
	if codec == "" {
		return nil
	}

	if _, ok := compressionTypes[codec]; ok {
		return nil
	}

	return errors.Join(ErrValidation,
		fmt.Errorf("compression codec '%s' is invalid: must be %s or empty", codec, quoteList(compressionList)))
}

func (c Compression) kgo() kgo.Opt {
	if c == "" {
		c = CompressionNone
	}
	return kgo.ProducerBatchCompression(compressionTypes[c])
}

func quoteList(list []string) string {
	return "'" + strings.Join(list, "', '") + "'"
}
