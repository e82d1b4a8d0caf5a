// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/xmidt-org/avrokafka"
)

func TestRetry(t *testing.T) {
	t.Parallel()

	fast := RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsedTime:  time.Second,
	}

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{
			name:      "first attempt succeeds",
			wantCalls: 1,
		},
		{
			name:      "broker errors are retried",
			errs:      []error{avrokafka.ErrBroker, avrokafka.ErrBroker},
			wantCalls: 3,
		},
		{
			name:      "registry outages are retried",
			errs:      []error{errors.Join(avrokafka.ErrRegistryUnavailable, errors.New("refused"))},
			wantCalls: 2,
		},
		{
			name:      "validation errors are permanent",
			errs:      []error{avrokafka.ErrValidation},
			wantCalls: 1,
			wantErr:   avrokafka.ErrValidation,
		},
		{
			name:      "missing schemas are permanent",
			errs:      []error{avrokafka.ErrBroker, avrokafka.ErrSchemaNotFound},
			wantCalls: 2,
			wantErr:   avrokafka.ErrSchemaNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			err := retry(context.Background(), fast, zap.NewNop(), "test", func(context.Context) error {
				calls++
				if calls <= len(tt.errs) {
					return tt.errs[calls-1]
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRetry_GivesUp(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxElapsedTime:  20 * time.Millisecond,
	}

	calls := 0
	err := retry(context.Background(), cfg, zap.NewNop(), "test", func(context.Context) error {
		calls++
		return avrokafka.ErrBroker
	})

	assert.ErrorIs(t, err, avrokafka.ErrBroker)
	assert.Greater(t, calls, 1)
}

func TestRetry_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry(ctx, RetryConfig{InitialInterval: time.Millisecond}, zap.NewNop(), "test", func(context.Context) error {
		calls++
		return avrokafka.ErrBroker
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
