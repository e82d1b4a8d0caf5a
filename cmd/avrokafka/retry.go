// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xmidt-org/avrokafka"
)

// retryable reports whether err is worth another attempt.  Configuration and
// schema problems are not.
func retryable(err error) bool {
	return errors.Is(err, avrokafka.ErrBroker) ||
		errors.Is(err, avrokafka.ErrRegistryUnavailable)
}

// retry runs fn with exponential back-off until it succeeds, fails with an
// error that is not retryable, or cfg.MaxElapsedTime passes.
func retry(ctx context.Context, cfg RetryConfig, log *zap.Logger, what string, fn func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		bo.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		bo.MaxInterval = cfg.MaxInterval
	}
	bo.MaxElapsedTime = cfg.MaxElapsedTime

	attempts := 0
	operation := func() error {
		attempts++
		err := fn(ctx)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		log.Warn("Retrying",
			zap.String("component", what),
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		return fmt.Errorf("%s: %d attempt(s) failed: %w", what, attempts, err)
	}
	return nil
}
