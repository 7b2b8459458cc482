// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tom-assistant/tom/pkg/errors"
)

// ErrorMetrics tracks error rates and recovery patterns for production monitoring.
type ErrorMetrics struct {
	errorCounter    metric.Int64Counter
	recoveryCounter metric.Int64Counter

	mu sync.RWMutex
}

var (
	errorMetricsOnce sync.Once
	errorMetrics     *ErrorMetrics
)

// GetErrorMetrics returns the process-wide error metrics tracker, creating it
// on first use. Returns nil only if meter creation failed.
func GetErrorMetrics() *ErrorMetrics {
	errorMetricsOnce.Do(func() {
		em, err := NewErrorMetrics()
		if err == nil {
			errorMetrics = em
		}
	})
	return errorMetrics
}

// NewErrorMetrics creates a new error metrics tracker with OTEL meters.
func NewErrorMetrics() (*ErrorMetrics, error) {
	meter := otel.Meter("tom/errors")

	errorCounter, err := meter.Int64Counter(
		"tom.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	recoveryCounter, err := meter.Int64Counter(
		"tom.errors.recovered",
		metric.WithDescription("Successful error recoveries by code"),
	)
	if err != nil {
		return nil, err
	}

	return &ErrorMetrics{
		errorCounter:    errorCounter,
		recoveryCounter: recoveryCounter,
	}, nil
}

// RecordError increments the error counter for the given error and component.
func (em *ErrorMetrics) RecordError(ctx context.Context, err error, component string) {
	if em == nil || err == nil {
		return
	}

	em.mu.RLock()
	defer em.mu.RUnlock()

	te := errors.As(err)
	em.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", string(te.Code)),
		attribute.String("component", component),
		attribute.Bool("error.recoverable", te.Recoverable),
	))
}

// RecordRecovery increments the recovery counter for the given error code.
func (em *ErrorMetrics) RecordRecovery(ctx context.Context, code errors.ErrorCode, component string) {
	if em == nil {
		return
	}

	em.mu.RLock()
	defer em.mu.RUnlock()

	em.recoveryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", string(code)),
		attribute.String("component", component),
	))
}
