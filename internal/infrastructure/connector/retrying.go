package connector

import (
	"context"
	"time"

	"github.com/mops/backend/internal/domain/integration"
)

// RetryingConnector decorates a connector with the integration's retry policy.
// Only retryable failures (transient, rate-limited) are retried; the backoff
// schedule comes from the RetrySettings carried in each call's config.
// Test and Introspect are interactive wizard calls and pass through untouched.
type RetryingConnector struct {
	inner integration.Connector
	sleep func(time.Duration)
}

// NewRetryingConnector wraps a connector with retry-on-transient-failure semantics
func NewRetryingConnector(inner integration.Connector) *RetryingConnector {
	return &RetryingConnector{inner: inner, sleep: time.Sleep}
}

// Test verifies the connection parameters against the provider
func (r *RetryingConnector) Test(ctx context.Context, config integration.ConnectionConfig) (bool, error) {
	return r.inner.Test(ctx, config)
}

// Introspect retrieves the remote object/table catalog
func (r *RetryingConnector) Introspect(ctx context.Context, config integration.ConnectionConfig) (*integration.SchemaSnapshot, error) {
	return r.inner.Introspect(ctx, config)
}

// Execute runs one synchronization pass, retrying per the integration's policy
func (r *RetryingConnector) Execute(ctx context.Context, config integration.ConnectionConfig, mapping integration.DataMapping) (*integration.SyncResult, error) {
	settings := config.RetrySettings
	var lastErr error

	for attempt := 0; attempt <= settings.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := settings.DelayFor(attempt - 1)
			select {
			case <-ctx.Done():
				return nil, integration.NewSyncError(integration.ErrorKindTransient, "sync canceled during backoff", ctx.Err())
			default:
			}
			r.sleep(delay)
		}

		result, err := r.inner.Execute(ctx, config, mapping)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !integration.KindOf(err).Retryable() {
			return nil, err
		}
	}

	return nil, lastErr
}

// Ensure RetryingConnector implements Connector
var _ integration.Connector = (*RetryingConnector)(nil)
