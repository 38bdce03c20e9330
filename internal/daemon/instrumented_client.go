package daemon

import (
	"context"
	"encoding/json"

	"github.com/netdout/relay/internal/telemetry"
)

// InstrumentedClient wraps Client with telemetry.
type InstrumentedClient struct {
	client    *Client
	telemetry *telemetry.Telemetry
}

// NewInstrumentedClient creates a new instrumented daemon client.
func NewInstrumentedClient(client *Client, tel *telemetry.Telemetry) *InstrumentedClient {
	return &InstrumentedClient{
		client:    client,
		telemetry: tel,
	}
}

// Submit creates a job with telemetry.
func (c *InstrumentedClient) Submit(ctx context.Context, req JobRequest) (json.RawMessage, error) {
	var (
		result json.RawMessage
		err    error
	)

	instrumentedErr := c.telemetry.InstrumentDaemonCall(ctx, "submit", func(ctx context.Context) error {
		result, err = c.client.Submit(ctx, req)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// QueryStatus fetches job status with telemetry.
func (c *InstrumentedClient) QueryStatus(ctx context.Context, handle JobHandle) (json.RawMessage, error) {
	var (
		result json.RawMessage
		err    error
	)

	instrumentedErr := c.telemetry.InstrumentDaemonCall(ctx, "query_status", func(ctx context.Context) error {
		result, err = c.client.QueryStatus(ctx, handle)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// Health checks the daemon with telemetry.
func (c *InstrumentedClient) Health(ctx context.Context) error {
	return c.telemetry.InstrumentDaemonCall(ctx, "health", c.client.Health)
}
