package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CARDINALITY BEST PRACTICES:
//
// Span attributes and metric labels must stay bounded. Never attach job
// handles, download URLs, output paths, request IDs or raw error messages as
// attributes. Those belong in logs, which carry trace_id for correlation.
//
// Bounded values used here: operation names ("submit", "query_status"),
// intent types ("QUEUE", "STATUS"), statuses ("success", "error") and error
// types ("transport", "daemon_status", "malformed_response").

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// ErrorTyper is implemented by errors that know their bounded metric label.
type ErrorTyper interface {
	ErrorType() string
}

// ErrorType returns the bounded label for err, "unknown" when err does not
// carry one and "" for nil.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}

	var typed ErrorTyper
	if errors.As(err, &typed) {
		return typed.ErrorType()
	}

	return "unknown"
}

// InstrumentOperation instruments a generic operation with a span.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"

		// The message goes to the span status, not to an attribute.
		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordDBOperation(ctx, operation, status, time.Since(start))

	return err
}

// InstrumentDaemonCall instruments a call against the download daemon.
func (t *Telemetry) InstrumentDaemonCall(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "daemon_"+operation, "daemon_client", fn)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordDaemonCall(ctx, operation, status, ErrorType(err))

	return err
}
