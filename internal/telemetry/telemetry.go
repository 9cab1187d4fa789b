// Package telemetry holds the gateway's OpenTelemetry metric instruments.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without instrumentation in tests.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/ggoodman/govdata-mcp"

// Metrics holds all metric instruments for the gateway.
type Metrics struct {
	// Auth
	AuthDecisions metric.Int64Counter

	// Key material fetches (discovery documents and key sets)
	CacheFetches  metric.Int64Counter
	FetchDuration metric.Float64Histogram

	// Protocol
	RPCRequests metric.Int64Counter
	RPCDuration metric.Float64Histogram
	ToolCalls   metric.Int64Counter

	// Transport
	RateLimited metric.Int64Counter
	OpenStreams metric.Int64UpDownCounter
}

// New creates instruments from provider. A nil provider yields no-op
// instruments.
func New(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := &Metrics{}
	var err error

	m.AuthDecisions, err = meter.Int64Counter(
		"govdata.auth.decisions",
		metric.WithDescription("Authentication decisions by mode and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth.decisions counter: %w", err)
	}

	m.CacheFetches, err = meter.Int64Counter(
		"govdata.auth.fetches",
		metric.WithDescription("Network fetches of OIDC discovery documents and key sets"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth.fetches counter: %w", err)
	}

	m.FetchDuration, err = meter.Float64Histogram(
		"govdata.auth.fetch.duration",
		metric.WithDescription("Key material fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth.fetch.duration histogram: %w", err)
	}

	m.RPCRequests, err = meter.Int64Counter(
		"govdata.rpc.requests",
		metric.WithDescription("JSON-RPC requests handled by method and outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc.requests counter: %w", err)
	}

	m.RPCDuration, err = meter.Float64Histogram(
		"govdata.rpc.duration",
		metric.WithDescription("JSON-RPC handling duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc.duration histogram: %w", err)
	}

	m.ToolCalls, err = meter.Int64Counter(
		"govdata.tool.calls",
		metric.WithDescription("Tool invocations by tool and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool.calls counter: %w", err)
	}

	m.RateLimited, err = meter.Int64Counter(
		"govdata.http.rate_limited",
		metric.WithDescription("Exchanges refused by the per-client rate limiter"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.rate_limited counter: %w", err)
	}

	m.OpenStreams, err = meter.Int64UpDownCounter(
		"govdata.http.open_streams",
		metric.WithDescription("Persistent event streams currently open"),
		metric.WithUnit("{stream}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.open_streams counter: %w", err)
	}

	return m, nil
}

// RecordAuthDecision records one gate decision. reason is empty on success.
func (m *Metrics) RecordAuthDecision(ctx context.Context, mode string, ok bool, reason string) {
	if m == nil {
		return
	}
	m.AuthDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("success", ok),
		attribute.String("reason", reason),
	))
}

// RecordFetch records a discovery or key set fetch.
func (m *Metrics) RecordFetch(ctx context.Context, kind string, err error, dur time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", err == nil),
	)
	m.CacheFetches.Add(ctx, 1, attrs)
	m.FetchDuration.Record(ctx, float64(dur.Microseconds())/1000, attrs)
}

// RecordRPC records one handled JSON-RPC message.
func (m *Metrics) RecordRPC(ctx context.Context, method string, code int, dur time.Duration) {
	if m == nil {
		return
	}
	m.RPCRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.Int("code", code),
	))
	m.RPCDuration.Record(ctx, float64(dur.Microseconds())/1000, metric.WithAttributes(
		attribute.String("method", method),
	))
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, ok bool) {
	if m == nil {
		return
	}
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("success", ok),
	))
}

// RecordRateLimited records a refused exchange.
func (m *Metrics) RecordRateLimited(ctx context.Context) {
	if m == nil {
		return
	}
	m.RateLimited.Add(ctx, 1)
}

// StreamOpened adjusts the open stream gauge by delta.
func (m *Metrics) StreamOpened(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.OpenStreams.Add(ctx, delta)
}
