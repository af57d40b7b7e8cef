// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Histogram bucket boundaries for operation duration, in seconds. Fine
// granularity below 30s where most operations complete.
var operationDurationBuckets = []float64{
	0.1, 0.25, 0.5, 0.75, 1, 2, 3, 5, 7.5, 10, 15, 20, 30, 60, 120,
}

// LLM calls are usually faster than whole operations; finer low end.
var llmDurationBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 15, 30, 60, 120,
}

// OTelCollector implements Collector on OpenTelemetry metric instruments
// exported through the Prometheus registry passed at construction.
//
// Description:
//
//	One OTelCollector is created at process startup and handed to every
//	component that reports telemetry. Instruments:
//
//	  memory.operation.duration   histogram (s)  operation/bank/source/success
//	  memory.operation.total      counter        same labels
//	  memory.tokens.input/output  counters       operation/bank
//	  memory.llm.duration         histogram (s)  provider/model/scope/success
//	  memory.llm.calls.total      counter        same labels
//	  memory.llm.tokens.input/output counters    + token_bucket label
//
// Thread Safety: OTelCollector is safe for concurrent use.
type OTelCollector struct {
	provider *sdkmetric.MeterProvider

	operationDuration metric.Float64Histogram
	operationTotal    metric.Int64Counter
	tokensInput       metric.Int64Counter
	tokensOutput      metric.Int64Counter

	llmDuration    metric.Float64Histogram
	llmCallsTotal  metric.Int64Counter
	llmTokensIn    metric.Int64Counter
	llmTokensOut   metric.Int64Counter
}

// NewOTelCollector creates an OTelCollector whose instruments are exported
// through the given Prometheus registry.
//
// Inputs:
//   - registry: Prometheus registry to export into. The caller typically
//     exposes it via promhttp on /metrics.
//   - serviceName: Service name resource attribute (e.g. "aleutian-memory").
//   - serviceVersion: Service version resource attribute.
//
// Outputs:
//   - *OTelCollector: The configured collector.
//   - error: Non-nil if exporter or instrument creation fails.
func NewOTelCollector(registry *prometheus.Registry, serviceName, serviceVersion string) (*OTelCollector, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("metrics: creating prometheus exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "memory.operation.duration"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: operationDurationBuckets,
			}},
		)),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "memory.llm.duration"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: llmDurationBuckets,
			}},
		)),
	)

	meter := provider.Meter("aleutian.memory")

	c := &OTelCollector{provider: provider}

	if c.operationDuration, err = meter.Float64Histogram(
		"memory.operation.duration",
		metric.WithDescription("Duration of memory operations in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("metrics: creating operation duration histogram: %w", err)
	}

	if c.operationTotal, err = meter.Int64Counter(
		"memory.operation.total",
		metric.WithDescription("Total number of memory operations executed"),
	); err != nil {
		return nil, fmt.Errorf("metrics: creating operation counter: %w", err)
	}

	if c.tokensInput, err = meter.Int64Counter(
		"memory.tokens.input",
		metric.WithDescription("Input tokens consumed by memory operations"),
	); err != nil {
		return nil, fmt.Errorf("metrics: creating input token counter: %w", err)
	}

	if c.tokensOutput, err = meter.Int64Counter(
		"memory.tokens.output",
		metric.WithDescription("Output tokens generated by memory operations"),
	); err != nil {
		return nil, fmt.Errorf("metrics: creating output token counter: %w", err)
	}

	if c.llmDuration, err = meter.Float64Histogram(
		"memory.llm.duration",
		metric.WithDescription("Duration of LLM API calls in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("metrics: creating llm duration histogram: %w", err)
	}

	if c.llmCallsTotal, err = meter.Int64Counter(
		"memory.llm.calls.total",
		metric.WithDescription("Total number of LLM API calls"),
	); err != nil {
		return nil, fmt.Errorf("metrics: creating llm call counter: %w", err)
	}

	if c.llmTokensIn, err = meter.Int64Counter(
		"memory.llm.tokens.input",
		metric.WithDescription("Input tokens for LLM calls"),
	); err != nil {
		return nil, fmt.Errorf("metrics: creating llm input token counter: %w", err)
	}

	if c.llmTokensOut, err = meter.Int64Counter(
		"memory.llm.tokens.output",
		metric.WithDescription("Output tokens from LLM calls"),
	); err != nil {
		return nil, fmt.Errorf("metrics: creating llm output token counter: %w", err)
	}

	return c, nil
}

// Shutdown flushes and stops the underlying meter provider.
func (c *OTelCollector) Shutdown(ctx context.Context) error {
	return c.provider.Shutdown(ctx)
}

func (c *OTelCollector) operationAttrs(labels OperationLabels) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("operation", labels.Operation),
		attribute.String("bank_id", labels.BankID),
		attribute.String("source", labels.Source),
	}
	if labels.Budget != "" {
		attrs = append(attrs, attribute.String("budget", labels.Budget))
	}
	if labels.MaxTokens > 0 {
		attrs = append(attrs, attribute.String("max_tokens", strconv.Itoa(labels.MaxTokens)))
	}
	return attrs
}

// RecordOperation implements Collector.
func (c *OTelCollector) RecordOperation(labels OperationLabels, duration time.Duration, success bool) {
	attrs := append(c.operationAttrs(labels), attribute.Bool("success", success))
	set := metric.WithAttributes(attrs...)
	ctx := context.Background()

	c.operationDuration.Record(ctx, duration.Seconds(), set)
	c.operationTotal.Add(ctx, 1, set)
}

// RecordTokens implements Collector.
func (c *OTelCollector) RecordTokens(labels OperationLabels, inputTokens, outputTokens int) {
	set := metric.WithAttributes(c.operationAttrs(labels)...)
	ctx := context.Background()

	if inputTokens > 0 {
		c.tokensInput.Add(ctx, int64(inputTokens), set)
	}
	if outputTokens > 0 {
		c.tokensOutput.Add(ctx, int64(outputTokens), set)
	}
}

// RecordLLMCall implements Collector.
func (c *OTelCollector) RecordLLMCall(provider, model, scope string, duration time.Duration, inputTokens, outputTokens int, success bool) {
	base := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("scope", scope),
		attribute.Bool("success", success),
	}
	ctx := context.Background()

	c.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(base...))
	c.llmCallsTotal.Add(ctx, 1, metric.WithAttributes(base...))

	if inputTokens > 0 {
		attrs := append(base, attribute.String("token_bucket", TokenBucket(inputTokens)))
		c.llmTokensIn.Add(ctx, int64(inputTokens), metric.WithAttributes(attrs...))
	}
	if outputTokens > 0 {
		attrs := append(base, attribute.String("token_bucket", TokenBucket(outputTokens)))
		c.llmTokensOut.Add(ctx, int64(outputTokens), metric.WithAttributes(attrs...))
	}
}
