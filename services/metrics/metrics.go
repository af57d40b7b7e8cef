// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics defines the telemetry sink for memory operations and LLM
// calls. The service records into a Collector handle passed explicitly to
// each component; there is no process-wide mutable singleton. Components
// that receive a nil Collector fall back to the shared no-op instance, so
// telemetry can be disabled with zero behavioral difference.
package metrics

import "time"

// Token bucket labels used as a metric dimension for LLM token counts.
// Raw counts would be unbounded-cardinality; coarse ranges keep the label
// set fixed while still exposing usage patterns.
const (
	TokenBucket0to100   = "0-100"
	TokenBucket100to500 = "100-500"
	TokenBucket500to1k  = "500-1k"
	TokenBucket1kTo5k   = "1k-5k"
	TokenBucket5kTo10k  = "5k-10k"
	TokenBucket10kTo50k = "10k-50k"
	TokenBucket50kPlus  = "50k+"
)

// TokenBucket maps a token count to its coarse range label.
//
// Inputs:
//   - tokens: Number of tokens. Negative values are treated as zero.
//
// Outputs:
//   - string: One of the TokenBucket* label constants.
//
// Thread Safety: This function is safe for concurrent use.
func TokenBucket(tokens int) string {
	switch {
	case tokens < 100:
		return TokenBucket0to100
	case tokens < 500:
		return TokenBucket100to500
	case tokens < 1000:
		return TokenBucket500to1k
	case tokens < 5000:
		return TokenBucket1kTo5k
	case tokens < 10000:
		return TokenBucket5kTo10k
	case tokens < 50000:
		return TokenBucket10kTo50k
	default:
		return TokenBucket50kPlus
	}
}

// OperationLabels carries the dimensions attached to an operation record.
//
// Budget and MaxTokens are optional; the zero value omits the label.
type OperationLabels struct {
	// Operation is the operation name: "retain", "recall", "reflect".
	Operation string

	// BankID is the memory bank the operation ran against.
	BankID string

	// Source identifies the caller: "api" for external requests,
	// "reflect" for retrievals issued by the reflect loop itself.
	Source string

	// Budget is the optional budget level ("low", "mid", "high").
	Budget string

	// MaxTokens is the optional token ceiling for the operation.
	MaxTokens int
}

// Collector receives operation and LLM-call telemetry.
//
// Description:
//
//	All methods are fire-and-forget: implementations must never block the
//	caller on sink availability and must never return errors into core
//	logic. The OTel implementation records into in-process instruments;
//	the no-op implementation discards everything.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Collector interface {
	// RecordOperation records one completed operation: its duration and a
	// success/failure count increment.
	RecordOperation(labels OperationLabels, duration time.Duration, success bool)

	// RecordTokens records token usage attributed to an operation.
	// Zero counts are not recorded.
	RecordTokens(labels OperationLabels, inputTokens, outputTokens int)

	// RecordLLMCall records one completed LLM API call (success or terminal
	// failure). Token counts are labeled with their TokenBucket range.
	RecordLLMCall(provider, model, scope string, duration time.Duration, inputTokens, outputTokens int, success bool)
}

// NoopCollector discards all telemetry. It is the default sink when
// metrics are disabled.
type NoopCollector struct{}

// Noop is the shared no-op instance. Components accepting an optional
// Collector substitute this for nil.
var Noop Collector = NoopCollector{}

func (NoopCollector) RecordOperation(OperationLabels, time.Duration, bool) {}

func (NoopCollector) RecordTokens(OperationLabels, int, int) {}

func (NoopCollector) RecordLLMCall(string, string, string, time.Duration, int, int, bool) {}

// OrNoop returns c, or the shared no-op collector when c is nil.
func OrNoop(c Collector) Collector {
	if c == nil {
		return Noop
	}
	return c
}
