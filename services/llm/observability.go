// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level Prometheus metrics for the gateway. Auto-registered via
// promauto so no explicit registry wiring is needed. Operation-level
// telemetry goes through metrics.Collector; these counters cover the
// gateway's own retry and failure behavior.
var (
	// gatewayRetriesTotal counts retries issued for transient failures.
	//
	// Labels:
	//   - provider: "openai", "groq", "ollama", "lmstudio"
	gatewayRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memory",
			Subsystem: "llm",
			Name:      "retries_total",
			Help:      "Total number of LLM call retries.",
		},
		[]string{"provider"},
	)

	// gatewayErrorsTotal counts terminal gateway errors by type.
	//
	// Labels:
	//   - provider: "openai", "groq", "ollama", "lmstudio"
	//   - error_type: "timeout", "auth", "rate_limit", "server",
	//     "empty_response", "unknown"
	gatewayErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memory",
			Subsystem: "llm",
			Name:      "errors_total",
			Help:      "Total terminal LLM gateway errors by type.",
		},
		[]string{"provider", "error_type"},
	)
)

// classifyError maps an error to a label-safe error type string.
//
// Description:
//
//	Categorizes errors into a fixed set of Prometheus label values to
//	avoid high-cardinality labels from raw error messages. APIStatusError
//	is classified by status code; everything else by message inspection.
//
// Thread Safety: Safe for concurrent use.
func classifyError(err error) string {
	if err == nil {
		return ""
	}

	var statusErr *APIStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == 429:
			return "rate_limit"
		case statusErr.StatusCode == 401 || statusErr.StatusCode == 403:
			return "auth"
		case statusErr.StatusCode >= 500:
			return "server"
		default:
			return "unknown"
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "no choices"):
		return "empty_response"
	default:
		return "unknown"
	}
}

func recordRetry(provider Provider) {
	gatewayRetriesTotal.WithLabelValues(string(provider)).Inc()
}

func recordError(provider Provider, err error) {
	gatewayErrorsTotal.WithLabelValues(string(provider), classifyError(err)).Inc()
}
