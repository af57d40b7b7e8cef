// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reflect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// ToolKind is the closed set of tools the loop can dispatch. Unrecognized
// names map to ToolUnregistered so dispatch is an exhaustive switch rather
// than string comparison at every call site.
type ToolKind int

const (
	ToolUnregistered ToolKind = iota
	ToolRecall
	ToolSearchReflections
	ToolSearchMentalModels
	ToolExpand
	ToolDone
)

// String returns the canonical tool name for the kind.
func (k ToolKind) String() string {
	switch k {
	case ToolRecall:
		return "recall"
	case ToolSearchReflections:
		return "search_reflections"
	case ToolSearchMentalModels:
		return "search_mental_models"
	case ToolExpand:
		return "expand"
	case ToolDone:
		return "done"
	default:
		return "unregistered"
	}
}

// KindOf maps a raw tool name to its ToolKind, normalizing first.
func KindOf(name string) ToolKind {
	switch Normalize(name) {
	case "recall":
		return ToolRecall
	case "search_reflections":
		return ToolSearchReflections
	case "search_mental_models":
		return ToolSearchMentalModels
	case "expand":
		return ToolExpand
	case "done":
		return ToolDone
	default:
		return ToolUnregistered
	}
}

// ToolFunc executes one tool call. The returned payload is JSON-marshaled
// into the observation; a returned error becomes an error observation.
type ToolFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Observation is the recorded outcome of one tool call, ok or error. Tool
// failures are data fed back into the transcript, never errors returned to
// the loop.
//
// Thread Safety: Observation is safe for concurrent read access.
type Observation struct {
	// CallID pairs the observation with the tool call that produced it.
	CallID string

	// Tool is the normalized tool name.
	Tool string

	// Status is "ok" or "error".
	Status string

	// Payload holds the marshaled tool result when Status is "ok".
	Payload json.RawMessage

	// Error holds the failure description when Status is "error".
	Error string
}

// OK reports whether the observation is a successful result.
func (o Observation) OK() bool {
	return o.Status == "ok"
}

// TranscriptContent renders the observation as the tool message body the
// model sees on the next round.
func (o Observation) TranscriptContent() string {
	if o.OK() {
		return string(o.Payload)
	}
	body, _ := json.Marshal(map[string]string{
		"status": "error",
		"error":  o.Error,
	})
	return string(body)
}

// errorObservation builds an error observation for a call.
func errorObservation(callID, tool, msg string) Observation {
	return Observation{CallID: callID, Tool: tool, Status: "error", Error: msg}
}

// Registry maps tool kinds to their executors.
//
// Description:
//
//	The registry holds one ToolFunc per retrieval kind. "done" is never
//	registered; the loop controller interprets it directly. Execute never
//	returns an error: unknown tools, executor failures, and executor
//	panics all become error observations so a single bad call cannot
//	abort an otherwise productive loop.
//
// Thread Safety: Register is not safe for concurrent use with Execute;
// register everything before starting loops.
type Registry struct {
	funcs map[ToolKind]ToolFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[ToolKind]ToolFunc)}
}

// Register binds a ToolFunc to a kind. ToolDone and ToolUnregistered are
// rejected: the former is controller-owned, the latter is the absence of a
// binding.
func (r *Registry) Register(kind ToolKind, fn ToolFunc) error {
	if kind == ToolDone || kind == ToolUnregistered {
		return fmt.Errorf("reflect: kind %q cannot be registered", kind)
	}
	if fn == nil {
		return fmt.Errorf("reflect: nil ToolFunc for kind %q", kind)
	}
	r.funcs[kind] = fn
	return nil
}

// Execute runs one tool call and returns its observation.
//
// Inputs:
//   - ctx: Context passed through to the tool executor.
//   - callID: The model-assigned tool call id.
//   - rawName: The tool name exactly as the model emitted it.
//   - args: Raw JSON arguments.
//
// Outputs:
//   - Observation: Ok with the marshaled payload, or error with the
//     failure description. Never panics, never returns an error.
//
// Thread Safety: Safe for concurrent use once registration is complete.
func (r *Registry) Execute(ctx context.Context, callID, rawName string, args json.RawMessage) (obs Observation) {
	name := Normalize(rawName)
	kind := KindOf(rawName)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Tool executor panicked",
				slog.String("tool", name),
				slog.Any("panic", rec),
			)
			obs = errorObservation(callID, name, fmt.Sprintf("tool %q panicked: %v", name, rec))
		}
	}()

	if kind == ToolUnregistered || kind == ToolDone {
		slog.Warn("Model called an unknown tool", slog.String("tool", rawName))
		return errorObservation(callID, name, fmt.Sprintf("unknown tool %q", name))
	}
	fn, ok := r.funcs[kind]
	if !ok {
		return errorObservation(callID, name, fmt.Sprintf("tool %q is not available", name))
	}

	start := time.Now()
	payload, err := fn(ctx, args)
	if err != nil {
		slog.Debug("Tool call failed",
			slog.String("tool", name),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return errorObservation(callID, name, err.Error())
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errorObservation(callID, name, fmt.Sprintf("tool %q returned an unencodable result: %v", name, err))
	}

	slog.Debug("Tool call completed",
		slog.String("tool", name),
		slog.Duration("duration", time.Since(start)),
		slog.Int("payload_bytes", len(data)),
	)
	return Observation{CallID: callID, Tool: name, Status: "ok", Payload: data}
}
