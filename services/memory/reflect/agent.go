// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reflect implements the tool-calling retrieval loop behind the
// reflect operation: the model is offered retrieval tools against a memory
// bank, iterates until it calls "done" or the iteration budget runs out,
// and every memory it touched is reported alongside the answer.
package reflect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianMemory/services/llm"
)

// reflectTracerName is the OTel tracer name for reflect loop spans.
const reflectTracerName = "memory.reflect"

// DefaultMaxIterations bounds tool rounds per run when not configured.
const DefaultMaxIterations = 5

// Gateway is the LLM surface the loop needs. *llm.Client satisfies it;
// tests substitute scripted fakes.
type Gateway interface {
	// Call sends a plain completion request.
	Call(ctx context.Context, messages []llm.ChatMessage, params llm.CallParams) (string, error)

	// CallWithTools sends a completion request with tool definitions.
	CallWithTools(ctx context.Context, messages []llm.ChatMessage,
		params llm.CallParams, tools []llm.ToolDef) (*llm.ToolCallResult, error)
}

// Agent runs reflect loops against one registry of retrieval tools.
//
// Description:
//
//	Each Run is independent: the agent holds no per-run state, so one
//	Agent serves all requests for a bank configuration. The loop:
//
//	  1. Send transcript + tool schemas to the gateway.
//	  2. "done" call → finish with its answer and cited ids, skipping any
//	     sibling calls in the same round.
//	  3. Other calls → execute through the registry, append observations
//	     to the transcript, count one iteration, repeat.
//	  4. Budget exhausted → one plain completion over the transcript as a
//	     fallback answer.
//
//	Gateway failures and context cancellation abort the run with an
//	error. Tool failures never do; they come back as error observations
//	the model can read and route around.
//
// Thread Safety: Agent is safe for concurrent use.
type Agent struct {
	gateway       Gateway
	registry      *Registry
	tools         []llm.ToolDef
	params        llm.CallParams
	maxIterations int
	concurrent    bool
}

// AgentOption customizes an Agent at construction.
type AgentOption func(*Agent)

// WithMaxIterations overrides the tool-round budget.
func WithMaxIterations(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithCallParams sets generation parameters for every gateway call.
func WithCallParams(p llm.CallParams) AgentOption {
	return func(a *Agent) { a.params = p }
}

// WithConcurrentTools executes a round's tool calls concurrently.
// Observations keep emission order regardless.
func WithConcurrentTools() AgentOption {
	return func(a *Agent) { a.concurrent = true }
}

// NewAgent creates an Agent over the given gateway and tool registry.
func NewAgent(gateway Gateway, registry *Registry, opts ...AgentOption) *Agent {
	a := &Agent{
		gateway:       gateway,
		registry:      registry,
		tools:         ToolSchemas(),
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// doneArgs are the arguments of the terminating "done" tool call.
type doneArgs struct {
	Answer    string   `json:"answer"`
	MemoryIDs []string `json:"memory_ids"`
}

// findDone returns the first "done" call in a round, if any. Malformed
// arguments degrade to an empty doneArgs rather than failing the run.
func findDone(calls []llm.ToolCallResponse) (doneArgs, bool) {
	for _, call := range calls {
		if IsDone(call.Name) {
			var args doneArgs
			if err := json.Unmarshal([]byte(call.ArgumentsString()), &args); err != nil {
				slog.Warn("Malformed done arguments, using assistant content",
					slog.String("error", err.Error()))
			}
			return args, true
		}
	}
	return doneArgs{}, false
}

// Run executes one reflect loop.
//
// Inputs:
//   - ctx: Context for cancellation; passed to the gateway and tools.
//   - systemPrompt: The bank persona and tool-use instructions.
//   - query: The user's question.
//
// Outputs:
//   - *Result: Answer, used memory ids, iteration count, finish reason.
//   - error: Non-nil only for gateway failures or cancellation.
//
// Thread Safety: This method is safe for concurrent use.
func (a *Agent) Run(ctx context.Context, systemPrompt, query string) (*Result, error) {
	ctx, span := otel.Tracer(reflectTracerName).Start(ctx, "reflect.run")
	defer span.End()

	messages := []llm.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: query},
	}
	evidence := newEvidenceSet()
	result := &Result{}

	for result.Iterations < a.maxIterations {
		res, err := a.gateway.CallWithTools(ctx, messages, a.params, a.tools)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "gateway call failed")
			return nil, fmt.Errorf("reflect: gateway call failed: %w", err)
		}
		result.InputTokens += res.InputTokens
		result.OutputTokens += res.OutputTokens

		if len(res.ToolCalls) == 0 {
			// Prose without done does not terminate the loop; remind the
			// model how to finish and burn an iteration so this cannot
			// spin forever.
			slog.Debug("Round produced no tool calls, nudging",
				slog.Int("iteration", result.Iterations))
			messages = append(messages,
				llm.ChatMessage{Role: "assistant", Content: res.Content},
				llm.ChatMessage{Role: "user", Content: nudgeMessage},
			)
			result.Iterations++
			continue
		}

		if done, ok := findDone(res.ToolCalls); ok {
			evidence.addIDs(done.MemoryIDs)
			result.Text = done.Answer
			if result.Text == "" {
				result.Text = res.Content
			}
			result.UsedMemoryIDs = evidence.sorted()
			result.FinishReason = FinishDone
			span.SetAttributes(
				attribute.Int("reflect.iterations", result.Iterations),
				attribute.String("reflect.finish_reason", string(FinishDone)),
				attribute.Int("reflect.used_memories", len(result.UsedMemoryIDs)),
			)
			return result, nil
		}

		messages = append(messages, llm.ChatMessage{
			Role:      "assistant",
			Content:   res.Content,
			ToolCalls: res.ToolCalls,
		})
		for _, obs := range a.executeRound(ctx, res.ToolCalls) {
			evidence.addFromObservation(obs)
			messages = append(messages, llm.ChatMessage{
				Role:       "tool",
				ToolCallID: obs.CallID,
				Content:    obs.TranscriptContent(),
			})
		}
		result.Iterations++
	}

	// Budget exhausted: one plain completion over everything gathered.
	slog.Info("Reflect loop exhausted its iteration budget, falling back",
		slog.Int("iterations", result.Iterations))
	messages = append(messages, llm.ChatMessage{Role: "user", Content: fallbackMessage})
	text, err := a.gateway.Call(ctx, messages, a.params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback call failed")
		return nil, fmt.Errorf("reflect: fallback call failed: %w", err)
	}

	result.Text = text
	result.UsedMemoryIDs = evidence.sorted()
	result.FinishReason = FinishMaxIterations
	span.SetAttributes(
		attribute.Int("reflect.iterations", result.Iterations),
		attribute.String("reflect.finish_reason", string(FinishMaxIterations)),
		attribute.Int("reflect.used_memories", len(result.UsedMemoryIDs)),
	)
	return result, nil
}

// executeRound runs a round's tool calls and returns observations in
// emission order.
func (a *Agent) executeRound(ctx context.Context, calls []llm.ToolCallResponse) []Observation {
	observations := make([]Observation, len(calls))

	if !a.concurrent || len(calls) < 2 {
		for i, call := range calls {
			args := json.RawMessage(call.ArgumentsString())
			observations[i] = a.registry.Execute(ctx, call.ID, call.Name, args)
		}
		return observations
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			args := json.RawMessage(call.ArgumentsString())
			observations[i] = a.registry.Execute(gctx, call.ID, call.Name, args)
			return nil
		})
	}
	// Executors never return errors; Wait only joins the goroutines.
	_ = g.Wait()
	return observations
}
