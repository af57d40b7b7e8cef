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
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianMemory/services/llm"
)

// scriptedGateway replays a fixed sequence of tool-call responses and
// records every transcript it was sent.
type scriptedGateway struct {
	steps []scriptedStep

	toolCalls   int
	plainCalls  int
	plainText   string
	plainErr    error
	transcripts [][]llm.ChatMessage
}

type scriptedStep struct {
	result *llm.ToolCallResult
	err    error
}

func (g *scriptedGateway) CallWithTools(_ context.Context, messages []llm.ChatMessage,
	_ llm.CallParams, _ []llm.ToolDef) (*llm.ToolCallResult, error) {

	g.transcripts = append(g.transcripts, slices.Clone(messages))
	if g.toolCalls >= len(g.steps) {
		return nil, fmt.Errorf("unexpected gateway call %d", g.toolCalls+1)
	}
	step := g.steps[g.toolCalls]
	g.toolCalls++
	return step.result, step.err
}

func (g *scriptedGateway) Call(_ context.Context, messages []llm.ChatMessage,
	_ llm.CallParams) (string, error) {

	g.transcripts = append(g.transcripts, slices.Clone(messages))
	g.plainCalls++
	return g.plainText, g.plainErr
}

func toolCall(id, name, args string) llm.ToolCallResponse {
	return llm.ToolCallResponse{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func toolRound(calls ...llm.ToolCallResponse) scriptedStep {
	return scriptedStep{result: &llm.ToolCallResult{
		ToolCalls:    calls,
		FinishReason: "tool_use",
	}}
}

// recallRegistry returns a registry whose recall tool serves fixed
// memories and counts invocations.
func recallRegistry(t *testing.T, calls *atomic.Int32, memoryIDs ...string) *Registry {
	t.Helper()
	r := NewRegistry()
	err := r.Register(ToolRecall, func(context.Context, json.RawMessage) (any, error) {
		if calls != nil {
			calls.Add(1)
		}
		memories := make([]map[string]string, 0, len(memoryIDs))
		for _, id := range memoryIDs {
			memories = append(memories, map[string]string{"id": id})
		}
		return map[string]any{"memories": memories}, nil
	})
	if err != nil {
		t.Fatalf("registering recall failed: %v", err)
	}
	return r
}

func TestRun_RecoversFromUnknownToolAndFinishes(t *testing.T) {
	gateway := &scriptedGateway{steps: []scriptedStep{
		toolRound(toolCall("c1", "functions.frobnicate", `{}`)),
		toolRound(toolCall("c2", "call=recall", `{"query": "deadlines"}`)),
		toolRound(toolCall("c3", "done", `{"answer": "the deadline is Friday", "memory_ids": ["m2"]}`)),
	}}
	agent := NewAgent(gateway, recallRegistry(t, nil, "m1", "m3"))

	result, err := agent.Run(context.Background(), "persona", "when is the deadline?")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if gateway.toolCalls != 3 {
		t.Errorf("gateway calls = %d, want 3", gateway.toolCalls)
	}
	if result.Iterations != 2 {
		t.Errorf("iterations = %d, want 2 (the done round does not count)", result.Iterations)
	}
	if result.FinishReason != FinishDone {
		t.Errorf("finish reason = %q, want %q", result.FinishReason, FinishDone)
	}
	if result.Text != "the deadline is Friday" {
		t.Errorf("text = %q, want the done answer", result.Text)
	}
	want := []string{"m1", "m2", "m3"}
	if !slices.Equal(result.UsedMemoryIDs, want) {
		t.Errorf("used memory ids = %v, want %v", result.UsedMemoryIDs, want)
	}

	// The unknown tool's failure must have reached the model as data.
	second := gateway.transcripts[1]
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "c1" {
		t.Fatalf("expected a tool message answering c1, got role=%q id=%q", last.Role, last.ToolCallID)
	}
	if !strings.Contains(last.Content, "frobnicate") {
		t.Errorf("tool message %q should describe the unknown tool", last.Content)
	}
}

func TestRun_DoneSkipsSiblingCalls(t *testing.T) {
	var recallCalls atomic.Int32
	gateway := &scriptedGateway{steps: []scriptedStep{
		toolRound(
			toolCall("c1", "done", `{"answer": "already know this", "memory_ids": ["m9"]}`),
			toolCall("c2", "recall", `{"query": "x"}`),
		),
	}}
	agent := NewAgent(gateway, recallRegistry(t, &recallCalls, "m1"))

	result, err := agent.Run(context.Background(), "persona", "q")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := recallCalls.Load(); got != 0 {
		t.Errorf("recall executed %d times, want 0 when done is in the round", got)
	}
	if result.Iterations != 0 {
		t.Errorf("iterations = %d, want 0", result.Iterations)
	}
	if !slices.Equal(result.UsedMemoryIDs, []string{"m9"}) {
		t.Errorf("used memory ids = %v, want only the cited m9", result.UsedMemoryIDs)
	}
}

func TestRun_ExhaustionFallsBackToPlainCall(t *testing.T) {
	gateway := &scriptedGateway{
		steps: []scriptedStep{
			toolRound(toolCall("c1", "nope", `{}`)),
			toolRound(toolCall("c2", "nope", `{}`)),
			toolRound(toolCall("c3", "nope", `{}`)),
		},
		plainText: "best effort answer",
	}
	agent := NewAgent(gateway, NewRegistry(), WithMaxIterations(3))

	result, err := agent.Run(context.Background(), "persona", "q")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if gateway.toolCalls != 3 {
		t.Errorf("tool-enabled gateway calls = %d, want exactly the budget", gateway.toolCalls)
	}
	if gateway.plainCalls != 1 {
		t.Errorf("plain gateway calls = %d, want exactly one fallback", gateway.plainCalls)
	}
	if result.FinishReason != FinishMaxIterations {
		t.Errorf("finish reason = %q, want %q", result.FinishReason, FinishMaxIterations)
	}
	if result.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", result.Iterations)
	}
	if result.Text != "best effort answer" {
		t.Errorf("text = %q, want the fallback answer", result.Text)
	}

	// The fallback transcript ends with the wrap-up instruction.
	fallback := gateway.transcripts[len(gateway.transcripts)-1]
	if last := fallback[len(fallback)-1]; last.Role != "user" || last.Content != fallbackMessage {
		t.Errorf("fallback transcript should end with the wrap-up message, got %+v", last)
	}
}

func TestRun_GatewayErrorSurfacesUnchanged(t *testing.T) {
	sentinel := &llm.APIStatusError{Provider: llm.ProviderOpenAI, StatusCode: 401, Body: "bad key"}
	gateway := &scriptedGateway{steps: []scriptedStep{{err: sentinel}}}
	agent := NewAgent(gateway, NewRegistry())

	_, err := agent.Run(context.Background(), "persona", "q")
	if err == nil {
		t.Fatal("expected the gateway error to surface")
	}

	var statusErr *llm.APIStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 401 {
		t.Errorf("error %v should wrap the original gateway error", err)
	}
}

func TestRun_FallbackErrorSurfaces(t *testing.T) {
	gateway := &scriptedGateway{
		steps:    []scriptedStep{toolRound(toolCall("c1", "nope", `{}`))},
		plainErr: errors.New("provider down"),
	}
	agent := NewAgent(gateway, NewRegistry(), WithMaxIterations(1))

	if _, err := agent.Run(context.Background(), "persona", "q"); err == nil {
		t.Fatal("expected the fallback failure to surface")
	}
}

func TestRun_ProseWithoutToolsGetsNudged(t *testing.T) {
	gateway := &scriptedGateway{steps: []scriptedStep{
		{result: &llm.ToolCallResult{Content: "let me think out loud", FinishReason: "end"}},
		toolRound(toolCall("c1", "done", `{"answer": "final"}`)),
	}}
	agent := NewAgent(gateway, NewRegistry())

	result, err := agent.Run(context.Background(), "persona", "q")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1 (the prose round counts)", result.Iterations)
	}

	second := gateway.transcripts[1]
	if last := second[len(second)-1]; last.Role != "user" || last.Content != nudgeMessage {
		t.Errorf("transcript should end with the nudge, got %+v", last)
	}
	if prose := second[len(second)-2]; prose.Role != "assistant" || prose.Content != "let me think out loud" {
		t.Errorf("assistant prose should be kept in the transcript, got %+v", prose)
	}
}

func TestRun_ToolFailureFeedsBackAsData(t *testing.T) {
	registry := NewRegistry()
	registry.Register(ToolRecall, func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("index rebuilding")
	})
	gateway := &scriptedGateway{steps: []scriptedStep{
		toolRound(toolCall("c1", "recall", `{"query": "x"}`)),
		toolRound(toolCall("c2", "done", `{"answer": "answered anyway"}`)),
	}}
	agent := NewAgent(gateway, registry)

	result, err := agent.Run(context.Background(), "persona", "q")
	if err != nil {
		t.Fatalf("Run failed, tool errors must not abort the loop: %v", err)
	}
	if result.Text != "answered anyway" {
		t.Errorf("text = %q", result.Text)
	}

	second := gateway.transcripts[1]
	last := second[len(second)-1]
	if !strings.Contains(last.Content, "index rebuilding") {
		t.Errorf("tool message %q should carry the failure text", last.Content)
	}
	if result.UsedMemoryIDs != nil {
		t.Errorf("error observations must contribute no evidence, got %v", result.UsedMemoryIDs)
	}
}

func TestRun_DoneWithoutAnswerUsesAssistantContent(t *testing.T) {
	gateway := &scriptedGateway{steps: []scriptedStep{
		{result: &llm.ToolCallResult{
			Content:      "content answer",
			ToolCalls:    []llm.ToolCallResponse{toolCall("c1", "done", `{"memory_ids": ["m1"]}`)},
			FinishReason: "tool_use",
		}},
	}}
	agent := NewAgent(gateway, NewRegistry())

	result, err := agent.Run(context.Background(), "persona", "q")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Text != "content answer" {
		t.Errorf("text = %q, want the assistant content", result.Text)
	}
	if !slices.Equal(result.UsedMemoryIDs, []string{"m1"}) {
		t.Errorf("used memory ids = %v, want [m1]", result.UsedMemoryIDs)
	}
}

func TestRun_ConcurrentRoundKeepsObservationOrder(t *testing.T) {
	registry := NewRegistry()
	// The first tool is slowest; order must still follow emission order.
	registry.Register(ToolRecall, func(context.Context, json.RawMessage) (any, error) {
		time.Sleep(30 * time.Millisecond)
		return map[string]any{"memories": []map[string]string{{"id": "m1"}}}, nil
	})
	registry.Register(ToolSearchReflections, func(context.Context, json.RawMessage) (any, error) {
		time.Sleep(10 * time.Millisecond)
		return map[string]any{"memories": []map[string]string{{"id": "m2"}}}, nil
	})
	registry.Register(ToolExpand, func(context.Context, json.RawMessage) (any, error) {
		return map[string]any{"memories": []map[string]string{{"id": "m3"}}}, nil
	})

	gateway := &scriptedGateway{steps: []scriptedStep{
		toolRound(
			toolCall("c1", "recall", `{"query": "x"}`),
			toolCall("c2", "search_reflections", `{"query": "x"}`),
			toolCall("c3", "expand", `{"memory_ids": ["m3"]}`),
		),
		toolRound(toolCall("c4", "done", `{"answer": "ok"}`)),
	}}
	agent := NewAgent(gateway, registry, WithConcurrentTools())

	result, err := agent.Run(context.Background(), "persona", "q")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	second := gateway.transcripts[1]
	var gotOrder []string
	for _, msg := range second {
		if msg.Role == "tool" {
			gotOrder = append(gotOrder, msg.ToolCallID)
		}
	}
	if !slices.Equal(gotOrder, []string{"c1", "c2", "c3"}) {
		t.Errorf("tool message order = %v, want emission order", gotOrder)
	}
	if !slices.Equal(result.UsedMemoryIDs, []string{"m1", "m2", "m3"}) {
		t.Errorf("used memory ids = %v", result.UsedMemoryIDs)
	}
}

func TestRun_AggregatesTokenUsage(t *testing.T) {
	gateway := &scriptedGateway{steps: []scriptedStep{
		{result: &llm.ToolCallResult{
			ToolCalls:    []llm.ToolCallResponse{toolCall("c1", "recall", `{"query": "x"}`)},
			FinishReason: "tool_use",
			InputTokens:  100,
			OutputTokens: 20,
		}},
		{result: &llm.ToolCallResult{
			ToolCalls:    []llm.ToolCallResponse{toolCall("c2", "done", `{"answer": "a"}`)},
			FinishReason: "tool_use",
			InputTokens:  150,
			OutputTokens: 30,
		}},
	}}
	agent := NewAgent(gateway, recallRegistry(t, nil, "m1"))

	result, err := agent.Run(context.Background(), "persona", "q")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.InputTokens != 250 || result.OutputTokens != 50 {
		t.Errorf("tokens = %d/%d, want 250/50", result.InputTokens, result.OutputTokens)
	}
}
