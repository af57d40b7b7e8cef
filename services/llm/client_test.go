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
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient builds a client against baseURL with real sleeps replaced
// by a recorder.
func newTestClient(baseURL string, maxRetries int) (*Client, *[]time.Duration) {
	cfg := Config{
		Provider:   ProviderOpenAI,
		APIKey:     "test-key",
		BaseURL:    baseURL,
		Model:      "test-model",
		MaxRetries: maxRetries,
	}
	c := NewClient(cfg)
	sleeps := &[]time.Duration{}
	c.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return c, sleeps
}

func TestCall_ReturnsContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3}
		}`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, 1)
	text, err := client.Call(context.Background(), []ChatMessage{
		{Role: "user", Content: "hi"},
	}, CallParams{})

	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}

func TestCallWithTools_ParsesToolCallsAndUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"choices": [{"index": 0, "message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [
					{"id": "call_1", "type": "function", "function": {"name": "recall", "arguments": "{\"query\": \"deadlines\"}"}},
					{"id": "", "type": "function", "function": {"name": "done", "arguments": "{}"}}
				]
			}, "finish_reason": "tool_calls"}],
			"usage": {"prompt_tokens": 200, "completion_tokens": 40}
		}`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, 1)
	result, err := client.CallWithTools(context.Background(), []ChatMessage{
		{Role: "user", Content: "what are my deadlines?"},
	}, CallParams{}, []ToolDef{{Type: "function", Function: ToolFunction{Name: "recall"}}})

	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 2)
	assert.Equal(t, "tool_use", result.FinishReason)
	assert.Equal(t, "call_1", result.ToolCalls[0].ID)
	assert.Equal(t, "recall", result.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query": "deadlines"}`, string(result.ToolCalls[0].Arguments))
	assert.NotEmpty(t, result.ToolCalls[1].ID, "missing call ids must be filled in")
	assert.Equal(t, 200, result.InputTokens)
	assert.Equal(t, 40, result.OutputTokens)
}

func TestCallWithTools_RetriesRateLimitThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": {"message": "rate limit exceeded"}}`))
			return
		}
		w.Write([]byte(`{"choices": [{"index": 0, "message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}]}`))
	}))
	defer server.Close()

	client, sleeps := newTestClient(server.URL, 5)
	result, err := client.CallWithTools(context.Background(),
		[]ChatMessage{{Role: "user", Content: "q"}}, CallParams{}, nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
	assert.Equal(t, 3, attempts)

	// Backoff doubles from 1s with ±20% jitter.
	require.Len(t, *sleeps, 2)
	assert.InDelta(t, float64(time.Second), float64((*sleeps)[0]), float64(time.Second)*0.2)
	assert.InDelta(t, float64(2*time.Second), float64((*sleeps)[1]), float64(2*time.Second)*0.2)
}

func TestCallWithTools_ExhaustionReturnsLastErrorUnchanged(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": {"message": "upstream overloaded"}}`))
	}))
	defer server.Close()

	client, sleeps := newTestClient(server.URL, 2)
	_, err := client.CallWithTools(context.Background(),
		[]ChatMessage{{Role: "user", Content: "q"}}, CallParams{}, nil)

	require.Error(t, err)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
	assert.Len(t, *sleeps, 2)

	var statusErr *APIStatusError
	require.ErrorAs(t, err, &statusErr, "exhaustion must surface the provider error itself")
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "upstream overloaded")
}

func TestCallWithTools_NonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "model not found"}}`))
	}))
	defer server.Close()

	client, sleeps := newTestClient(server.URL, 5)
	_, err := client.CallWithTools(context.Background(),
		[]ChatMessage{{Role: "user", Content: "q"}}, CallParams{}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *sleeps, "4xx errors other than 429 must not be retried")

	var statusErr *APIStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.False(t, statusErr.Retryable())
}

func TestCallWithTools_EmbeddedAPIErrorNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "bad tool schema"}}`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, 5)
	_, err := client.CallWithTools(context.Background(),
		[]ChatMessage{{Role: "user", Content: "q"}}, CallParams{}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, err.Error(), "bad tool schema")
}

func TestCallWithTools_SleepCancellationPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, 5)
	client.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	_, err := client.CallWithTools(context.Background(),
		[]ChatMessage{{Role: "user", Content: "q"}}, CallParams{}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRetryDelay_DoublesAndCaps(t *testing.T) {
	cases := []struct {
		retry int
		base  time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second},
		{20, 60 * time.Second},
	}

	for _, tc := range cases {
		for i := 0; i < 50; i++ {
			d := retryDelay(tc.retry)
			lo := time.Duration(float64(tc.base) * (1 - retryJitter))
			hi := time.Duration(float64(tc.base) * (1 + retryJitter))
			if d < lo || d > hi {
				t.Fatalf("retryDelay(%d) = %v, want within [%v, %v]", tc.retry, d, lo, hi)
			}
		}
	}
}

func TestBuildRequest_ToolTranscriptRoundTrip(t *testing.T) {
	messages := []ChatMessage{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "question"},
		{Role: "assistant", ToolCalls: []ToolCallResponse{
			{ID: "call_9", Name: "recall", Arguments: []byte(`{"query": "x"}`)},
		}},
		{Role: "tool", ToolCallID: "call_9", Content: `{"status": "ok"}`},
	}

	req := buildRequest("m", messages, CallParams{}, nil)

	require.Len(t, req.Messages, 4)
	assert.Equal(t, "call_9", req.Messages[2].ToolCalls[0].ID)
	assert.Equal(t, `{"query": "x"}`, req.Messages[2].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "call_9", req.Messages[3].ToolCallID)
}
