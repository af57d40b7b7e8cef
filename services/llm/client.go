// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm is the gateway to OpenAI-compatible chat completion APIs
// (OpenAI, Groq, Ollama, LM Studio). It owns the retry contract for
// transient provider failures and reports every completed call to the
// metrics collector. Raw net/http, no provider SDKs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianMemory/services/metrics"
)

// Retry policy for rate-limit and server errors: exponential backoff from
// 1s, doubling per retry, capped at 60s, with ±20% jitter.
const (
	retryBaseDelay = 1 * time.Second
	retryMaxDelay  = 60 * time.Second
	retryJitter    = 0.2
)

// =============================================================================
// Wire Types (OpenAI chat completions format)
// =============================================================================

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	TopP        *float32      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Tools       []ToolDef     `json:"tools,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireCallFunction `json:"function"`
}

type wireCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage,omitempty"`
	Error   *wireError   `json:"error,omitempty"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// =============================================================================
// Client
// =============================================================================

// CallParams are per-call generation parameters. The zero value sends no
// overrides and lets the provider apply its defaults.
type CallParams struct {
	Temperature *float32
	MaxTokens   *int
	TopP        *float32
	Stop        []string

	// ModelOverride replaces the configured model for this call only.
	ModelOverride string
}

// Client is the chat completion gateway.
//
// Description:
//
//	One Client is created per process and shared. Call sends a plain chat
//	request; CallWithTools adds function-calling tool definitions. Both
//	retry rate-limit (429) and server (5xx) responses with exponential
//	backoff and return every other error unchanged on the first attempt.
//	When the retry budget runs out, the last provider error is returned
//	as-is so callers see the real failure, not a wrapper.
//
// Thread Safety: Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    *rate.Limiter
	collector  metrics.Collector
	maxRetries int

	// sleep waits between retries. Tests replace it to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client at construction.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (120s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCollector sets the metrics sink. Nil keeps the no-op default.
func WithCollector(mc metrics.Collector) Option {
	return func(c *Client) { c.collector = metrics.OrNoop(mc) }
}

// NewClient creates a gateway client for the configured provider.
func NewClient(cfg Config, opts ...Option) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	c := &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		cfg:        cfg,
		collector:  metrics.Noop,
		maxRetries: maxRetries,
		sleep:      sleepContext,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call sends a plain chat request without tool definitions.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - messages: Conversation transcript.
//   - params: Generation parameters.
//
// Outputs:
//   - string: The assistant's response text.
//   - error: Non-nil if the request fails after retries.
//
// Thread Safety: This method is safe for concurrent use.
func (c *Client) Call(ctx context.Context, messages []ChatMessage, params CallParams) (string, error) {
	result, err := c.complete(ctx, "call", messages, params, nil)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// CallWithTools sends a chat request with tool definitions and returns the
// model's text and/or tool calls plus token usage.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - messages: Conversation transcript with tool metadata.
//   - params: Generation parameters.
//   - tools: Tool definitions offered to the model.
//
// Outputs:
//   - *ToolCallResult: Content, tool calls, finish reason, token usage.
//   - error: Non-nil if the request fails after retries.
//
// Thread Safety: This method is safe for concurrent use.
func (c *Client) CallWithTools(ctx context.Context, messages []ChatMessage,
	params CallParams, tools []ToolDef) (*ToolCallResult, error) {
	return c.complete(ctx, "tool_call", messages, params, tools)
}

// complete runs the retry loop around a single chat completion request.
func (c *Client) complete(ctx context.Context, scope string, messages []ChatMessage,
	params CallParams, tools []ToolDef) (*ToolCallResult, error) {

	model := c.cfg.Model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}

	reqBody, err := json.Marshal(buildRequest(model, messages, params, tools))
	if err != nil {
		return nil, fmt.Errorf("llm: marshaling request: %w", err)
	}

	slog.Debug("Sending chat completion request",
		slog.String("provider", string(c.cfg.Provider)),
		slog.String("model", model),
		slog.Int("messages", len(messages)),
		slog.Int("tools", len(tools)),
	)

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt - 1)
			slog.Warn("Retrying LLM call after transient provider error",
				slog.String("provider", string(c.cfg.Provider)),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", SafeLogString(lastErr.Error())),
			)
			recordRetry(c.cfg.Provider)
			if err := c.sleep(ctx, delay); err != nil {
				c.recordCall(scope, start, nil, err)
				return nil, err
			}
		}

		result, err := c.once(ctx, reqBody)
		if err == nil {
			c.recordCall(scope, start, result, nil)
			return result, nil
		}
		lastErr = err

		var statusErr *APIStatusError
		if !errors.As(err, &statusErr) || !statusErr.Retryable() {
			c.recordCall(scope, start, nil, err)
			return nil, err
		}
	}

	// Budget exhausted: surface the last provider error unchanged.
	c.recordCall(scope, start, nil, lastErr)
	return nil, lastErr
}

// once performs a single HTTP round trip and parses the response.
func (c *Client) once(ctx context.Context, reqBody []byte) (*ToolCallResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("llm: waiting for request limiter: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("llm: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIStatusError{
			Provider:   c.cfg.Provider,
			StatusCode: resp.StatusCode,
			Body:       SafeLogString(string(bodyBytes)),
		}
	}

	var apiResp chatResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("llm: parsing response JSON: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("llm: API error: %s - %s",
			apiResp.Error.Type, SafeLogString(apiResp.Error.Message))
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("llm: provider returned no choices")
	}

	choice := apiResp.Choices[0]
	result := &ToolCallResult{Content: choice.Message.Content}

	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			// Local providers sometimes omit call ids; the transcript
			// needs one to pair results with calls.
			id = "call_" + uuid.NewString()
		}
		result.ToolCalls = append(result.ToolCalls, ToolCallResponse{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	if len(result.ToolCalls) > 0 {
		result.FinishReason = "tool_use"
	} else {
		result.FinishReason = "end"
	}
	if apiResp.Usage != nil {
		result.InputTokens = apiResp.Usage.PromptTokens
		result.OutputTokens = apiResp.Usage.CompletionTokens
	}

	slog.Debug("Received chat completion response",
		slog.String("finish_reason", result.FinishReason),
		slog.Int("tool_calls", len(result.ToolCalls)),
		slog.Int("response_len", len(result.Content)),
	)
	return result, nil
}

// recordCall reports one terminal gateway outcome to the collector and the
// package counters.
func (c *Client) recordCall(scope string, start time.Time, result *ToolCallResult, err error) {
	var in, out int
	if result != nil {
		in, out = result.InputTokens, result.OutputTokens
	}
	c.collector.RecordLLMCall(string(c.cfg.Provider), c.cfg.Model, scope,
		time.Since(start), in, out, err == nil)
	if err != nil {
		recordError(c.cfg.Provider, err)
	}
}

// buildRequest converts transcript messages into the wire format.
func buildRequest(model string, messages []ChatMessage, params CallParams, tools []ToolDef) chatRequest {
	wireMessages := make([]wireMessage, 0, len(messages))
	for _, msg := range messages {
		wm := wireMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireCallFunction{
					Name:      tc.Name,
					Arguments: tc.ArgumentsString(),
				},
			})
		}
		wireMessages = append(wireMessages, wm)
	}

	return chatRequest{
		Model:       model,
		Messages:    wireMessages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		TopP:        params.TopP,
		Stop:        params.Stop,
		Tools:       tools,
	}
}

// retryDelay computes the backoff before the (retry+1)-th retry.
func retryDelay(retry int) time.Duration {
	d := retryBaseDelay
	for i := 0; i < retry && d < retryMaxDelay; i++ {
		d *= 2
	}
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	factor := 1 + retryJitter*(rand.Float64()*2-1)
	return time.Duration(float64(d) * factor)
}

// sleepContext sleeps for d or until the context ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
