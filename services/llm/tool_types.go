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

import "encoding/json"

// ToolDef is the tool definition passed to CallWithTools. Follows the
// OpenAI function calling schema, which every supported provider accepts.
//
// Thread Safety: ToolDef is immutable and safe for concurrent read access.
type ToolDef struct {
	// Type is the tool type. Always "function" for function calling.
	Type string `json:"type"`

	// Function contains the function definition.
	Function ToolFunction `json:"function"`
}

// ToolFunction contains the function name, description, and parameter schema.
type ToolFunction struct {
	// Name is the function name the model will call.
	Name string `json:"name"`

	// Description explains what the function does.
	Description string `json:"description"`

	// Parameters defines the JSON Schema for function parameters.
	Parameters ToolParameters `json:"parameters"`
}

// ToolParameters defines the JSON Schema for tool parameters.
type ToolParameters struct {
	// Type is the JSON Schema type. Always "object" for tool parameters.
	Type string `json:"type"`

	// Properties maps parameter names to their definitions.
	Properties map[string]ToolParamDef `json:"properties,omitempty"`

	// Required lists parameter names that must be provided.
	Required []string `json:"required,omitempty"`
}

// ToolParamDef defines a single parameter in JSON Schema format.
type ToolParamDef struct {
	// Type is the JSON Schema type (string, integer, boolean, number, array).
	Type string `json:"type"`

	// Description explains what the parameter is for.
	Description string `json:"description,omitempty"`

	// Enum restricts values to a set of options.
	Enum []any `json:"enum,omitempty"`

	// Items describes array element types when Type is "array".
	Items *ToolParamDef `json:"items,omitempty"`

	// Default is the default value if not provided.
	Default any `json:"default,omitempty"`
}

// ChatMessage is one entry in a conversation transcript.
//
// Description:
//
//	Regular messages use Role + Content. Assistant messages that invoked
//	tools carry ToolCalls; tool result messages carry the ToolCallID they
//	answer. This is the transcript shape the reflect loop appends to
//	between rounds.
//
// Thread Safety: ChatMessage is safe for concurrent read access.
type ChatMessage struct {
	// Role is the message role: "system", "user", "assistant", or "tool".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content,omitempty"`

	// ToolCalls contains tool invocations (for assistant messages).
	ToolCalls []ToolCallResponse `json:"tool_calls,omitempty"`

	// ToolCallID links this message back to a specific tool call (for tool
	// result messages).
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCallResponse is one tool invocation emitted by the model.
//
// Thread Safety: ToolCallResponse is safe for concurrent read access.
type ToolCallResponse struct {
	// ID is the provider-assigned identifier for this tool call. Local
	// providers sometimes omit it; the gateway fills in a synthetic one.
	ID string `json:"id"`

	// Name is the function name to call, exactly as the model emitted it.
	// Callers normalize it before dispatch.
	Name string `json:"name"`

	// Arguments is the raw JSON arguments for the function.
	Arguments json.RawMessage `json:"arguments"`
}

// ArgumentsString returns the arguments as a JSON object string.
//
// Description:
//
//	Some models double-encode arguments as a JSON string value; this
//	unwraps that case. Returns "{}" for nil/empty arguments so callers
//	can always unmarshal the result.
//
// Thread Safety: This method is safe for concurrent use.
func (t *ToolCallResponse) ArgumentsString() string {
	if len(t.Arguments) == 0 {
		return "{}"
	}

	if t.Arguments[0] == '"' {
		var s string
		if err := json.Unmarshal(t.Arguments, &s); err == nil {
			return s
		}
	}

	return string(t.Arguments)
}

// ToolCallResult is the gateway's result for a single completed call.
//
// Thread Safety: ToolCallResult is safe for concurrent read access.
type ToolCallResult struct {
	// Content is the text response (may be empty if only tool calls).
	Content string

	// ToolCalls contains tool calls from the model, in emission order.
	ToolCalls []ToolCallResponse

	// FinishReason indicates why generation stopped: "end" for a normal
	// completion, "tool_use" when tool calls are present.
	FinishReason string

	// InputTokens and OutputTokens come from the provider's usage block.
	// Zero when the provider reports no usage.
	InputTokens  int
	OutputTokens int
}
