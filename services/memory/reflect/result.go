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

// FinishReason states how a loop ended.
type FinishReason string

const (
	// FinishDone means the model called the "done" tool.
	FinishDone FinishReason = "done"

	// FinishMaxIterations means the iteration budget ran out and the
	// fallback plain completion produced the answer.
	FinishMaxIterations FinishReason = "max_iterations"
)

// Result is the outcome of a completed reflect loop.
//
// Thread Safety: Result is safe for concurrent read access.
type Result struct {
	// Text is the final answer.
	Text string `json:"text"`

	// UsedMemoryIDs is the sorted union of memory ids surfaced by tool
	// observations plus the ids the model cited when calling done.
	UsedMemoryIDs []string `json:"used_memory_ids,omitempty"`

	// Iterations counts completed tool rounds that did not terminate the
	// loop. A run that retrieves twice and then calls done reports 2.
	Iterations int `json:"iterations"`

	// FinishReason is FinishDone or FinishMaxIterations. Gateway failures
	// and cancellation surface as errors, not results.
	FinishReason FinishReason `json:"finish_reason"`

	// InputTokens and OutputTokens aggregate usage over all gateway calls
	// in the run.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}
