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

import "github.com/AleutianAI/AleutianMemory/services/llm"

// searchSchema builds the shared parameter schema of the keyword search
// tools.
func searchSchema(description string) llm.ToolParameters {
	return llm.ToolParameters{
		Type: "object",
		Properties: map[string]llm.ToolParamDef{
			"query": {Type: "string", Description: description},
			"limit": {Type: "integer", Description: "Maximum results to return.", Default: 10},
		},
		Required: []string{"query"},
	}
}

// ToolSchemas returns the tool definitions offered to the model on every
// round, including the terminating done tool.
//
// Thread Safety: This function is safe for concurrent use; callers must
// not mutate the returned definitions.
func ToolSchemas() []llm.ToolDef {
	return []llm.ToolDef{
		{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        "recall",
				Description: "Search stored memories by keyword.",
				Parameters:  searchSchema("Keywords describing the memories to find."),
			},
		},
		{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        "search_reflections",
				Description: "Search conclusions drawn in earlier reflect runs.",
				Parameters:  searchSchema("Keywords describing the prior conclusions to find."),
			},
		},
		{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        "search_mental_models",
				Description: "Search durable beliefs the bank holds about its world.",
				Parameters:  searchSchema("Keywords describing the beliefs to find."),
			},
		},
		{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        "expand",
				Description: "Fetch specific memories by id together with related neighbors.",
				Parameters: llm.ToolParameters{
					Type: "object",
					Properties: map[string]llm.ToolParamDef{
						"memory_ids": {
							Type:        "array",
							Description: "Ids of the memories to expand.",
							Items:       &llm.ToolParamDef{Type: "string"},
						},
					},
					Required: []string{"memory_ids"},
				},
			},
		},
		{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        "done",
				Description: "Finish with the final answer and the memory ids it relies on.",
				Parameters: llm.ToolParameters{
					Type: "object",
					Properties: map[string]llm.ToolParamDef{
						"answer": {Type: "string", Description: "The final answer."},
						"memory_ids": {
							Type:        "array",
							Description: "Ids of the memories the answer relies on.",
							Items:       &llm.ToolParamDef{Type: "string"},
						},
					},
					Required: []string{"answer"},
				},
			},
		},
	}
}
