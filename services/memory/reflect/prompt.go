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
	"fmt"
	"sort"
	"strings"
)

// nudgeMessage is appended after a round that produced prose but neither
// tool calls nor done.
const nudgeMessage = "Use the provided tools to gather evidence, then call " +
	"done with your answer and the memory ids you relied on."

// fallbackMessage is appended before the plain completion when the
// iteration budget runs out.
const fallbackMessage = "Stop searching. Answer the question now using only " +
	"the evidence already gathered above."

// SystemPrompt renders the system message for a reflect run: the bank's
// identity and disposition, followed by tool-use instructions.
//
// Inputs:
//   - bankName: The memory bank's name.
//   - mission: The bank's mission statement. May be empty.
//   - disposition: Trait weights shaping the answer's register (e.g.
//     "skepticism": 4). May be nil.
//
// Thread Safety: This function is safe for concurrent use.
func SystemPrompt(bankName, mission string, disposition map[string]float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You answer questions from the memory bank %q.\n", bankName)
	if mission != "" {
		fmt.Fprintf(&b, "Mission: %s\n", mission)
	}
	if len(disposition) > 0 {
		traits := make([]string, 0, len(disposition))
		for name := range disposition {
			traits = append(traits, name)
		}
		sort.Strings(traits)
		b.WriteString("Disposition (1 low, 5 high):")
		for _, name := range traits {
			fmt.Fprintf(&b, " %s=%g", name, disposition[name])
		}
		b.WriteString("\n")
	}

	b.WriteString(`
Ground every claim in memories retrieved with the tools:
- recall searches stored memories by keyword.
- search_reflections and search_mental_models search prior conclusions.
- expand fetches specific memories and their related neighbors.

When you have enough evidence, call done with the final answer and the ids
of the memories you relied on. Do not answer without calling done. If a
tool returns an error, adjust the arguments or try a different tool.`)

	return b.String()
}
