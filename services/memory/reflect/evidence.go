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
	"encoding/json"
	"sort"
)

// evidenceSet accumulates the union of memory ids touched during a loop.
// Collection is deliberately over-inclusive: an id recorded here is used
// for attribution, not access, so a false positive is harmless while a
// dropped citation is not.
type evidenceSet map[string]struct{}

func newEvidenceSet() evidenceSet {
	return make(evidenceSet)
}

// addIDs records explicitly cited ids, skipping empties.
func (e evidenceSet) addIDs(ids []string) {
	for _, id := range ids {
		if id != "" {
			e[id] = struct{}{}
		}
	}
}

// addFromObservation extracts memory ids from a successful observation
// payload. Recognized shapes:
//
//	{"memories": [{"id": "..."}, ...]}
//	{"memory_ids": ["...", ...]}
//	{"id": "..."}
//
// Malformed payloads contribute nothing.
func (e evidenceSet) addFromObservation(o Observation) {
	if !o.OK() || len(o.Payload) == 0 {
		return
	}

	var payload struct {
		ID        string   `json:"id"`
		MemoryIDs []string `json:"memory_ids"`
		Memories  []struct {
			ID string `json:"id"`
		} `json:"memories"`
	}
	if err := json.Unmarshal(o.Payload, &payload); err != nil {
		return
	}

	if payload.ID != "" {
		e[payload.ID] = struct{}{}
	}
	e.addIDs(payload.MemoryIDs)
	for _, m := range payload.Memories {
		if m.ID != "" {
			e[m.ID] = struct{}{}
		}
	}
}

// sorted returns the collected ids in lexicographic order so results are
// deterministic regardless of tool execution order.
func (e evidenceSet) sorted() []string {
	if len(e) == 0 {
		return nil
	}
	ids := make([]string, 0, len(e))
	for id := range e {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
